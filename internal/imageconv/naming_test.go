// Copyright (C) 2025 The image-variant-worker Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package imageconv

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want ObjectRef
	}{
		{
			name: "azure blob",
			url:  "https://myaccount.blob.core.windows.net/images/cat.jpg",
			want: ObjectRef{Container: "images", Name: "cat.jpg"},
		},
		{
			name: "azure blob nested",
			url:  "https://myaccount.blob.core.windows.net/images/2024/05/cat.png",
			want: ObjectRef{Container: "images", Name: "2024/05/cat.png"},
		},
		{
			name: "azurite ip style",
			url:  "http://127.0.0.1:10000/devstoreaccount1/images/cat.gif",
			want: ObjectRef{Container: "images", Name: "cat.gif"},
		},
		{
			name: "s3 scheme",
			url:  "s3://uploads/photos/dog.jpeg",
			want: ObjectRef{Container: "uploads", Name: "photos/dog.jpeg"},
		},
		{
			name: "s3 scheme percent encoded",
			url:  "s3://uploads/my%20photo.png",
			want: ObjectRef{Container: "uploads", Name: "my photo.png"},
		},
		{
			name: "gcs scheme",
			url:  "gs://bucket/a/b.png",
			want: ObjectRef{Container: "bucket", Name: "a/b.png"},
		},
		{
			name: "s3 virtual hosted",
			url:  "https://uploads.s3.us-east-1.amazonaws.com/photos/dog.jpg",
			want: ObjectRef{Container: "uploads", Name: "photos/dog.jpg"},
		},
		{
			name: "s3 legacy dash region",
			url:  "https://uploads.s3-eu-west-1.amazonaws.com/dog.jpg",
			want: ObjectRef{Container: "uploads", Name: "dog.jpg"},
		},
		{
			name: "s3 path style",
			url:  "https://s3.us-east-1.amazonaws.com/uploads/photos/dog.jpg",
			want: ObjectRef{Container: "uploads", Name: "photos/dog.jpg"},
		},
		{
			name: "gcs path style",
			url:  "https://storage.googleapis.com/bucket/x/y.gif",
			want: ObjectRef{Container: "bucket", Name: "x/y.gif"},
		},
		{
			name: "gcs virtual hosted",
			url:  "https://bucket.storage.googleapis.com/y.gif",
			want: ObjectRef{Container: "bucket", Name: "y.gif"},
		},
		{
			name: "surrounding whitespace",
			url:  "  s3://uploads/dog.jpg\n",
			want: ObjectRef{Container: "uploads", Name: "dog.jpg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseObjectURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseObjectURLInvalid(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"no scheme", "images/cat.jpg"},
		{"ftp", "ftp://host/images/cat.jpg"},
		{"unparsable", "http://[::1"},
		{"no container", "https://myaccount.blob.core.windows.net/"},
		{"no blob name", "https://myaccount.blob.core.windows.net/images"},
		{"directory", "https://myaccount.blob.core.windows.net/images/dir/"},
		{"s3 no key", "s3://bucket"},
		{"s3 no bucket", "s3:///key.png"},
		{"gcs path style no object", "https://storage.googleapis.com/bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseObjectURL(tt.url)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidReference))
		})
	}
}

func TestObjectRefExtension(t *testing.T) {
	assert.Equal(t, ".jpg", ObjectRef{Name: "a/b/cat.jpg"}.Extension())
	assert.Equal(t, ".PNG", ObjectRef{Name: "CAT.PNG"}.Extension())
	assert.Equal(t, ".gz", ObjectRef{Name: "archive.tar.gz"}.Extension())
	assert.Equal(t, "", ObjectRef{Name: "README"}.Extension())
	assert.Equal(t, "", ObjectRef{Name: "v1.2/README"}.Extension())
}

func TestNameForIsPure(t *testing.T) {
	const src = "https://myaccount.blob.core.windows.net/images/2024/cat.jpg"
	first, err := NameFor(src)
	require.NoError(t, err)
	assert.Equal(t, "2024/cat.jpg", first)
	for range 3 {
		again, err := NameFor(src)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

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
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// ObjectRef identifies one object within its container (bucket).
type ObjectRef struct {
	Container string
	Name      string
}

// Extension returns the object name's extension including the leading dot.
func (r ObjectRef) Extension() string {
	return path.Ext(r.Name)
}

// ParseObjectURL splits a storage object URL into container and object name.
//
// Recognized forms:
//
//	s3://bucket/key, gs://bucket/key
//	https://account.blob.core.windows.net/container/name (and Azurite IP-style)
//	https://bucket.s3.region.amazonaws.com/key, https://s3.region.amazonaws.com/bucket/key
//	https://storage.googleapis.com/bucket/name, https://bucket.storage.googleapis.com/name
func ParseObjectURL(raw string) (ObjectRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ObjectRef{}, fmt.Errorf("%w: empty url", ErrInvalidReference)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	var ref ObjectRef
	switch strings.ToLower(u.Scheme) {
	case "s3", "gs":
		ref = ObjectRef{Container: u.Host, Name: strings.TrimPrefix(u.Path, "/")}
	case "http", "https":
		ref, err = parseHTTPObjectURL(u, raw)
		if err != nil {
			return ObjectRef{}, err
		}
	default:
		return ObjectRef{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidReference, u.Scheme)
	}

	if ref.Container == "" {
		return ObjectRef{}, fmt.Errorf("%w: no container in %q", ErrInvalidReference, raw)
	}
	if ref.Name == "" || strings.HasSuffix(ref.Name, "/") {
		return ObjectRef{}, fmt.Errorf("%w: no object name in %q", ErrInvalidReference, raw)
	}
	return ref, nil
}

func parseHTTPObjectURL(u *url.URL, raw string) (ObjectRef, error) {
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ObjectRef{}, fmt.Errorf("%w: no host in %q", ErrInvalidReference, raw)
	}

	if bucket, ok := virtualHostedBucket(host); ok {
		return ObjectRef{Container: bucket, Name: strings.TrimPrefix(u.Path, "/")}, nil
	}

	if host == "storage.googleapis.com" || strings.HasPrefix(host, "s3.") || strings.HasPrefix(host, "s3-") {
		container, name, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		return ObjectRef{Container: container, Name: name}, nil
	}

	// Azure Blob Storage, including IP-style (Azurite) endpoints where the
	// account name is the first path segment.
	parts, err := azblob.ParseURL(raw)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	return ObjectRef{Container: parts.ContainerName, Name: parts.BlobName}, nil
}

func virtualHostedBucket(host string) (string, bool) {
	if strings.HasSuffix(host, ".amazonaws.com") {
		for _, marker := range []string{".s3.", ".s3-"} {
			if idx := strings.Index(host, marker); idx > 0 {
				return host[:idx], true
			}
		}
		return "", false
	}
	if strings.HasSuffix(host, ".storage.googleapis.com") {
		return strings.TrimSuffix(host, ".storage.googleapis.com"), true
	}
	return "", false
}

// NameFor returns the object name every variant of sourceURL is stored under.
// Only the destination container differs between variants.
func NameFor(sourceURL string) (string, error) {
	ref, err := ParseObjectURL(sourceURL)
	if err != nil {
		return "", err
	}
	return ref.Name, nil
}

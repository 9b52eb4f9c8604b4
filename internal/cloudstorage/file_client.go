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

package cloudstorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileClient stores objects in a directory tree: <base>/<container>/<name>.
type FileClient struct {
	base string
}

var _ Client = (*FileClient)(nil)

func NewFileClient(base string) *FileClient {
	return &FileClient{base: base}
}

func (c *FileClient) path(container, name string) (string, error) {
	p := filepath.Join(c.base, container, filepath.FromSlash(name))
	rel, err := filepath.Rel(c.base, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object %s/%s resolves outside %s", container, name, c.base)
	}
	return p, nil
}

func (c *FileClient) GetObject(ctx context.Context, container, name string) (io.ReadCloser, error) {
	p, err := c.path(container, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			recordDownloadError(ctx, "file", container, "not_found")
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, container, name)
		}
		recordDownloadError(ctx, "file", container, "unknown")
		return nil, err
	}
	return &countingReader{ctx: ctx, body: f, provider: "file", container: container}, nil
}

// PutObject writes through a temporary file so readers never observe a
// partially written object.
func (c *FileClient) PutObject(ctx context.Context, container, name string, data []byte, contentType string) error {
	err := c.put(container, name, data)
	recordUpload(ctx, "file", container, len(data), err)
	return err
}

func (c *FileClient) put(container, name string, data []byte) error {
	dst, err := c.path(container, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

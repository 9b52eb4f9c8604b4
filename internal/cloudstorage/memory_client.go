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
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryObject is one object held by a MemoryClient.
type MemoryObject struct {
	Data        []byte
	ContentType string
}

// MemoryClient is an in-process Client, used for tests and dry runs.
type MemoryClient struct {
	mu      sync.Mutex
	objects map[string]MemoryObject
	puts    int

	// PutHook, when set, is consulted before each write; a non-nil error
	// fails that write.
	PutHook func(container, name string) error
}

var _ Client = (*MemoryClient)(nil)

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{objects: make(map[string]MemoryObject)}
}

func memoryKey(container, name string) string {
	return container + "/" + name
}

func (c *MemoryClient) GetObject(ctx context.Context, container, name string) (io.ReadCloser, error) {
	c.mu.Lock()
	obj, ok := c.objects[memoryKey(container, name)]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, container, name)
	}
	return io.NopCloser(bytes.NewReader(obj.Data)), nil
}

func (c *MemoryClient) PutObject(ctx context.Context, container, name string, data []byte, contentType string) error {
	if c.PutHook != nil {
		if err := c.PutHook(container, name); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[memoryKey(container, name)] = MemoryObject{
		Data:        bytes.Clone(data),
		ContentType: contentType,
	}
	c.puts++
	return nil
}

// Object returns a stored object.
func (c *MemoryClient) Object(container, name string) (MemoryObject, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	obj, ok := c.objects[memoryKey(container, name)]
	return obj, ok
}

// Puts is the number of successful PutObject calls.
func (c *MemoryClient) Puts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

// Len is the number of stored objects.
func (c *MemoryClient) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.objects)
}

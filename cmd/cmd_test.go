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

package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigysmund/function-image-upload-resize/config"
	"github.com/sigysmund/function-image-upload-resize/internal/cloudstorage"
	"github.com/sigysmund/function-image-upload-resize/internal/imageconv"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testConverter(t *testing.T, store *cloudstorage.MemoryClient) *imageconv.Orchestrator {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Variants.Definitions = []config.VariantConfig{
		{Name: "SMALL", Width: "32", Container: "small"},
		{Name: "BROKEN", Width: "wide", Container: "broken"},
	}
	orch, err := imageconv.NewOrchestratorFromConfig(cfg, store, store)
	require.NoError(t, err)
	return orch
}

func TestRunConvert(t *testing.T) {
	ctx := context.Background()
	store := cloudstorage.NewMemoryClient()
	require.NoError(t, store.PutObject(ctx, "uploads", "cat.png", pngBytes(t, 64, 48), "image/png"))
	orch := testConverter(t, store)

	var out bytes.Buffer
	err := runConvert(ctx, orch, []imageconv.Notification{
		{ID: "1", URL: "s3://uploads/cat.png"},
		{ID: "2", URL: "s3://uploads/readme.txt"},
		{ID: "3", URL: "s3://uploads/missing.png"},
		{ID: "4", URL: "not a url"},
		{ID: "5", URL: ""},
	}, 0, &out)
	require.Error(t, err)

	obj, ok := store.Object("small", "cat.png")
	require.True(t, ok)
	assert.Equal(t, "image/png", obj.ContentType)

	text := out.String()
	assert.Contains(t, text, "s3://uploads/cat.png\tpng\tsucceeded=1 failed=1")
	assert.Contains(t, text, "SMALL\tsmall/cat.png\t32x24\tok")
	assert.Contains(t, text, "BROKEN")
	assert.Contains(t, text, "s3://uploads/readme.txt\tskipped\tunsupported_format")
	assert.Contains(t, text, "s3://uploads/missing.png\tfailed\tnot_found")
	assert.Contains(t, text, "not a url\tfailed\tinvalid_reference")
	assert.Contains(t, text, "\trejected\t")
	assert.ErrorIs(t, err, imageconv.ErrMalformedEvent)
}

func TestRunConvert_AllGood(t *testing.T) {
	ctx := context.Background()
	store := cloudstorage.NewMemoryClient()
	require.NoError(t, store.PutObject(ctx, "uploads", "a.png", pngBytes(t, 16, 16), "image/png"))

	cfg := config.DefaultConfig()
	cfg.Variants.Definitions = []config.VariantConfig{{Name: "SMALL", Width: "8", Container: "small"}}
	orch, err := imageconv.NewOrchestratorFromConfig(cfg, store, store)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runConvert(ctx, orch, []imageconv.Notification{{ID: "1", URL: "s3://uploads/a.png"}}, 0, &out))
}

func TestReadNotifications(t *testing.T) {
	dir := t.TempDir()
	event := filepath.Join(dir, "event.json")
	require.NoError(t, os.WriteFile(event, []byte(`{"Records":[{"eventName":"ObjectCreated:Put",
		"s3":{"bucket":{"name":"uploads"},"object":{"key":"b.jpg"}}}]}`), 0o644))

	ns, err := readNotifications([]string{"s3://uploads/a.png"}, event, nil)
	require.NoError(t, err)
	require.Len(t, ns, 2)
	assert.Equal(t, "s3://uploads/a.png", ns[0].URL)
	assert.Equal(t, "s3://uploads/b.jpg", ns[1].URL)

	stdin := strings.NewReader(`{"kind":"storage#object","name":"c.gif","bucket":"media"}`)
	ns, err = readNotifications(nil, "-", stdin)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, "gs://media/c.gif", ns[0].URL)
}

func TestReadNotifications_Errors(t *testing.T) {
	_, err := readNotifications(nil, filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)

	_, err = readNotifications(nil, "-", strings.NewReader(`{"hello":"world"}`))
	assert.ErrorIs(t, err, imageconv.ErrMalformedEvent)

	validation := `[{"eventType":"Microsoft.EventGrid.SubscriptionValidationEvent","data":{"validationCode":"x"}}]`
	_, err = readNotifications(nil, "-", strings.NewReader(validation))
	assert.ErrorIs(t, err, imageconv.ErrMalformedEvent)
}

func TestWriteConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Azure.ConnectionString = "AccountKey=secret"

	var out bytes.Buffer
	require.NoError(t, writeConfig(&out, cfg))
	assert.NotContains(t, out.String(), "secret")
	assert.Contains(t, out.String(), "provider: azure")
	assert.Contains(t, out.String(), "jpeg_quality: 75")
}

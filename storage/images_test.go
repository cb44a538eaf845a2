package storage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestReadImage(t *testing.T) {
	data, contentType, name, err := ReadImage(bytes.NewReader(pngHeader), 1024)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", contentType)
	assert.True(t, strings.HasSuffix(name, ".png"))

	_, _, _, err = ReadImage(bytes.NewReader(pngHeader), 4)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, _, _, err = ReadImage(strings.NewReader("#!/bin/sh\necho hi\n"), 1024)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestLocalStoreSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewLocalStore(dir, "/uploads")
	require.NoError(t, err)

	url, err := store.Save(context.Background(), "../../etc/avatar.png", "image/png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/avatar.png", url)

	written, err := os.ReadFile(filepath.Join(dir, "avatar.png"))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, written)

	_, err = store.Save(context.Background(), "avatar.png", "image/png", pngHeader)
	assert.Error(t, err, "existing files are never overwritten")
}

func TestDriveStoreSave(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "/permissions") {
			_, _ = w.Write([]byte(`{"id":"perm-1","type":"anyone","role":"reader"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"file-1","webViewLink":"https://drive.example/view/file-1"}`))
	}))
	defer srv.Close()

	service, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	store := NewDriveStoreWithService(service, "folder-1")
	url, err := store.Save(context.Background(), "a.png", "image/png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "https://drive.example/view/file-1", url)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[1], "file-1/permissions")
}

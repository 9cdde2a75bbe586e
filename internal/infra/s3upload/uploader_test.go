// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package s3upload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ManuGH/dashcam/internal/domain/capture/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedPut struct {
	method string
	path   string
	body   string
	ctype  string
}

func fakeS3(t *testing.T) (*httptest.Server, func() []capturedPut) {
	t.Helper()
	var (
		mu   sync.Mutex
		puts []capturedPut
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, capturedPut{method: r.Method, path: r.URL.Path, body: string(body), ctype: r.Header.Get("Content-Type")})
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedPut {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedPut(nil), puts...)
	}
}

func TestUploadPutsObjectUnderPrefix(t *testing.T) {
	srv, puts := fakeS3(t)
	u, err := New(Config{
		Endpoint:     srv.URL,
		Region:       "us-east-1",
		Bucket:       "clips",
		Prefix:       "dashcam",
		AccessKey:    "AKID",
		SecretKey:    "SECRET",
		UsePathStyle: true,
	})
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "1700000000000.mp4")
	require.NoError(t, os.WriteFile(file, []byte("moov-and-mdat"), 0o600))
	rec := model.VideoRecord{ID: 7, Title: "2025/03/01 - 08:15", FileName: "1700000000000.mp4", DurationSeconds: 42}

	require.NoError(t, u.Upload(context.Background(), rec, file))
	got := puts()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "/clips/dashcam/1700000000000.mp4", got[0].path)
	assert.Contains(t, got[0].body, "moov-and-mdat")
	assert.Equal(t, "video/mp4", got[0].ctype)
	assert.Equal(t, "dashcam/1700000000000.mp4", u.Key(rec))
}

func TestUploadMissingFile(t *testing.T) {
	u, err := New(Config{Bucket: "b", AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)
	err = u.Upload(context.Background(), model.VideoRecord{FileName: "x.mp4"}, filepath.Join(t.TempDir(), "x.mp4"))
	assert.Error(t, err)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{Bucket: "b"})
	assert.Error(t, err)
}

package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/crlx1q/antimat/internal/models"
	"github.com/crlx1q/antimat/internal/storage"
	"github.com/crlx1q/antimat/internal/testutil"
)

// memStore keeps artifacts in memory.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return storage.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: contentType}, nil
}

func (s *memStore) Copy(_ context.Context, src, dst string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[src]
	if !ok {
		return storage.ErrObjectNotFound
	}
	s.objects[dst] = data
	return nil
}

func (s *memStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStore) Open(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *memStore) content(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return string(data), ok
}

func (s *memStore) keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func upload(version, body string) UploadInput {
	return UploadInput{
		Version:  version,
		FileName: "app.apk",
		Size:     int64(len(body)),
		Body:     strings.NewReader(body),
	}
}

func TestUploadCheckAndDownload(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := newMemStore()
	svc := NewUpdateService(e.updates, store, 1<<20, "https://example.test/", zerolog.Nop())

	res, err := svc.Check(ctx, "1.0.0")
	if err != nil {
		t.Fatalf("check without releases: %v", err)
	}
	if res.HasUpdate {
		t.Fatalf("no release should mean no update: %+v", res)
	}
	if _, _, err := svc.Download(ctx); !errors.Is(err, ErrNoRelease) {
		t.Fatalf("download without releases: got %v, want ErrNoRelease", err)
	}

	if _, err := svc.Upload(ctx, upload("1.1.0", "v110")); err != nil {
		t.Fatalf("upload 1.1.0: %v", err)
	}
	if _, err := svc.Upload(ctx, upload("1.2", "v12")); err != nil {
		t.Fatalf("upload 1.2: %v", err)
	}
	if _, err := svc.Upload(ctx, upload("1.2", "again")); !errors.Is(err, ErrVersionExists) {
		t.Fatalf("duplicate version: got %v, want ErrVersionExists", err)
	}
	if tmp := store.keys(uploadPrefix); len(tmp) != 0 {
		t.Fatalf("temporary uploads left behind: %v", tmp)
	}

	res, err = svc.Check(ctx, "1.1.9")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.HasUpdate || res.LatestVersion != "1.2" || res.DownloadURL != "https://example.test/download/app-release.apk" {
		t.Fatalf("unexpected check result: %+v", res)
	}
	if res.Title == "" || res.Description == "" || res.FileSize != 3 {
		t.Fatalf("defaults not filled: %+v", res)
	}

	res, err = svc.Check(ctx, "1.2.0")
	if err != nil {
		t.Fatalf("check equal: %v", err)
	}
	if res.HasUpdate {
		t.Fatalf("1.2.0 equals 1.2, got %+v", res)
	}

	rc, _, err := svc.Download(ctx)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "v12" {
		t.Fatalf("current release = %q, want v12", data)
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	svc := NewUpdateService(e.updates, newMemStore(), 4, "https://example.test", zerolog.Nop())

	cases := []struct {
		name  string
		input UploadInput
		want  error
	}{
		{"no file", UploadInput{Version: "1.0"}, ErrFileRequired},
		{"too large", upload("1.0", "12345"), ErrFileTooLarge},
		{"not apk", UploadInput{Version: "1.0", FileName: "app.zip", Size: 1, Body: strings.NewReader("x")}, ErrNotAPK},
		{"no version", upload("", "x"), ErrVersionRequired},
		{"bad version", upload("1.x", "x"), ErrVersionInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Upload(ctx, tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDeleteCurrentReleaseRepoints(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := newMemStore()
	svc := NewUpdateService(e.updates, store, 1<<20, "https://example.test", zerolog.Nop())

	first, err := svc.Upload(ctx, upload("1.0", "one"))
	if err != nil {
		t.Fatalf("upload 1.0: %v", err)
	}
	second, err := svc.Upload(ctx, upload("2.0", "two"))
	if err != nil {
		t.Fatalf("upload 2.0: %v", err)
	}

	if err := svc.Delete(ctx, second.ID); err != nil {
		t.Fatalf("delete 2.0: %v", err)
	}
	if got, _ := store.content(models.CurrentReleaseName); got != "one" {
		t.Fatalf("current release = %q, want the previous one", got)
	}
	if _, ok := store.content(releaseKey("2.0")); ok {
		t.Fatal("deleted release artifact still stored")
	}

	if err := svc.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete 1.0: %v", err)
	}
	if _, ok := store.content(models.CurrentReleaseName); ok {
		t.Fatal("current release should be gone with no releases left")
	}
	if err := svc.Delete(ctx, first.ID); !errors.Is(err, ErrUpdateNotFound) {
		t.Fatalf("delete again: got %v, want ErrUpdateNotFound", err)
	}
}

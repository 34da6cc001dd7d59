package storage

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func TestFSStoreRoundTrip(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	key, err := s.Put("exams/2024/paper.pdf", strings.NewReader("%PDF-1.4 body"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if key != "exams/2024/paper.pdf" {
		t.Errorf("key = %q", key)
	}

	rc, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "%PDF-1.4 body" {
		t.Errorf("content = %q", data)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(key); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist after delete, got %v", err)
	}
	if err := s.Delete(key); err != nil {
		t.Errorf("deleting a missing blob should succeed, got %v", err)
	}
}

func TestFSStoreKeys(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}

	if _, err := s.Put("", strings.NewReader("x")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("empty key: expected ErrInvalidKey, got %v", err)
	}

	key, err := s.Put("../../escape.pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if key != "escape.pdf" {
		t.Errorf("traversal key should be confined to the store, got %q", key)
	}
}

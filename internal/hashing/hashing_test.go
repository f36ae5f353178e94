package hashing_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/picfort/picfort/internal/hashing"
)

func TestStream(t *testing.T) {
	t.Parallel()

	sums, n, err := hashing.Stream(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if n != 11 {
		t.Errorf("n = %d, want 11", n)
	}
	if sums.MD5 != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("MD5 = %q", sums.MD5)
	}
	if sums.SHA1 != "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed" {
		t.Errorf("SHA1 = %q", sums.SHA1)
	}
}

func TestStreamEmpty(t *testing.T) {
	t.Parallel()

	sums, n, err := hashing.Stream(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if n != 0 {
		t.Errorf("n = %d, want 0", n)
	}
	if sums.MD5 != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("MD5 = %q", sums.MD5)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk gone")
}

func TestStreamReadError(t *testing.T) {
	t.Parallel()

	if _, _, err := hashing.Stream(failingReader{}); err == nil {
		t.Fatal("expected error from failing reader")
	}
}

func TestStreamFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "blob")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	sums, n, err := hashing.Stream(f)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if n != 11 || sums.SHA1 != "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed" {
		t.Errorf("Stream = (%d, %q)", n, sums.SHA1)
	}
}

package ftpfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/picfort/picfort/internal/config"
)

type fakeConn struct {
	// storFailures is the number of initial Stor calls that fail before
	// transfers start succeeding.
	storFailures int
	storErr      error
	deleteErr    error
	stored       []string
	deleted      []string
	madeDirs     []string
}

func (f *fakeConn) Login(_, _ string) error { return nil }

func (f *fakeConn) MakeDir(path string) error {
	f.madeDirs = append(f.madeDirs, path)
	return nil
}

func (f *fakeConn) Stor(path string, r io.Reader) error {
	if f.storFailures > 0 {
		f.storFailures--
		return errors.New("426 transfer aborted")
	}
	if f.storErr != nil {
		return f.storErr
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	f.stored = append(f.stored, path)
	return nil
}

func (f *fakeConn) Delete(path string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, path)
	return nil
}

func (f *fakeConn) Quit() error { return nil }

func testAdapter(t *testing.T, c *fakeConn, dials *int) *Adapter {
	t.Helper()
	a := NewAdapter(config.FTPStorageConfig{
		Host:      "ftp.example.com",
		Username:  "u",
		Password:  "p",
		Directory: "images",
		Domain:    "https://img.example.com",
		Retries:   3,
	}, nil)
	a.retryDelay = time.Millisecond
	a.dial = func(_ context.Context) (conn, error) {
		*dials++
		return c, nil
	}
	return a
}

func tempFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "x.png")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPut(t *testing.T) {
	t.Parallel()

	c := &fakeConn{}
	var dials int
	a := testAdapter(t, c, &dials)

	res, err := a.Put(context.Background(), tempFile(t), "2025/03/07/x.png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res.URL != "https://img.example.com/images/2025/03/07/x.png" {
		t.Errorf("URL = %q", res.URL)
	}
	if res.Ref != "images/2025/03/07/x.png" {
		t.Errorf("Ref = %q", res.Ref)
	}
	if dials != 1 {
		t.Errorf("dials = %d, want 1", dials)
	}
	if len(c.madeDirs) == 0 || c.madeDirs[len(c.madeDirs)-1] != "images/2025/03/07" {
		t.Errorf("madeDirs = %v", c.madeDirs)
	}
}

func TestPutRetriesThreeTimes(t *testing.T) {
	t.Parallel()

	c := &fakeConn{storErr: errors.New("broken pipe")}
	var dials int
	a := testAdapter(t, c, &dials)

	if _, err := a.Put(context.Background(), tempFile(t), "x.png"); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if dials != 3 {
		t.Errorf("dials = %d, want 3", dials)
	}
}

func TestPutSucceedsOnThirdAttempt(t *testing.T) {
	t.Parallel()

	c := &fakeConn{storFailures: 2}
	var dials int
	a := testAdapter(t, c, &dials)

	res, err := a.Put(context.Background(), tempFile(t), "2025/03/07/x.png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if dials != 3 {
		t.Errorf("dials = %d, want 3", dials)
	}
	if len(c.stored) != 1 || c.stored[0] != "images/2025/03/07/x.png" {
		t.Errorf("stored = %v, want one remote file", c.stored)
	}
	if res.Ref != "images/2025/03/07/x.png" {
		t.Errorf("Ref = %q", res.Ref)
	}
}

func TestDeleteRetriesAndSucceeds(t *testing.T) {
	t.Parallel()

	c := &fakeConn{}
	var dials int
	a := testAdapter(t, c, &dials)

	if err := a.Delete(context.Background(), "images/x.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(c.deleted) != 1 || c.deleted[0] != "images/x.png" {
		t.Errorf("deleted = %v", c.deleted)
	}
}

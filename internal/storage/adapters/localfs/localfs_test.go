package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/picfort/picfort/internal/config"
)

func TestPutAndDelete(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	spool := filepath.Join(t.TempDir(), "spool.png")
	if err := os.WriteFile(spool, []byte("pixels"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := NewAdapter(config.LocalStorageConfig{Dir: root}, "https://img.example.com/i", nil)

	res, err := a.Put(context.Background(), spool, "2025/03/07/x.png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res.URL != "https://img.example.com/i/2025/03/07/x.png" {
		t.Errorf("URL = %q", res.URL)
	}
	if res.Ref != "2025/03/07/x.png" {
		t.Errorf("Ref = %q", res.Ref)
	}

	stored := filepath.Join(root, "2025", "03", "07", "x.png")
	data, err := os.ReadFile(stored)
	if err != nil {
		t.Fatalf("stored file: %v", err)
	}
	if string(data) != "pixels" {
		t.Errorf("stored content = %q", data)
	}
	if _, err := os.Stat(spool); !os.IsNotExist(err) {
		t.Error("spool file should be moved away")
	}

	if err := a.Delete(context.Background(), res.Ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Error("stored file should be removed")
	}

	// Deleting a missing object is not an error.
	if err := a.Delete(context.Background(), res.Ref); err != nil {
		t.Errorf("Delete of missing object: %v", err)
	}
}

package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFile(t *testing.T) {
	t.Run("Creates Missing Directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", "out.json")
		if err := WriteFile(path, []byte("[]"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if string(data) != "[]" {
			t.Errorf("expected [], got %q", data)
		}
	})

	t.Run("Replaces Existing Content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.json")
		os.WriteFile(path, []byte("old content that is longer"), 0o644)

		if err := WriteFile(path, []byte("new"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		data, _ := os.ReadFile(path)
		if string(data) != "new" {
			t.Errorf("expected new, got %q", data)
		}
	})

	t.Run("Leaves No Temp Files", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "out.json")
		for i := 0; i < 3; i++ {
			if err := WriteFile(path, []byte("x"), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 1 {
			t.Errorf("expected only the target file, found %d entries", len(entries))
		}
	})
}

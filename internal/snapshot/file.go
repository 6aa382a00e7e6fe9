package snapshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/odindexer/internal/tree"
)

// Save writes the snapshot of t to path. The file is written to a temporary
// file in the same directory and renamed into place, so a crash never
// leaves a half-written snapshot behind.
func Save(path string, t *tree.Tree, opts ...Option) (err error) {
	data, err := Serialize(t, opts...)
	if err != nil {
		return err
	}

	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for snapshot: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to write snapshot to disk: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}

// Load reads and restores the snapshot at path.
func Load(path string, opts ...Option) (*tree.Tree, []tree.NodeID, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return Restore(data, opts...)
}

// LoadHeader reads only the header of the snapshot at path.
func LoadHeader(path string) (Header, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Header{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return ReadHeader(data)
}

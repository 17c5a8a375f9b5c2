package tempfiles

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// TempFiles hands out unique temporary filenames inside Root.
// Files are owned by the caller, who must Remove them before returning.
// Nothing is cleaned up in the background.
type TempFiles struct {
	Root string
}

// Creates the root directory, and wipes any files left behind by a previous process
func NewTempFiles(root string) (*TempFiles, error) {
	if err := os.MkdirAll(root, 0777); err != nil {
		return nil, fmt.Errorf("Failed to create temporary file directory '%v': %w", root, err)
	}

	all, _ := filepath.Glob(filepath.Join(root, "*"))
	for _, fn := range all {
		os.Remove(fn)
	}
	return &TempFiles{
		Root: root,
	}, nil
}

// Get a new temporary filename, with the given extension (eg ".mp4")
func (t *TempFiles) Get(ext string) string {
	return filepath.Join(t.Root, uuid.NewString()+ext)
}

// Remove deletes a file that was handed out by Get. A file that does not exist is not an error.
func (t *TempFiles) Remove(filename string) error {
	err := os.Remove(filename)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Count returns the number of files currently inside Root
func (t *TempFiles) Count() int {
	all, _ := filepath.Glob(filepath.Join(t.Root, "*"))
	return len(all)
}

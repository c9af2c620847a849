package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CanopyHQ/causalgraph/internal/relation"
)

// WriteJSON writes rs to path as an indented JSON array. The data goes to a
// temporary file in the same directory first and is renamed into place, so
// a failed write never leaves a partial result behind.
func WriteJSON(path string, rs []relation.Scored) error {
	if rs == nil {
		rs = []relation.Scored{}
	}
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return &OutputError{Path: path, Err: fmt.Errorf("encode: %w", err)}
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &OutputError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &OutputError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &OutputError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &OutputError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &OutputError{Path: path, Err: err}
	}
	return nil
}

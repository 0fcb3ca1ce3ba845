package pixel

import (
	"fmt"
	"path/filepath"
)

// ConvertToAbsolute returns an absolute path for p, treating a relative p as
// relative to baseDir.
func ConvertToAbsolute(p string, baseDir string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	abs, err := filepath.Abs(filepath.Join(baseDir, p))
	if err != nil {
		return "", fmt.Errorf("unable to convert %q relative to %q: %v", p, baseDir, err)
	}
	return abs, nil
}

package file

import (
	"path/filepath"
	"strings"
)

// ReplaceExt swaps the extension of the last path element for ext; a
// missing leading dot is added. Dotfiles such as ".env" have no extension.
func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	base := filepath.Base(path)
	if old := filepath.Ext(base); old != "" && old != base {
		base = strings.TrimSuffix(base, old)
	}
	return filepath.Join(filepath.Dir(path), base+ext)
}

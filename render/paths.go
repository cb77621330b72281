package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/zenibako/roster-render/templates"
)

// PathBuilder derives per-entry folders and per-job file names
type PathBuilder struct {
	extension string
	mkdirAll  func(path string, perm os.FileMode) error
}

// NewPathBuilder creates a path builder using the extension of the given output template
func NewPathBuilder(tmpl templates.OutputTemplate) *PathBuilder {
	return &PathBuilder{
		extension: tmpl.Normalize().Extension,
		mkdirAll:  os.MkdirAll,
	}
}

// FolderName returns "{number}_{firstName}_{lastName}"
func (b *PathBuilder) FolderName(naming NamingTuple) string {
	return naming.Number + "_" + naming.FirstName + "_" + naming.LastName
}

// FolderFor returns the per-entry folder under root, creating it if absent.
// An existing folder is left untouched.
func (b *PathBuilder) FolderFor(root string, naming NamingTuple) (string, error) {
	folder := filepath.Join(root, b.FolderName(naming))
	if err := b.mkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", folder, err)
	}
	log.Debug("Output folder ready", "folder", folder)
	return folder, nil
}

// FileFor returns "{folder}/{compositionName}_Option{index}{ext}". It never
// checks for existing files.
func (b *PathBuilder) FileFor(folder, compName string, index int) string {
	return filepath.Join(folder, compName+"_Option"+strconv.Itoa(index)+b.extension)
}

// Package fs provides the filesystems reports are written to.
package fs

import (
	"github.com/spf13/afero"
)

// NewReal returns the operating system filesystem.
func NewReal() afero.Fs {
	return afero.NewOsFs()
}

// NewDryRun returns a filesystem that reads from the real filesystem and
// keeps every write in memory.
func NewDryRun() afero.Fs {
	return NewDryRunOver(afero.NewOsFs())
}

// NewDryRunOver layers an in-memory filesystem over a read-only base.
// Uses CopyOnWriteFs so files opened for appending start with their base
// content and reads see earlier writes.
func NewDryRunOver(base afero.Fs) afero.Fs {
	layer := afero.NewMemMapFs()
	return afero.NewCopyOnWriteFs(afero.NewReadOnlyFs(base), layer)
}

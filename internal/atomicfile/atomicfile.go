// Package atomicfile replaces whole files via a temp file renamed over
// the destination, so a reader never observes a partially written file.
// It is the write path shared by the config file, loose refs and the
// index file.
package atomicfile

import (
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Write writes data to a temp file in p's directory and renames it over
// p, creating parent directories as needed.
func Write(fs billy.Filesystem, p string, data []byte) error {
	dir := path.Dir(p)
	if dir != "" && dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	tmp, err := util.TempFile(fs, dir, path.Base(p)+"-")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fs.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(name)
		return err
	}

	if err := fs.Rename(name, p); err != nil {
		fs.Remove(name)
		return err
	}
	return nil
}

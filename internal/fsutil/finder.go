// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// FindFilesByExtension returns every file under rootPath whose name ends with
// extension, sorted by path. rootPath may also name a single file, which must
// carry the extension.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		} else if path == rootPath {
			return fmt.Errorf("%s is not a %s file", path, extension)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}

package migrations

import (
	"fmt"
	"io/fs"
	"path"
	"slices"
)

// sqlFiles lists the .sql files under dir in apply order.
func sqlFiles(fsys fs.FS, dir string) ([]string, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list %s migrations: %w", dir, err)
	}
	slices.Sort(files)
	return files, nil
}

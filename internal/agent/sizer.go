package agent

import (
	"context"
	"io/fs"
	"path/filepath"
)

// SizeResult totals one assessment walk.
type SizeResult struct {
	TotalBytes int64
	TotalFiles int64
}

// AssessSize walks the given paths and totals regular files. Unreadable
// entries are skipped so one bad directory does not sink the estimate; a
// cancelled context stops the walk.
func AssessSize(ctx context.Context, paths []string) (*SizeResult, error) {
	res := &SizeResult{}
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
			res.TotalFiles++
			res.TotalBytes += info.Size()
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/edvin/backhaul/internal/model"
)

// Result totals one packing run. Skipped counts files excluded by filters or
// unreadable at walk time; TotalBytes is the uncompressed size of what went in.
type Result struct {
	FilesProcessed int64
	FilesSkipped   int64
	TotalBytes     int64
}

// Pack writes a gzipped tarball of the given sources to w. Each source is
// rooted in the archive under its base name so restores keep directories
// apart. Include and exclude globs match against the path relative to the
// source root; exclude wins.
func Pack(w io.Writer, sources []model.BackupSource) (*Result, error) {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	res := &Result{}
	for _, src := range sources {
		if err := packSource(tw, src, res); err != nil {
			return nil, fmt.Errorf("pack %s: %w", src.Path, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return res, nil
}

func packSource(tw *tar.Writer, src model.BackupSource, res *Result) error {
	root := filepath.Clean(src.Path)
	base := filepath.Base(root)

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A vanished or unreadable entry is skipped, not fatal.
			res.FilesSkipped++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !selected(rel, src.Include, src.Exclude) {
			res.FilesSkipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			res.FilesSkipped++
			return nil
		}
		if !info.Mode().IsRegular() {
			res.FilesSkipped++
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(base, rel))

		// Open before committing the header: once WriteHeader runs, the
		// stream owes hdr.Size bytes and a skip would corrupt it.
		f, err := os.Open(path)
		if err != nil {
			res.FilesSkipped++
			return nil
		}
		if err := tw.WriteHeader(hdr); err != nil {
			f.Close()
			return err
		}
		n, err := io.Copy(tw, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("copy %s: %w", path, err)
		}

		res.FilesProcessed++
		res.TotalBytes += n
		return nil
	})
}

// selected applies include and exclude globs to a slash-separated relative
// path. Globs match the full relative path or the file's base name.
func selected(rel string, include, exclude []string) bool {
	rel = filepath.ToSlash(rel)
	for _, pat := range exclude {
		if globMatch(pat, rel) {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pat := range include {
		if globMatch(pat, rel) {
			return true
		}
	}
	return false
}

func globMatch(pattern, rel string) bool {
	if ok, _ := filepath.Match(pattern, rel); ok {
		return true
	}
	ok, _ := filepath.Match(pattern, filepath.Base(rel))
	return ok
}

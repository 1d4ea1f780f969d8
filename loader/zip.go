package loader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/mholt/archives"
)

// extractZip unpacks a ZIP upload into dst. Entry names are sanitized so
// an archive cannot write outside the destination tree.
func extractZip(ctx context.Context, src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "loader: failed to open archive")
	}
	defer f.Close()

	format := archives.Zip{}
	return format.Extract(ctx, f, func(ctx context.Context, file archives.FileInfo) error {
		target, err := sanitizeArchivePath(dst, file.NameInArchive)
		if err != nil {
			return err
		}
		if file.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		in, err := file.Open()
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}

func sanitizeArchivePath(dst, name string) (string, error) {
	target := filepath.Join(dst, filepath.Clean("/"+name))
	if !strings.HasPrefix(target, filepath.Clean(dst)+string(os.PathSeparator)) && target != filepath.Clean(dst) {
		return "", errors.New("loader: archive entry escapes destination directory")
	}
	return target, nil
}

// promoteSingleRoot collapses the common author habit of wrapping the
// whole module in one top-level folder inside the archive. When the
// extracted tree contains exactly one entry and it is a directory, that
// directory becomes the module root.
func promoteSingleRoot(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return dir
	}
	return filepath.Join(dir, entries[0].Name())
}

// copyDir recursively copies a directory tree. Used instead of a rename
// because the scratch space and the modules root may sit on different
// filesystems.
func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}

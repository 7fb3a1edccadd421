// Package file provides file utility functions.
package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/slok/comicsub/internal/conventions"
)

// CopyDir copies a directory tree keeping the file modes, symlinks are
// copied as links.
func CopyDir(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}

// StageExecutable copies the directory of an executable into a new temp
// directory and returns the path of the staged executable plus a cleanup
// function that removes the staged copy.
func StageExecutable(ctx context.Context, executable string) (string, func() error, error) {
	src := filepath.Dir(executable)
	tmp, err := os.MkdirTemp("", conventions.StageDirPattern)
	if err != nil {
		return "", nil, fmt.Errorf("could not create stage dir: %w", err)
	}
	cleanup := func() error { return os.RemoveAll(tmp) }

	dst := filepath.Join(tmp, filepath.Base(src))
	if err := CopyDir(ctx, src, dst); err != nil {
		_ = cleanup()
		return "", nil, fmt.Errorf("could not copy %s: %w", src, err)
	}

	staged := filepath.Join(dst, filepath.Base(executable))
	if err := os.Chmod(staged, 0o755); err != nil {
		_ = cleanup()
		return "", nil, fmt.Errorf("could not make %s executable: %w", staged, err)
	}

	return staged, cleanup, nil
}

package program

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/slotjit/internal/ctxlog"
)

// ResolvePath takes a path and returns every .hcl file it names. A file path
// yields itself; a directory is scanned recursively in lexical order.
func ResolvePath(ctx context.Context, path string) ([]string, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Resolving program path.", "path", path)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("program path not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("error accessing path %s: %w", path, err)
	}

	if !info.IsDir() {
		if filepath.Ext(path) != ".hcl" {
			return nil, fmt.Errorf("specified file is not an .hcl file: %s", path)
		}
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() && filepath.Ext(p) == ".hcl" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("Resolved program files.", "path", path, "count", len(files))
	return files, nil
}

// ReadPath resolves path and returns the contents of each file, keyed in the
// same order as the returned names.
func ReadPath(ctx context.Context, path string) ([]string, [][]byte, error) {
	files, err := ResolvePath(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	srcs := make([][]byte, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read program file '%s': %w", f, err)
		}
		srcs = append(srcs, b)
	}
	return files, srcs, nil
}

// Package corpus locates ingestible documents on disk.
package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"corpus-ai/internal/contextutil"
	"corpus-ai/internal/extract"
)

// Scanner walks a corpus directory and lists every supported document.
// It satisfies the ingestion pipeline's scanner dependency.
type Scanner struct {
	root string
}

// NewScanner creates a Scanner rooted at the given directory.
func NewScanner(root string) *Scanner {
	return &Scanner{root: root}
}

// Scan walks the corpus root and returns the paths of all supported files
// in walk order. Hidden directories are skipped; unsupported files are
// ignored rather than reported.
func (s *Scanner) Scan(ctx context.Context) ([]string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("accessing %s: %w", path, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if _, err := extract.KindFromPath(path); err != nil {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning corpus %s: %w", s.root, err)
	}

	logger.DebugContext(ctx, "corpus scan finished", "root", s.root, "files", len(paths))
	return paths, nil
}

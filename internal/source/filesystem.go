package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
)

// FilesystemProvider lists units from a local directory. Repository IDs are
// either plain paths or file:// URLs.
type FilesystemProvider struct {
	logger *slog.Logger
}

// NewFilesystemProvider creates a provider for local directories.
func NewFilesystemProvider(logger *slog.Logger) *FilesystemProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesystemProvider{
		logger: logger.With(slog.String("component", "fs_source")),
	}
}

// ListUnits walks the directory and returns every matching file.
func (p *FilesystemProvider) ListUnits(
	ctx context.Context,
	repositoryID string,
	filter Filter,
) ([]Unit, error) {
	matcher, err := filter.Compile()
	if err != nil {
		return nil, err
	}

	root := strings.TrimPrefix(repositoryID, "file://")
	info, err := os.Stat(root)
	if err != nil {
		return nil, unavailable(repositoryID, "stat", err)
	}
	if !info.IsDir() {
		return nil, unavailable(repositoryID, "stat", fmt.Errorf("%s is not a directory", root))
	}

	fsys := os.DirFS(root)
	var units []Unit
	walkErr := doublestar.GlobWalk(fsys, "**", func(key string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		category, ok := matcher.Match(key)
		if !ok {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if !matcher.AllowSize(fi.Size()) {
			p.logger.Debug("skipping oversized unit",
				slog.String("unit_key", key),
				slog.Int64("size", fi.Size()))
			return nil
		}
		data, err := fs.ReadFile(fsys, key)
		if err != nil {
			return err
		}
		if !utf8.Valid(data) {
			p.logger.Debug("skipping non-utf8 unit", slog.String("unit_key", key))
			return nil
		}
		units = append(units, Unit{
			Key:      key,
			Category: category,
			Content:  string(data),
			Size:     fi.Size(),
		})
		return nil
	}, doublestar.WithFilesOnly())
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, walkErr
		}
		return nil, unavailable(repositoryID, "walk", walkErr)
	}

	sort.Slice(units, func(i, j int) bool { return units[i].Key < units[j].Key })
	p.logger.Debug("listed units",
		slog.String("repository_id", repositoryID),
		slog.Int("count", len(units)))
	return units, nil
}

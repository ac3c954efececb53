package githubstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultCleanupTargets are the top-level entries the application writes to
// its data repository.
var DefaultCleanupTargets = []string{"papers.json", "public-papers.json", "debug-test.json", "pdfs", "thumbnails"}

// Cleanup deletes the named top-level entries, files or directories, and
// returns the names it actually removed. Absent names are skipped.
func (c *Client) Cleanup(ctx context.Context, names []string) ([]string, error) {
	root, err := c.List(ctx, "")
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Entry, len(root))
	for _, e := range root {
		byName[e.Name] = e
	}

	var removed []string
	var errs []error
	for _, name := range names {
		e, ok := byName[name]
		if !ok {
			log.Debug().Str("name", name).Msg("cleanup: not present, skipping")
			continue
		}

		switch e.Type {
		case "dir":
			n, err := c.DeleteDir(ctx, e.Path)
			log.Info().Str("dir", e.Path).Int("files", n).Msg("cleanup: directory removed")
			if err != nil {
				errs = append(errs, fmt.Errorf("cleanup %s failed: %w", name, err))
				continue
			}
		default:
			if err := c.limiter.Wait(ctx); err != nil {
				return removed, err
			}
			if err := c.Delete(ctx, e.Path, "Delete "+e.Path, e.SHA); err != nil {
				errs = append(errs, fmt.Errorf("cleanup %s failed: %w", name, err))
				continue
			}
			log.Info().Str("file", e.Path).Msg("cleanup: file removed")
		}
		removed = append(removed, name)
	}
	return removed, errors.Join(errs...)
}

// Bootstrap writes the data repository skeleton and returns the paths it
// created. Files that already exist are left alone.
func (c *Client) Bootstrap(ctx context.Context, now time.Time) ([]string, error) {
	var created []string
	for _, f := range skeletonFiles(now) {
		sha, err := c.SHA(ctx, f.path)
		if err != nil {
			return created, err
		}
		if sha != "" {
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return created, err
		}
		if _, err := c.Put(ctx, f.path, []byte(f.content), "Add "+f.path, ""); err != nil {
			return created, fmt.Errorf("bootstrap %s failed: %w", f.path, err)
		}
		created = append(created, f.path)
	}
	return created, nil
}

type skeletonFile struct {
	path    string
	content string
}

func skeletonFiles(now time.Time) []skeletonFile {
	return []skeletonFile{
		{"README.md", `# Literature Manager Data Repository

Central storage for the literature manager.

    README.md           this file
    CHANGELOG.md        history of the repository layout
    papers.json         paper metadata collection
    pdfs/               uploaded PDF files
    thumbnails/         first-page previews

Files in this repository are written by the application.
`},
		{"CHANGELOG.md", fmt.Sprintf(`# Changelog

## [1.0.0] - %s

### Added
- Initial repository layout
- pdfs/ directory for PDF storage
- thumbnails/ directory for previews
`, now.Format("2006-01-02"))},
		{"pdfs/README.md", `# PDF files

Uploaded papers, named paper-{id}-{timestamp}.pdf. Maximum size 100 MB.

Managed by the application; do not edit by hand.
`},
		{"thumbnails/README.md", `# Thumbnails

First-page previews, JPEG at quality 85, at most 400x300 pixels, named
paper-{id}-{timestamp}.jpg.

Managed by the application; do not edit by hand.
`},
	}
}

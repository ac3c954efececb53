package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"literature-manager/internal/app"
	"literature-manager/internal/model"
	"literature-manager/internal/pkg/pdfextract"
	"literature-manager/internal/syncer"
	"literature-manager/internal/thumbnail"
)

type uploadResult struct {
	File    string       `json:"file"`
	Success bool         `json:"success"`
	Paper   *model.Paper `json:"paper,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func (c *cli) uploadCmd() *cobra.Command {
	var md app.Metadata
	cmd := &cobra.Command{
		Use:   "upload <pdf>...",
		Short: "Upload PDFs to the shared collection",
		Long: `Upload one or more PDFs. Metadata flags apply to every file; the title
defaults to the file name. A file that fails does not stop the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if md.Title != "" && len(args) > 1 {
				return fmt.Errorf("--title can only be used with a single file")
			}
			results, err := c.upload(cmd.Context(), args, md)
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if !r.Success {
					failed++
				}
			}
			if err := c.output(cmd.OutOrStdout(), results, func(w io.Writer) {
				for _, r := range results {
					if r.Success {
						fmt.Fprintf(w, "uploaded %s as paper %d\n", r.File, r.Paper.ID)
					} else {
						fmt.Fprintf(w, "failed   %s: %s\n", r.File, r.Error)
					}
				}
			}); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d upload(s) failed", failed, len(results))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&md.Title, "title", "", "paper title")
	f.StringVar(&md.Authors, "authors", "", "comma-separated authors")
	f.IntVar(&md.Year, "year", 0, "publication year")
	f.StringVar(&md.Journal, "journal", "", "journal or venue")
	f.StringVar(&md.ResearchArea, "area", "", "research area")
	f.StringVar(&md.Methodology, "methodology", "", "methodology")
	f.StringVar(&md.StudyType, "study-type", "", "study type")
	f.StringVar(&md.Keywords, "keywords", "", "comma-separated keywords")
	f.IntVar(&md.Citations, "citations", 0, "citation count")
	f.StringVar(&md.Abstract, "abstract", "", "abstract")
	f.StringVar(&md.DOI, "doi", "", "DOI")
	return cmd
}

// appender is implemented by backends that can extend the live collection
// instead of replacing it from a possibly cached snapshot.
type appender interface {
	LoadLatest(ctx context.Context) ([]model.Paper, error)
	AppendPapers(ctx context.Context, papers []model.Paper) ([]model.Paper, error)
}

// upload pushes each file through SyncPaper and then records the new papers
// in the collection. Backends that implement appender get an append against
// the current remote content; others get one SyncAllData of the extended list.
func (c *cli) upload(ctx context.Context, paths []string, md app.Metadata) ([]uploadResult, error) {
	remote, canAppend := c.remote.(appender)
	var (
		existing []model.Paper
		err      error
	)
	if canAppend {
		existing, err = remote.LoadLatest(ctx)
	} else {
		existing, err = c.remote.LoadSharedData(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load shared collection failed: %w", err)
	}
	renderer := thumbnail.NewCommandRenderer(c.cfg.Thumbnail)

	id := nextID(existing)
	results := make([]uploadResult, 0, len(paths))
	var (
		added []model.Paper
		slots []int
	)
	for _, p := range paths {
		paper, err := c.uploadOne(ctx, p, id, md, renderer)
		if err != nil {
			results = append(results, uploadResult{File: p, Error: err.Error()})
			continue
		}
		id = max(id, paper.ID) + 1
		added = append(added, *paper)
		slots = append(slots, len(results))
		results = append(results, uploadResult{File: p, Success: true, Paper: paper})
	}
	if len(added) == 0 {
		return results, nil
	}

	if !canAppend {
		if err := c.remote.SyncAllData(ctx, append(existing, added...)); err != nil {
			return results, fmt.Errorf("update shared collection failed: %w", err)
		}
		return results, nil
	}
	stored, err := remote.AppendPapers(ctx, added)
	if err != nil {
		return results, fmt.Errorf("update shared collection failed: %w", err)
	}
	for i, slot := range slots {
		paper := stored[i]
		results[slot].Paper = &paper
	}
	return results, nil
}

func (c *cli) uploadOne(ctx context.Context, path string, id int, md app.Metadata, renderer *thumbnail.CommandRenderer) (*model.Paper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !pdfextract.IsPDF(data) {
		return nil, pdfextract.ErrNotPDF
	}
	if limit := c.cfg.MaxFileSize(); int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d MB", limit>>20)
	}

	paper := app.BuildPaper(filepath.Base(path), md, time.Now().UTC())
	paper.ID = id
	paper.FileSize = int64(len(data))
	if pages, err := pdfextract.PageCount(data); err == nil {
		paper.PageCount = pages
	}

	file := &syncer.File{Name: filepath.Base(path), Data: data}
	thumb, err := renderer.Render(ctx, path)
	switch {
	case err == nil:
		file.Thumbnail = thumb
	case !errors.Is(err, thumbnail.ErrDisabled):
		log.Warn().Err(err).Str("file", path).Msg("thumbnail generation failed")
	}

	return c.remote.SyncPaper(ctx, paper, file)
}

func readPapersFile(path string) ([]model.Paper, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc model.PapersDocument
	if err := json.Unmarshal(raw, &doc); err == nil && doc.Papers != nil {
		return doc.Papers, nil
	}
	var papers []model.Paper
	if err := json.Unmarshal(raw, &papers); err != nil {
		return nil, fmt.Errorf("%s is neither a papers document nor a paper array: %w", path, err)
	}
	return papers, nil
}

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"literature-manager/internal/githubstore"
	"literature-manager/internal/model"
	"literature-manager/internal/search"
)

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the selected backend and its configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := c.remote.Status()
			return c.output(cmd.OutOrStdout(), st, func(w io.Writer) {
				fmt.Fprintf(w, "backend:    %s\n", st.Backend)
				fmt.Fprintf(w, "configured: %t\n", st.Configured)
				fmt.Fprintf(w, "target:     %s\n", st.Target)
				if st.DataURL != "" {
					fmt.Fprintf(w, "data:       %s\n", st.DataURL)
				}
			})
		},
	}
}

func (c *cli) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the backend is reachable and the credentials work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := c.remote.TestConnection(cmd.Context())
			if err != nil {
				return err
			}
			return c.output(cmd.OutOrStdout(), map[string]string{"status": "ok", "message": msg}, func(w io.Writer) {
				fmt.Fprintln(w, msg)
			})
		},
	}
}

func (c *cli) pullCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the shared collection",
		Long: `Download the shared collection as a papers document. With --out the document
is written to a file, otherwise it is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			papers, err := c.remote.LoadSharedData(cmd.Context())
			if err != nil {
				return err
			}
			doc := model.NewPapersDocument(papers, time.Now().UTC())
			if out == "" {
				return c.output(cmd.OutOrStdout(), doc, func(w io.Writer) { printPapers(w, papers) })
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s failed: %w", out, err)
			}
			defer f.Close()
			if err := outputJSON(f, doc); err != nil {
				return fmt.Errorf("write %s failed: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d paper(s) to %s\n", len(papers), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the document to this file")
	return cmd
}

func (c *cli) pushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <papers.json>",
		Short: "Replace the shared collection with a local papers document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			papers, err := readPapersFile(args[0])
			if err != nil {
				return err
			}
			if err := c.remote.SyncAllData(cmd.Context(), papers); err != nil {
				return err
			}
			return c.output(cmd.OutOrStdout(), map[string]int{"pushed": len(papers)}, func(w io.Writer) {
				fmt.Fprintf(w, "pushed %d paper(s)\n", len(papers))
			})
		},
	}
}

func (c *cli) searchCmd() *cobra.Command {
	var filter search.Filter
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search the shared collection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				filter.Search = args[0]
			}
			papers, err := c.remote.Search(cmd.Context(), filter)
			if err != nil {
				return err
			}
			result := map[string]any{"papers": papers, "totalCount": len(papers)}
			return c.output(cmd.OutOrStdout(), result, func(w io.Writer) { printPapers(w, papers) })
		},
	}
	cmd.Flags().StringVar(&filter.Category, "category", "", "research area")
	cmd.Flags().IntVar(&filter.Year, "year", 0, "publication year")
	cmd.Flags().StringVar(&filter.Author, "author", "", "author name substring")
	return cmd
}

func (c *cli) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> key=value...",
		Short: "Edit fields of a shared paper",
		Long: `Edit fields of a shared paper. Values are parsed as JSON when possible, so
year=2021 stores a number; authors and keywords accept comma-separated lists.

Example:
  litctl update 12 title="Attention Is All You Need" year=2017 keywords=nlp,transformers`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			patch, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			paper, err := c.remote.UpdatePaper(cmd.Context(), id, patch)
			if err != nil {
				return err
			}
			return c.output(cmd.OutOrStdout(), paper, func(w io.Writer) {
				fmt.Fprintf(w, "updated paper %d: %s\n", paper.ID, paper.Title)
			})
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a paper and its files from the shared collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			paper, err := c.remote.DeletePaper(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.output(cmd.OutOrStdout(), paper, func(w io.Writer) {
				fmt.Fprintf(w, "deleted paper %d: %s\n", paper.ID, paper.Title)
			})
		},
	}
}

func (c *cli) cleanupCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "cleanup [name...]",
		Short: "Delete the collection files from the GitHub repository",
		Long: `Delete the collection's top-level files and folders from the GitHub
repository. Without arguments the default set is removed: papers.json,
public-papers.json, debug-test.json, pdfs/ and thumbnails/.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gh, err := c.github()
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("cleanup deletes remote files permanently, rerun with --yes")
			}
			names := args
			if len(names) == 0 {
				names = githubstore.DefaultCleanupTargets
			}
			removed, err := gh.Client().Cleanup(cmd.Context(), names)
			if err != nil {
				return err
			}
			return c.output(cmd.OutOrStdout(), map[string][]string{"removed": removed}, func(w io.Writer) {
				for _, name := range removed {
					fmt.Fprintf(w, "removed %s\n", name)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

func (c *cli) initRepoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-repo",
		Short: "Create the README and folder skeleton in the GitHub repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gh, err := c.github()
			if err != nil {
				return err
			}
			created, err := gh.Client().Bootstrap(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			return c.output(cmd.OutOrStdout(), map[string][]string{"created": created}, func(w io.Writer) {
				if len(created) == 0 {
					fmt.Fprintln(w, "repository already initialised")
				}
				for _, name := range created {
					fmt.Fprintf(w, "created %s\n", name)
				}
			})
		},
	}
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid paper id %q", raw)
	}
	return id, nil
}

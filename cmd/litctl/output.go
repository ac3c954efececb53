package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"literature-manager/internal/model"
)

const titleMaxLen = 70

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// output writes v as JSON, or calls human when --human is set.
func (c *cli) output(w io.Writer, v interface{}, human func(io.Writer)) error {
	if c.human && human != nil {
		human(w)
		return nil
	}
	return outputJSON(w, v)
}

func printPapers(w io.Writer, papers []model.Paper) {
	if len(papers) == 0 {
		fmt.Fprintln(w, "no papers")
		return
	}
	for _, p := range papers {
		fmt.Fprintf(w, "%4d  %-*s  %d  %s\n", p.ID, titleMaxLen, truncate(p.Title, titleMaxLen), p.Year, strings.Join(p.Authors, ", "))
	}
	fmt.Fprintf(w, "%d paper(s)\n", len(papers))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

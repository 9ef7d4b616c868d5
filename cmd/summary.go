package main

import (
	"fmt"
	"io"

	"NewsCrawler/internal/runner"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
)

func printSummary(w io.Writer, res *runner.Result) {
	bold.Fprintln(w, "\nSummary:")
	for _, s := range res.Summaries {
		c := green
		if s.Obtained < s.Requested {
			c = yellow
		}
		c.Fprintf(w, "  %-12s %d/%d", s.Category, s.Obtained, s.Requested)
		if s.Path != "" {
			fmt.Fprintf(w, "  -> %s", s.Path)
		}
		fmt.Fprintln(w)
		if s.ListingErr != nil {
			red.Fprintf(w, "    listing failed: %v\n", s.ListingErr)
		}
		for _, u := range s.Failed {
			red.Fprintf(w, "    failed: %s\n", u)
		}
	}
	if res.WriteErr != nil {
		red.Fprintf(w, "  output errors: %v\n", res.WriteErr)
	}
	if res.ArchiveErr != nil {
		red.Fprintf(w, "  archive errors: %v\n", res.ArchiveErr)
	}

	if res.OK() {
		green.Fprintln(w, "\nAll tasks have finished successfully.")
	} else {
		yellow.Fprintln(w, "\nSome tasks failed during execution.")
	}
}

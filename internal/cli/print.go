package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rennerdo30/pacparser/internal/directive"
)

// printEntries writes entries as a table, or as JSON when asJSON is set.
func printEntries(out io.Writer, entries []directive.Entry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tKIND\tTYPE\tHOST\tPORT")
	for i, e := range entries {
		if e.IsDirect() {
			fmt.Fprintf(w, "%d\t%s\t-\t-\t-\n", i+1, e.Kind)
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, e.Kind, e.Type, e.Host, e.Port)
	}
	return w.Flush()
}

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/kapipe/internal/tui"
)

// printSummary renders a "SUMMARY: k=v ..." line as a labelled list.
func printSummary(w io.Writer, summary string) {
	idx := strings.Index(summary, "SUMMARY:")
	if idx == -1 {
		return
	}

	fmt.Fprintln(w, tui.SubtitleStyle.Render("  Session Summary:"))
	for _, part := range strings.Fields(summary[idx+len("SUMMARY:"):]) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		value := tui.ValueStyle.Render(kv[1])
		if kv[0] == "errors" && kv[1] != "0" {
			value = tui.ErrorStyle.Render(kv[1])
		}
		fmt.Fprintf(w, "    %s: %s\n", tui.LabelStyle.Render(kv[0]), value)
	}
	fmt.Fprintln(w)
}

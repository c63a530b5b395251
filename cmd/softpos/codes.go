package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/srg/softpos/pkg/respcode"
)

var codesJSON bool

var codesCmd = &cobra.Command{
	Use:   "codes [code...]",
	Short: "Explain payment response codes",
	Long: `Lists the response code table used to explain declined payments. With
arguments, only the given codes are explained; unknown codes are reported as such.`,
	Example: `  softpos codes
  softpos codes 05 51`,
	RunE: runCodes,
}

func init() {
	codesCmd.Flags().BoolVar(&codesJSON, "json", false, "Print the table as JSON")
}

type codeEntry struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Known   bool   `json:"known"`
}

func runCodes(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	var entries []codeEntry
	if len(args) == 0 {
		for _, e := range respcode.Entries() {
			entries = append(entries, codeEntry{Code: e.Code, Message: e.Message, Known: true})
		}
	} else {
		for _, code := range args {
			text, known := respcode.Lookup(code)
			if !known {
				text = "unknown response code"
			}
			entries = append(entries, codeEntry{Code: code, Message: text, Known: known})
		}
	}

	out := cmd.OutOrStdout()
	if codesJSON {
		return writeJSON(out, entries)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.Code, e.Message)
	}
	return w.Flush()
}

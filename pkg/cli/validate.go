package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/getmockd/stubd/pkg/config"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file|dir>...",
		Short: "Validate mapping documents without starting a server",
		Long: `Validate parses every mapping document given, directly or by directory,
and compiles each mapping exactly as the server would. Nothing is served.`,
		Example: `  stubd validate ./__admin/mappings
  stubd validate hello.json todo.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.OutOrStdout(), args)
		},
	}
}

// errInvalidDocuments is returned when any document fails validation.
var errInvalidDocuments = errors.New("invalid mapping documents")

func runValidate(out io.Writer, paths []string) error {
	var docs []config.RawDocument
	for _, p := range paths {
		found, err := collectDocuments(p)
		if err != nil {
			return err
		}
		docs = append(docs, found...)
	}

	report := config.LoadDocuments(docs)
	failed := make(map[string]error, len(report.Errors))
	for _, e := range report.Errors {
		failed[e.Source] = e.Err
	}
	for _, d := range docs {
		if err, ok := failed[d.Source]; ok {
			fmt.Fprintf(out, "FAIL %s: %v\n", d.Source, err)
			continue
		}
		fmt.Fprintf(out, "ok   %s\n", d.Source)
	}
	fmt.Fprintf(out, "%d documents, %d mappings, %d invalid\n", report.Documents, len(report.Mappings), len(report.Errors))

	if len(report.Errors) > 0 {
		return errInvalidDocuments
	}
	return nil
}

func collectDocuments(path string) ([]config.RawDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []config.RawDocument{{Source: path, Data: data, Format: config.FormatFromPath(path)}}, nil
	}

	files, err := config.DirSource{Dir: path}.Files()
	if err != nil {
		return nil, err
	}
	docs := make([]config.RawDocument, 0, len(files))
	for _, rel := range files {
		full := filepath.Join(path, filepath.FromSlash(rel))
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, err
		}
		docs = append(docs, config.RawDocument{Source: full, Data: data, Format: config.FormatFromPath(full)})
	}
	return docs, nil
}

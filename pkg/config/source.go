package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/getmockd/stubd/pkg/mapping"
	"github.com/getmockd/stubd/pkg/store"
)

// MappingGlob selects mapping documents below a directory.
const MappingGlob = "**/*.{json,yaml,yml}"

// DocumentParseError reports a document skipped during a load.
type DocumentParseError struct {
	Source string
	Err    error
}

func (e *DocumentParseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *DocumentParseError) Unwrap() error { return e.Err }

// LoadReport aggregates the outcome of loading several documents.
type LoadReport struct {
	// Documents counts every document read, skipped ones included.
	Documents int

	// Mappings holds the validated mappings of accepted documents, in order.
	Mappings []*mapping.Mapping

	Errors []*DocumentParseError
}

// Err joins the per-document errors, or returns nil.
func (r *LoadReport) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// RawDocument is an unparsed mapping document.
type RawDocument struct {
	Source string
	Data   []byte
	Format Format

	// IDPrefix, when set, names mappings that carry no id as IDPrefix-N,
	// N being the 1-based position in the document.
	IDPrefix string
}

// LoadDocuments parses and validates docs. A document with any invalid
// mapping is skipped as a whole.
func LoadDocuments(docs []RawDocument) *LoadReport {
	report := &LoadReport{}
	for _, doc := range docs {
		report.Documents++
		ms, err := ParseDocument(doc.Data, doc.Format)
		if err != nil {
			report.Errors = append(report.Errors, &DocumentParseError{Source: doc.Source, Err: err})
			continue
		}

		ok := true
		for i, m := range ms {
			if m.ID == "" && doc.IDPrefix != "" {
				m.ID = fmt.Sprintf("%s-%d", doc.IDPrefix, i+1)
			}
			if err := store.Check(m); err != nil {
				report.Errors = append(report.Errors, &DocumentParseError{
					Source: doc.Source,
					Err:    fmt.Errorf("mapping %d: %w", i, err),
				})
				ok = false
				break
			}
		}
		if ok {
			report.Mappings = append(report.Mappings, ms...)
		}
	}
	return report
}

// DirSource reads the mapping documents of a directory tree.
type DirSource struct {
	Dir string
}

// Files returns document paths relative to Dir, slash-separated and sorted.
func (d DirSource) Files() ([]string, error) {
	info, err := os.Stat(d.Dir)
	if err != nil {
		return nil, fmt.Errorf("mapping directory %s: %w", d.Dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mapping directory %s: not a directory", d.Dir)
	}
	files, err := doublestar.Glob(os.DirFS(d.Dir), MappingGlob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", d.Dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// Load reads every document below Dir. Mappings without an id are named
// after their file, so reloading a directory is stable.
func (d DirSource) Load() (*LoadReport, error) {
	files, err := d.Files()
	if err != nil {
		return nil, err
	}

	docs := make([]RawDocument, 0, len(files))
	var readErrs []*DocumentParseError
	for _, rel := range files {
		data, err := os.ReadFile(filepath.Join(d.Dir, filepath.FromSlash(rel)))
		if err != nil {
			readErrs = append(readErrs, &DocumentParseError{Source: rel, Err: err})
			continue
		}
		docs = append(docs, RawDocument{
			Source:   rel,
			Data:     data,
			Format:   FormatFromPath(rel),
			IDPrefix: idPrefix(rel),
		})
	}

	report := LoadDocuments(docs)
	report.Documents += len(readErrs)
	report.Errors = append(readErrs, report.Errors...)
	return report, nil
}

func idPrefix(rel string) string {
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(rel, "/", "-")
}

// IsMappingFile reports whether name has a mapping document extension.
func IsMappingFile(name string) bool {
	ok, _ := doublestar.Match("*.{json,yaml,yml}", filepath.Base(name))
	return ok
}

// StaticSource is the store source tag of mappings loaded from dir.
func StaticSource(dir string) string {
	return "static:" + filepath.Clean(dir)
}

// SyncStatic loads dir and makes its mappings the store's static set in
// one atomic batch: new and changed mappings are upserted and static
// mappings whose documents disappeared are removed.
func SyncStatic(st *store.Store, dir string) (*LoadReport, store.Result, error) {
	report, err := DirSource{Dir: dir}.Load()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			report = &LoadReport{}
		} else {
			return nil, store.Result{}, err
		}
	}
	res, err := st.Apply(store.Batch{
		Upserts:       report.Mappings,
		Source:        StaticSource(dir),
		ReplaceSource: true,
	})
	if err != nil {
		return report, store.Result{}, err
	}
	return report, res, nil
}

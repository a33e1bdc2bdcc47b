// Package batch implements the Batch Expander: it turns a set
// of zipped argument tuples (or an equivalent table) into sibling project
// directories, each a copy of a root project directory with the named
// config files substituted, and records a batch index CSV so the
// directories can later be cleaned up or re-driven. Grounded on
// gaps/batch.py:BatchJob, whose _parse_config/_copy_files/_modify_files
// sequence this package's Expand/Materialize follow, redesigned so a
// set's args vary in lock-step rather than by product.
package batch

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/ctxlog"
	"github.com/nrel-gaps/ridge/internal/errkind"
	"github.com/nrel-gaps/ridge/internal/fsutil"
	"github.com/nrel-gaps/ridge/internal/model"
	"github.com/nrel-gaps/ridge/internal/tagfmt"
)

const indexFileName = "batch_jobs.csv"

// Entry is one generated subdirectory's recipe: a directory name, the
// config files within it to substitute, and the parameter overrides to
// apply to each.
type Entry struct {
	DirName   string
	Files     []string
	Overrides map[string]*config.Value
	// ArgOrder mirrors the declared key order so the index CSV's columns
	// are stable across entries sharing the same parameter set.
	ArgOrder []string
}

// Expand turns a mapping-style batch config into the disjoint union of
// each set's zipped tuples: within a set, all
// argument lists advance together; across sets, the directory lists
// concatenate rather than multiply.
func Expand(bc *model.BatchConfig) ([]Entry, error) {
	var entries []Entry
	seenDirs := map[string]bool{}
	for _, set := range bc.Sets {
		length := 0
		for _, k := range set.ArgOrder {
			length = len(set.Args[k])
			break
		}
		for i := 0; i < length; i++ {
			dirName := set.SetTag
			overrides := map[string]*config.Value{}
			for _, k := range set.ArgOrder {
				v := set.Args[k][i]
				overrides[k] = v
				dirName += tagfmt.Fragment(k, v)
			}
			if seenDirs[dirName] {
				return nil, errkind.Configf("batch.Expand", dirName, "duplicate generated subdirectory name")
			}
			seenDirs[dirName] = true
			entries = append(entries, Entry{
				DirName:   dirName,
				Files:     set.Files,
				Overrides: overrides,
				ArgOrder:  set.ArgOrder,
			})
		}
	}
	return entries, nil
}

// ParseTable reads the tabular alternative batch config input: one CSV
// row per generated subdirectory, with reserved columns set_tag and files
// (a "; "-separated list of config file names) plus arbitrary parameter
// columns. A "pipeline_config" column, if present, is reserved and
// ignored here: which pipeline config a table batch expands is a
// whole-table decision the caller resolves (defaulting to
// config_pipeline.json next to the table file), not a per-row value. No
// third-party CSV reader appears anywhere in the retrieval pack, so this
// uses the standard library's encoding/csv, which already does
// everything a simple delimited table needs (quoting, header row).
func ParseTable(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errkind.Configf("batch.ParseTable", path, "opening table batch config: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, errkind.Configf("batch.ParseTable", path, "parsing table batch config: %w", err)
	}
	if len(rows) == 0 {
		return nil, errkind.Configf("batch.ParseTable", path, "table batch config has no header row")
	}

	header := rows[0]
	setTagCol, filesCol := -1, -1
	var paramCols []int
	for i, h := range header {
		switch h {
		case "set_tag":
			setTagCol = i
		case "files":
			filesCol = i
		case "pipeline_config":
			// reserved, ignored: see doc comment above.
		default:
			paramCols = append(paramCols, i)
		}
	}
	if setTagCol < 0 {
		return nil, errkind.Configf("batch.ParseTable", path, `table batch config must have a "set_tag" column`)
	}

	var entries []Entry
	seenDirs := map[string]bool{}
	for rowIdx, row := range rows[1:] {
		dirName := row[setTagCol]
		overrides := map[string]*config.Value{}
		var argOrder []string
		for _, col := range paramCols {
			key := header[col]
			v, err := inferScalar(row[col])
			if err != nil {
				return nil, errkind.Configf("batch.ParseTable", path, "row %d column %q: %w", rowIdx+1, key, err)
			}
			overrides[key] = v
			argOrder = append(argOrder, key)
			dirName += tagfmt.Fragment(key, v)
		}
		if seenDirs[dirName] {
			return nil, errkind.Configf("batch.ParseTable", path, "duplicate generated subdirectory name %q", dirName)
		}
		seenDirs[dirName] = true

		var files []string
		if filesCol >= 0 && row[filesCol] != "" {
			for _, f := range strings.Split(row[filesCol], ";") {
				files = append(files, strings.TrimSpace(f))
			}
		}
		entries = append(entries, Entry{DirName: dirName, Files: files, Overrides: overrides, ArgOrder: argOrder})
	}
	return entries, nil
}

// inferScalar converts one table cell to a config.Value, trying a number
// first since a table column has no type annotation of its own and most
// batch parameters (years, counts, thresholds) are numeric.
func inferScalar(s string) (*config.Value, error) {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return config.Number(n), nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return config.Bool(b), nil
	}
	return config.String(s), nil
}

// Materialize copies the root project directory verbatim into a new
// subdirectory for each entry, substitutes the entry's overrides into its
// listed files, and writes the batch index CSV with one row per entry. It does not
// invoke the Pipeline Executor; callers drive that separately, skipped
// entirely in dry-run mode by the caller never calling it.
func Materialize(ctx context.Context, rootDir string, entries []Entry) error {
	log := ctxlog.FromContext(ctx)
	generated := map[string]bool{}
	for _, e := range entries {
		generated[e.DirName] = true
	}
	for _, e := range entries {
		destDir := filepath.Join(rootDir, e.DirName)
		log.Info("batch: materializing subdirectory", "dir", e.DirName)
		if err := copyTree(rootDir, destDir, generated); err != nil {
			return errkind.Runtimef("batch.Materialize", destDir, "copying project directory: %w", err)
		}
		for _, rel := range e.Files {
			path := filepath.Join(destDir, rel)
			cfg, err := config.Load(path)
			if err != nil {
				return errkind.Configf("batch.Materialize", path, "loading config file to substitute: %w", err)
			}
			clone := config.Clone(cfg)
			for k, v := range e.Overrides {
				if _, ok := clone.Get(k); ok {
					clone.Set(k, v)
				}
			}
			if err := config.Dump(path, clone); err != nil {
				return errkind.Runtimef("batch.Materialize", path, "writing substituted config: %w", err)
			}
		}
	}
	return WriteIndex(rootDir, entries)
}

// copyTree copies every regular file under src into dst, skipping the
// status store directory, the batch index CSV, and every directory this
// Materialize call is itself generating (a destructive re-copy of a
// sibling's output, processed earlier in the same call, would clobber
// its own generated state).
func copyTree(src, dst string, generatedDirs map[string]bool) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		top := strings.SplitN(rel, string(filepath.Separator), 2)[0]
		if top == ".gaps" || top == indexFileName || generatedDirs[top] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		return fsutil.CopyFile(path, filepath.Join(dst, rel))
	})
}

// indexPath returns the path of the batch index CSV alongside the root
// project directory.
func indexPath(rootDir string) string { return filepath.Join(rootDir, indexFileName) }

// WriteIndex writes the batch index CSV: one row per
// subdirectory, with a "dir_name" column followed by every distinct
// parameter key across all entries, sorted for determinism.
func WriteIndex(rootDir string, entries []Entry) error {
	keySet := map[string]bool{}
	for _, e := range entries {
		for _, k := range e.ArgOrder {
			keySet[k] = true
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f, err := os.Create(indexPath(rootDir))
	if err != nil {
		return errkind.Runtimef("batch.WriteIndex", indexPath(rootDir), "%w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{"dir_name"}, keys...)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		row := make([]string, len(header))
		row[0] = e.DirName
		for i, k := range keys {
			if v, ok := e.Overrides[k]; ok {
				row[i+1] = tagfmt.FormatValue(v)
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadIndex reads back the directory names recorded in the batch index
// CSV, used by Delete to know what to remove.
func ReadIndex(rootDir string) ([]string, error) {
	f, err := os.Open(indexPath(rootDir))
	if err != nil {
		return nil, errkind.Configf("batch.ReadIndex", indexPath(rootDir), "%w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errkind.Configf("batch.ReadIndex", indexPath(rootDir), "%w", err)
	}
	var dirs []string
	for _, row := range rows[1:] {
		if len(row) > 0 {
			dirs = append(dirs, row[0])
		}
	}
	return dirs, nil
}

// Delete removes the batch index CSV and every subdirectory it names.
func Delete(rootDir string) error {
	dirs, err := ReadIndex(rootDir)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := os.RemoveAll(filepath.Join(rootDir, d)); err != nil {
			return errkind.Runtimef("batch.Delete", d, "%w", err)
		}
	}
	return os.Remove(indexPath(rootDir))
}

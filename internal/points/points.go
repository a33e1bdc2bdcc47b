// Package points implements the project-points table and its partitioning
// into contiguous node-sized chunks, grounded on
// gaps/project_points.py:ProjectPoints and
// gaps/cli/preprocessing.py:split_project_points_into_ranges. It backs the
// "project_points" split key a step dispatcher supports.
package points

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/nrel-gaps/ridge/internal/errkind"
)

// Table is an ordered set of sites, each identified by an integer gid, with
// optional extra columns carried along for downstream use.
type Table struct {
	GIDs    []int
	Columns map[string][]string
}

// Range is a contiguous, end-exclusive slice of a Table's row indices,
// mirroring ProjectPoints.split_range.
type Range struct {
	Start int
	End   int
}

// Len returns the number of sites in the range.
func (r Range) Len() int { return r.End - r.Start }

// FromCount builds a synthetic Table of `count` sites with gids 0..count-1,
// matching ProjectPoints accepting a bare integer site count.
func FromCount(count int) *Table {
	gids := make([]int, count)
	for i := range gids {
		gids[i] = i
	}
	return &Table{GIDs: gids}
}

// Load reads a project-points CSV file. The file must have a "gid" column;
// any other columns are retained verbatim as strings. Rows are sorted by
// gid, matching ProjectPoints' "points are not in sequential order and
// will be sorted" behavior.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errkind.Configf("points.Load", path, "opening project points file: %w", err)
	}
	defer f.Close()
	return parseCSV(f, path)
}

func parseCSV(r io.Reader, path string) (*Table, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return nil, errkind.Configf("points.Load", path, "project points file is empty")
	}
	header := strings.Split(scanner.Text(), ",")
	gidCol := -1
	for i, h := range header {
		if strings.TrimSpace(h) == "gid" {
			gidCol = i
			break
		}
	}
	if gidCol < 0 {
		return nil, errkind.Configf("points.Load", path, `project points file must contain a "gid" column`)
	}

	type row struct {
		gid int
		rec []string
	}
	var rows []row
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec := strings.Split(line, ",")
		if len(rec) != len(header) {
			return nil, errkind.Configf("points.Load", path, "row has %d fields, want %d: %q", len(rec), len(header), line)
		}
		gid, err := strconv.Atoi(strings.TrimSpace(rec[gidCol]))
		if err != nil {
			return nil, errkind.Configf("points.Load", path, "non-integer gid %q: %w", rec[gidCol], err)
		}
		rows = append(rows, row{gid: gid, rec: rec})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("points: reading %s: %w", path, err)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].gid < rows[j].gid })

	t := &Table{GIDs: make([]int, len(rows)), Columns: map[string][]string{}}
	for i, colName := range header {
		if i == gidCol {
			continue
		}
		t.Columns[colName] = make([]string, len(rows))
	}
	for i, rw := range rows {
		t.GIDs[i] = rw.gid
		for j, colName := range header {
			if j == gidCol {
				continue
			}
			t.Columns[colName][i] = rw.rec[j]
		}
	}
	return t, nil
}

// Len returns the number of sites in the table.
func (t *Table) Len() int { return len(t.GIDs) }

// Slice returns the sub-table spanning [r.Start, r.End).
func (t *Table) Slice(r Range) *Table {
	sub := &Table{GIDs: append([]int(nil), t.GIDs[r.Start:r.End]...)}
	if len(t.Columns) > 0 {
		sub.Columns = make(map[string][]string, len(t.Columns))
		for name, col := range t.Columns {
			sub.Columns[name] = append([]string(nil), col[r.Start:r.End]...)
		}
	}
	return sub
}

// PartitionRanges splits a table of size n into ceil(n/sitesPerSplit)
// contiguous chunks (never more than nodes) of sitesPerSplit =
// ceil(n/nodes) sites each, the last chunk possibly shorter. This is the Go equivalent of
// ProjectPoints.split(sites_per_split) called with
// sites_per_split=ceil(len(points)/num_nodes).
//
// When nodes exceeds n, sitesPerSplit floors to 1 and this returns exactly
// n single-site ranges rather than nodes ranges (some necessarily empty).
// This is a deliberate clamp, not an oversight: ProjectPoints.split never
// errors on sites_per_split < 1 either, it just yields fewer groups than
// num_nodes would suggest, so asking for more nodes than there are sites
// to hand out gets you one site per node and no more nodes than that.
func PartitionRanges(n, nodes int) []Range {
	if nodes < 1 {
		nodes = 1
	}
	if n == 0 {
		return nil
	}
	sitesPerSplit := (n + nodes - 1) / nodes
	if sitesPerSplit < 1 {
		sitesPerSplit = 1
	}
	var ranges []Range
	for start := 0; start < n; start += sitesPerSplit {
		end := start + sitesPerSplit
		if end > n {
			end = n
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges
}

// Partition splits t into per-node ranges the same way PartitionRanges does,
// honoring the "local" backend always collapsing to a single node
// (gaps/cli/preprocessing.py:split_project_points_into_ranges).
func Partition(t *Table, nodes int, localOnly bool) []Range {
	if localOnly {
		nodes = 1
	}
	return PartitionRanges(t.Len(), nodes)
}

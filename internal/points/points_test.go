package points

import (
	"strings"
	"testing"
)

func TestParseCSVSortsByGID(t *testing.T) {
	csv := "gid,capacity\n5,10\n1,20\n3,30\n"
	tbl, err := parseCSV(strings.NewReader(csv), "test.csv")
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 3, 5}
	if len(tbl.GIDs) != len(want) {
		t.Fatalf("got %v gids, want %v", tbl.GIDs, want)
	}
	for i, g := range want {
		if tbl.GIDs[i] != g {
			t.Fatalf("GIDs[%d] = %d, want %d", i, tbl.GIDs[i], g)
		}
	}
	if got := tbl.Columns["capacity"]; !(got[0] == "20" && got[1] == "30" && got[2] == "10") {
		t.Fatalf("capacity column did not follow sort reorder: %v", got)
	}
}

func TestParseCSVRequiresGIDColumn(t *testing.T) {
	if _, err := parseCSV(strings.NewReader("a,b\n1,2\n"), "test.csv"); err == nil {
		t.Fatal("expected error for missing gid column")
	}
}

func TestPartitionRangesCeilChunking(t *testing.T) {
	ranges := PartitionRanges(10, 3)
	if len(ranges) != 3 {
		t.Fatalf("got %d ranges, want 3: %v", len(ranges), ranges)
	}
	wantLens := []int{4, 4, 2}
	for i, r := range ranges {
		if r.Len() != wantLens[i] {
			t.Fatalf("range %d len = %d, want %d (%v)", i, r.Len(), wantLens[i], ranges)
		}
	}
	if ranges[len(ranges)-1].End != 10 {
		t.Fatalf("last range should end at 10, got %v", ranges)
	}
}

func TestPartitionRangesSingleNode(t *testing.T) {
	ranges := PartitionRanges(7, 1)
	if len(ranges) != 1 || ranges[0] != (Range{Start: 0, End: 7}) {
		t.Fatalf("got %v, want single full range", ranges)
	}
}

// TestPartitionRangesClampsWhenNodesExceedSites covers spec's open
// question on nodes > len(points): the decision is to clamp (one site per
// node, fewer chunks than requested) rather than error, matching
// ProjectPoints.split's own lack of an error path when sites_per_split
// floors to 1.
func TestPartitionRangesClampsWhenNodesExceedSites(t *testing.T) {
	ranges := PartitionRanges(3, 10)
	if len(ranges) != 3 {
		t.Fatalf("got %d ranges, want 3 (clamped to one site per node): %v", len(ranges), ranges)
	}
	for i, r := range ranges {
		if r.Len() != 1 || r.Start != i || r.End != i+1 {
			t.Fatalf("range %d = %v, want a single site at index %d", i, r, i)
		}
	}
}

func TestPartitionLocalCollapsesToOneNode(t *testing.T) {
	tbl := FromCount(10)
	ranges := Partition(tbl, 4, true)
	if len(ranges) != 1 {
		t.Fatalf("local backend should always collapse to 1 node, got %d ranges", len(ranges))
	}
}

func TestSliceReturnsSubTable(t *testing.T) {
	tbl := FromCount(10)
	sub := tbl.Slice(Range{Start: 2, End: 5})
	if sub.Len() != 3 || sub.GIDs[0] != 2 {
		t.Fatalf("unexpected slice: %v", sub.GIDs)
	}
}

package dispatch

import (
	"strconv"

	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/tagfmt"
)

// abbrev produces the short identifier used inside a task tag fragment:
// drop underscores and vowels from key, keeping the letters of a key that
// has nothing else (see tagfmt.Abbrev).
func abbrev(key string) string { return tagfmt.Abbrev(key) }

// tagFragment renders one "_<abbrev(key)><value>" fragment for a scalar
// split-key value. Numeric values render without a decimal point when
// they are integral.
func tagFragment(key string, v *config.Value) string { return tagfmt.Fragment(key, v) }

func formatTagValue(v *config.Value) string { return tagfmt.FormatValue(v) }

// pointsTagFragment renders the special "_j<chunk-index>" fragment for
// the project_points split axis.
func pointsTagFragment(chunkIndex int) string {
	return "_j" + strconv.Itoa(chunkIndex)
}

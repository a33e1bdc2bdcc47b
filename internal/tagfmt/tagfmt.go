// Package tagfmt holds the tag-fragment formatting rules shared by the
// Step Dispatcher and the Batch Expander:
// both concatenate "_<abbrev(key)><value>" fragments in declared key
// order to name a generated task or subdirectory.
package tagfmt

import (
	"strconv"
	"strings"

	"github.com/nrel-gaps/ridge/internal/config"
)

// Abbrev drops underscores and vowels from key, the short identifier both
// callers embed in a tag fragment. A key made only of vowels and
// underscores (such as "a") keeps its letters, minus the underscores, so
// its fragment never loses the key.
func Abbrev(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '_':
			continue
		case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
			continue
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return strings.ReplaceAll(key, "_", "")
	}
	return b.String()
}

// Fragment renders one "_<abbrev(key)><value>" fragment for a scalar
// value.
func Fragment(key string, v *config.Value) string {
	return "_" + Abbrev(key) + FormatValue(v)
}

// FormatValue renders a scalar config.Value for embedding in a tag or
// directory name. Integral numbers render without a decimal point.
func FormatValue(v *config.Value) string {
	switch v.Kind() {
	case config.KindNumber:
		n, _ := v.AsNumber()
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strings.ReplaceAll(strconv.FormatFloat(n, 'f', -1, 64), ".", "")
	case config.KindString:
		s, _ := v.AsString()
		return s
	case config.KindBool:
		b, _ := v.AsBool()
		if b {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

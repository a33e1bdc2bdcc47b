// Package hashkey computes the stable config-hash the status store records
// alongside each task and later compares against
// to decide whether a successful task's inputs have changed. The hash is a pure function of a task's
// resolved config.Value tree: same keys and values in the same shape
// always hash the same, regardless of which format the config file used.
package hashkey

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/nrel-gaps/ridge/internal/config"
)

// Of returns a stable hex-encoded hash of v, suitable for storing in a
// status record and comparing across runs.
func Of(v *config.Value) string {
	h := xxhash.New()
	writeValue(h, v)
	return strconv.FormatUint(h.Sum64(), 16)
}

func writeValue(h *xxhash.Digest, v *config.Value) {
	if v == nil {
		h.Write([]byte{'n'})
		return
	}
	switch v.Kind() {
	case config.KindNull:
		h.Write([]byte{'n'})
	case config.KindBool:
		b, _ := v.AsBool()
		h.Write([]byte{'b'})
		if b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	case config.KindNumber:
		n, _ := v.AsNumber()
		h.Write([]byte{'#'})
		fmt.Fprintf(h, "%g", n)
	case config.KindString:
		s, _ := v.AsString()
		h.Write([]byte{'s'})
		h.Write([]byte(s))
	case config.KindList:
		items, _ := v.AsList()
		h.Write([]byte{'['})
		for _, item := range items {
			writeValue(h, item)
			h.Write([]byte{','})
		}
		h.Write([]byte{']'})
	case config.KindMap:
		keys, _ := v.Keys()
		sorted := append([]string(nil), keys...)
		sort.Strings(sorted)
		h.Write([]byte{'{'})
		for _, k := range sorted {
			val, _ := v.Get(k)
			h.Write([]byte(k))
			h.Write([]byte{':'})
			writeValue(h, val)
			h.Write([]byte{','})
		}
		h.Write([]byte{'}'})
	}
}

package reconcile

import (
	"fmt"
	"strings"
)

// identitySet tracks which row identities are present in the durable table.
// It is seeded from current durable contents and grows as rows are admitted
// within a pass, so admission is always a membership test against the
// durable state at that moment.
type identitySet map[string]struct{}

func (s identitySet) has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s identitySet) add(key string) {
	s[key] = struct{}{}
}

// identityKey encodes a tuple of column values into a canonical string.
// Fields are length-prefixed so no combination of values can collide, and
// NULL has its own marker so NULL matches NULL.
func identityKey(vals []any) string {
	var sb strings.Builder
	for _, v := range vals {
		if v == nil {
			sb.WriteString("n;")
			continue
		}
		s := valueString(v)
		fmt.Fprintf(&sb, "%d:%s;", len(s), s)
	}
	return sb.String()
}

func valueString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// project picks the values at the given indexes out of a full row.
func project(row []any, idx []int) []any {
	out := make([]any, len(idx))
	for i, j := range idx {
		out[i] = row[j]
	}
	return out
}

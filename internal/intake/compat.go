package intake

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapetl/internal/entity"
	"github.com/leapstack-labs/leapetl/internal/warehouse"
)

// Verdict is the structural compatibility outcome for one intake batch.
type Verdict string

const (
	// VerdictCreate means no schema is registered yet; the incoming column
	// set becomes the entity's schema.
	VerdictCreate Verdict = "create"
	// VerdictMatch means the incoming columns exactly match the registered
	// schema (case-insensitive, metadata columns excluded).
	VerdictMatch Verdict = "match"
	// VerdictMismatch means the batch must be rejected.
	VerdictMismatch Verdict = "mismatch"
)

// Compatibility carries the verdict plus mismatch detail.
type Compatibility struct {
	Verdict Verdict
	// Missing lists registered columns absent from the incoming data.
	Missing []string
	// Extra lists incoming columns absent from the registered schema.
	Extra []string
}

// SchemaMismatchError rejects a batch whose columns drifted from the
// registered entity schema. Fatal for that batch only.
type SchemaMismatchError struct {
	Entity  string
	Missing []string
	Extra   []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("column mismatch for entity %s - missing: %v, extra: %v", e.Entity, e.Missing, e.Extra)
}

// CheckCompatibility compares incoming columns against the registered schema
// for an entity. Comparison is case-insensitive set equality over
// non-metadata columns; column order is irrelevant.
func CheckCompatibility(ctx context.Context, wh *warehouse.Warehouse, ent entity.Name, incoming []string) (*Compatibility, error) {
	registered, err := wh.GetSchema(ctx, ent)
	if err != nil {
		return nil, err
	}
	if registered == nil {
		return &Compatibility{Verdict: VerdictCreate}, nil
	}

	declared := lowerSet(entity.DataColumns(registered.Columns))
	got := lowerSet(entity.DataColumns(incoming))

	missing := diff(declared, got)
	extra := diff(got, declared)

	if len(missing) == 0 && len(extra) == 0 {
		return &Compatibility{Verdict: VerdictMatch}, nil
	}
	return &Compatibility{Verdict: VerdictMismatch, Missing: missing, Extra: extra}, nil
}

func lowerSet(cols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		set[strings.ToLower(c)] = struct{}{}
	}
	return set
}

func diff(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

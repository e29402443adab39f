package types

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// NormalizeVariantIDs deduplicates and sorts variant item ids so that two
// selections of the same options always produce the same key regardless of
// the order the client sent them in.
func NormalizeVariantIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].String(), out[j].String()) < 0
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// VariantKey renders the canonical line-identity string for a selection.
// An empty selection keys as the bare product.
func VariantKey(ids []uuid.UUID) string {
	normalized := NormalizeVariantIDs(ids)
	if len(normalized) == 0 {
		return ""
	}

	parts := make([]string, len(normalized))
	for i, id := range normalized {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

package contextengine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/S-Corkum/agentmesh/pkg/models"
)

// deepMerge merges src into dst, src taking precedence on scalar/array
// conflicts; nested maps are merged recursively (spec.md §4.2.2 step 2).
// dst is mutated and returned.
func deepMerge(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = map[string]interface{}{}
	}
	for k, sv := range src {
		dv, exists := dst[k]
		if !exists {
			dst[k] = sv
			continue
		}
		dMap, dIsMap := dv.(map[string]interface{})
		sMap, sIsMap := sv.(map[string]interface{})
		if dIsMap && sIsMap {
			dst[k] = deepMerge(cloneMap(dMap), sMap)
			continue
		}
		dst[k] = sv // arrays and scalars: src (more specific tier) replaces
	}
	return dst
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// chain is a root-to-leaf ordered walk of context records, as built by
// buildChain.
type chain []*models.ContextRecord

// merge implements spec.md §4.2.2 steps 2-4: deep-merge the chain from
// global down to the leaf, honoring inheritance_disabled, force_local_only,
// and each tier's global_overrides/local_overrides pin sets.
//
// Interpretation of overrides (an Open Question the distilled spec leaves
// implicit, decided here and recorded in DESIGN.md): a key in a tier's
// local_overrides is pinned to that tier's own value and immune to any
// more-specific tier overwriting it afterward; a key in a tier's
// global_overrides is forced, after the full walk, back to the value held
// by the global (root) record, overriding whatever the walk produced.
func (c chain) merge() (merged map[string]interface{}, path []models.TierRef) {
	merged = map[string]interface{}{}
	pinned := map[string]interface{}{}
	var globalForceKeys []string
	var globalRecord *models.ContextRecord

	for _, rec := range c {
		if rec.Level == models.LevelGlobal {
			globalRecord = rec
		}
		if rec.ForceLocalOnly && rec.Level != c[0].Level {
			// A non-root tier with force_local_only contributes none of its
			// data to the merge (buildChain truncates only on
			// inheritance_disabled). On the leaf, the merged result is
			// replaced by the leaf's own data after the loop.
			continue
		}
		merged = deepMerge(merged, rec.Data)
		for k, v := range pinned {
			merged[k] = v
		}
		for k := range rec.LocalOverrides {
			pinned[k] = merged[k]
		}
		for k := range rec.GlobalOverrides {
			globalForceKeys = append(globalForceKeys, k)
		}
		path = append(path, models.TierRef{Level: rec.Level, ID: rec.EntityID})
	}

	if globalRecord != nil {
		for _, k := range globalForceKeys {
			if v, ok := globalRecord.Data[k]; ok {
				merged[k] = v
			}
		}
	}

	leaf := c[len(c)-1]
	if leaf.ForceLocalOnly {
		merged = cloneMap(leaf.Data)
		path = []models.TierRef{{Level: leaf.Level, ID: leaf.EntityID}}
	}
	return merged, path
}

// dependenciesHash implements spec.md §4.2.2 step 5.
func dependenciesHash(c chain) string {
	var b strings.Builder
	for _, rec := range c {
		fmt.Fprintf(&b, "%s|%s|%d|%t;", rec.Level, rec.EntityID, rec.UpdatedAt.UnixNano(), rec.InheritanceDisabled)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

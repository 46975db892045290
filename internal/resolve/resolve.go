// Package resolve selects the winning claim per assertion key. All
// functions are pure: they never touch storage and return the same
// winner regardless of input ordering.
package resolve

import (
	"sort"
	"time"

	"github.com/weftdb/weft/internal/types"
)

// UnknownAuthorityRank is assumed when an assertion has no source or
// its source is missing from the authority map. It sorts after every
// registered source.
const UnknownAuthorityRank = 999

// Claim is an assertion annotated with the resolution outcome, the
// unit of the all-claims view.
type Claim struct {
	Assertion *types.AssertionRecord `json:"assertion"`
	IsWinner  bool                   `json:"is_winner"`
}

// ResolveAssertion picks the winner among competing assertions for a
// single key. Pipeline: temporal filter, scenario preference with base
// fallback, manual override, authority sort. Returns nil when no
// candidate survives.
func ResolveAssertion(assertions []*types.AssertionRecord, scenario string, at *time.Time, authority map[string]int) *types.AssertionRecord {
	candidates := filterTemporal(assertions, at)
	if len(candidates) == 0 {
		return nil
	}
	candidates = preferScenario(candidates, scenario)
	candidates = preferManual(candidates)
	sortByAuthority(candidates, authority)
	return candidates[0]
}

// ResolveEntityView groups assertions by key and resolves each group
// independently. Keys whose group resolves to nothing are absent.
func ResolveEntityView(assertions []*types.AssertionRecord, scenario string, at *time.Time, authority map[string]int) map[string]*types.AssertionRecord {
	out := make(map[string]*types.AssertionRecord)
	for key, group := range groupByKey(assertions) {
		if winner := ResolveAssertion(group, scenario, at, authority); winner != nil {
			out[key] = winner
		}
	}
	return out
}

// AllClaims returns every assertion with its winner flag set, ordered
// by key then by the resolution sort. The debugging complement of
// ResolveEntityView.
func AllClaims(assertions []*types.AssertionRecord, scenario string, at *time.Time, authority map[string]int) []Claim {
	groups := groupByKey(assertions)
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []Claim
	for _, key := range keys {
		group := groups[key]
		winner := ResolveAssertion(group, scenario, at, authority)
		sorted := append([]*types.AssertionRecord(nil), group...)
		sortByAuthority(sorted, authority)
		for _, a := range sorted {
			out = append(out, Claim{Assertion: a, IsWinner: winner != nil && a.AssertionID == winner.AssertionID})
		}
	}
	return out
}

// filterTemporal keeps assertions valid at the instant: valid_from ≤ at
// and valid_to absent or after at. A nil instant keeps everything.
func filterTemporal(assertions []*types.AssertionRecord, at *time.Time) []*types.AssertionRecord {
	if at == nil {
		return append([]*types.AssertionRecord(nil), assertions...)
	}
	var out []*types.AssertionRecord
	for _, a := range assertions {
		if a.ValidFrom.After(*at) {
			continue
		}
		if a.ValidTo != nil && !a.ValidTo.After(*at) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// preferScenario keeps the target scenario's claims when any exist,
// falls back to base for non-base targets, else keeps all.
func preferScenario(candidates []*types.AssertionRecord, scenario string) []*types.AssertionRecord {
	if scenario == "" {
		scenario = types.DefaultScenario
	}
	if matched := filterScenario(candidates, scenario); len(matched) > 0 {
		return matched
	}
	if scenario != types.DefaultScenario {
		if base := filterScenario(candidates, types.DefaultScenario); len(base) > 0 {
			return base
		}
	}
	return candidates
}

func filterScenario(candidates []*types.AssertionRecord, scenario string) []*types.AssertionRecord {
	var out []*types.AssertionRecord
	for _, a := range candidates {
		if a.ScenarioID == scenario {
			out = append(out, a)
		}
	}
	return out
}

// preferManual narrows to manual claims when any exist; a human
// correction beats every imported value regardless of authority.
func preferManual(candidates []*types.AssertionRecord) []*types.AssertionRecord {
	var manual []*types.AssertionRecord
	for _, a := range candidates {
		if a.SourceType == types.SourceManual {
			manual = append(manual, a)
		}
	}
	if len(manual) > 0 {
		return manual
	}
	return candidates
}

// sortByAuthority orders candidates best-first: authority rank asc,
// recorded_at desc, confidence desc, assertion id as the final
// tiebreak so equal claims still resolve deterministically.
func sortByAuthority(candidates []*types.AssertionRecord, authority map[string]int) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		ra, rb := rankOf(a, authority), rankOf(b, authority)
		if ra != rb {
			return ra < rb
		}
		if !a.RecordedAt.Equal(b.RecordedAt) {
			return a.RecordedAt.After(b.RecordedAt)
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.AssertionID < b.AssertionID
	})
}

func rankOf(a *types.AssertionRecord, authority map[string]int) int {
	if a.SourceID == "" {
		return UnknownAuthorityRank
	}
	if rank, ok := authority[a.SourceID]; ok {
		return rank
	}
	return UnknownAuthorityRank
}

func groupByKey(assertions []*types.AssertionRecord) map[string][]*types.AssertionRecord {
	groups := make(map[string][]*types.AssertionRecord)
	for _, a := range assertions {
		groups[a.AssertionKey] = append(groups[a.AssertionKey], a)
	}
	return groups
}

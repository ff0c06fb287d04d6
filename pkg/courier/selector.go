package courier

import "sort"

// SelectionStrategy names the tenant-configured quote ranking policy.
type SelectionStrategy string

const (
	StrategyPrice  SelectionStrategy = "PRICE"
	StrategyETA    SelectionStrategy = "ETA"
	StrategyRating SelectionStrategy = "RATING"
)

// Select ranks the quotes by the given strategy and returns the winner.
// It is pure and deterministic: the same quote list always yields the same
// winner. The ranking list orders providers for StrategyRating; providers
// absent from it sort last. The second return is false when the quote list
// is empty — the caller decides whether no winner is a hard failure.
func Select(strategy SelectionStrategy, quotes []Quote, ranking []string) (Quote, bool) {
	if len(quotes) == 0 {
		return Quote{}, false
	}

	ranked := make([]Quote, len(quotes))
	copy(ranked, quotes)

	var less func(a, b Quote) bool
	switch strategy {
	case StrategyETA:
		less = func(a, b Quote) bool {
			if !a.DropoffETA.Equal(b.DropoffETA) {
				return a.DropoffETA.Before(b.DropoffETA)
			}
			if a.Price.Amount != b.Price.Amount {
				return a.Price.Amount < b.Price.Amount
			}
			return a.ProviderID < b.ProviderID
		}
	case StrategyRating:
		rank := make(map[string]int, len(ranking))
		for i, p := range ranking {
			rank[p] = i
		}
		pos := func(q Quote) int {
			if i, ok := rank[q.ProviderID]; ok {
				return i
			}
			return len(ranking)
		}
		less = func(a, b Quote) bool {
			if pos(a) != pos(b) {
				return pos(a) < pos(b)
			}
			if a.Price.Amount != b.Price.Amount {
				return a.Price.Amount < b.Price.Amount
			}
			return a.ProviderID < b.ProviderID
		}
	default: // StrategyPrice
		less = func(a, b Quote) bool {
			if a.Price.Amount != b.Price.Amount {
				return a.Price.Amount < b.Price.Amount
			}
			if !a.DropoffETA.Equal(b.DropoffETA) {
				return a.DropoffETA.Before(b.DropoffETA)
			}
			return a.ProviderID < b.ProviderID
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })
	return ranked[0], true
}

package storage

// Pair is a (key, mapped) result.
type Pair[K comparable, M any] struct {
	Key    K
	Mapped M
}

// candidate is one mount record's contribution to a read, before priority
// merge is applied.
type candidate[K comparable, M any] struct {
	pair     Pair[K, M]
	priority int
}

// mergeByPriority applies the priority-merge read rule: for each key, keep
// only the candidates at the highest observed priority for that key,
// preserving encounter order and allowing multiple entries at equal
// priority.
func mergeByPriority[K comparable, M any](candidates []candidate[K, M]) []Pair[K, M] {
	bestPriority := map[K]int{}
	for _, c := range candidates {
		if p, ok := bestPriority[c.pair.Key]; !ok || c.priority > p {
			bestPriority[c.pair.Key] = c.priority
		}
	}

	out := make([]Pair[K, M], 0, len(candidates))
	for _, c := range candidates {
		if c.priority == bestPriority[c.pair.Key] {
			out = append(out, c.pair)
		}
	}
	return out
}

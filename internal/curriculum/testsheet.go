package curriculum

import "math/rand/v2"

// SelectTestItems draws up to n items for a unit's offline test sheet from
// all of the unit's words and questions. n <= 0 or n larger than the pool
// returns the whole pool, shuffled.
func SelectTestItems(u Unit, n int, rng *rand.Rand) []Item {
	var pool []Item
	for _, r := range u.VocabularyRounds {
		pool = append(pool, r.Items()...)
	}
	for _, r := range u.GrammarRounds {
		pool = append(pool, r.Items()...)
	}

	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	if n > 0 && n < len(pool) {
		pool = pool[:n]
	}
	return pool
}

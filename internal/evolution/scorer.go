package evolution

import (
	"math"
	"sort"
	"time"

	"github.com/obelisk-core/obelisk/internal/memory"
)

// Scorer ranks the users behind a cycle's interactions. Implementations
// must be deterministic for a given input and now.
type Scorer interface {
	Score(interactions []memory.Interaction, now time.Time) []Contributor
}

// WeightedScorer sums, per user, (1 + reward + energy) for each interaction,
// decayed by age with the given half-life. A zero half-life disables decay.
type WeightedScorer struct {
	HalfLife time.Duration
	Limit    int
}

func (s WeightedScorer) Score(interactions []memory.Interaction, now time.Time) []Contributor {
	byUser := make(map[string]*Contributor)
	for _, it := range interactions {
		c, ok := byUser[it.UserID]
		if !ok {
			c = &Contributor{UserID: it.UserID, FirstContribution: it.CreatedAt}
			byUser[it.UserID] = c
		}
		c.Interactions++
		c.Score += (1 + it.RewardScore + it.Energy) * s.decay(now.Sub(it.CreatedAt))
		if it.CreatedAt.Before(c.FirstContribution) {
			c.FirstContribution = it.CreatedAt
		}
	}

	out := make([]Contributor, 0, len(byUser))
	for _, c := range byUser {
		out = append(out, *c)
	}
	SortContributors(out)

	if s.Limit > 0 && len(out) > s.Limit {
		out = out[:s.Limit]
	}
	return out
}

func (s WeightedScorer) decay(age time.Duration) float64 {
	if s.HalfLife <= 0 || age <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(s.HalfLife))
}

// SortContributors orders by score desc, earliest contribution, then user id.
func SortContributors(cs []Contributor) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.FirstContribution.Equal(b.FirstContribution) {
			return a.FirstContribution.Before(b.FirstContribution)
		}
		return a.UserID < b.UserID
	})
}

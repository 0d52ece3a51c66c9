package gameserver

import (
	"math/rand"
	"sort"
)

// Ballot records one map choice per voter. A voter voting again replaces
// their previous choice.
type Ballot struct {
	votes map[string]string
}

func NewBallot() *Ballot {
	return &Ballot{votes: make(map[string]string)}
}

func (b *Ballot) Cast(identifier, mapName string) {
	b.votes[identifier] = mapName
}

func (b *Ballot) Len() int {
	return len(b.votes)
}

// Counts returns the number of votes per map.
func (b *Ballot) Counts() map[string]int {
	counts := make(map[string]int, len(b.votes))
	for _, m := range b.votes {
		counts[m]++
	}
	return counts
}

// Leaders returns the maps sharing the highest vote count, sorted by name.
func (b *Ballot) Leaders() []string {
	counts := b.Counts()
	best := 0
	var leaders []string
	for m, n := range counts {
		switch {
		case n > best:
			best = n
			leaders = []string{m}
		case n == best:
			leaders = append(leaders, m)
		}
	}
	sort.Strings(leaders)
	return leaders
}

// Tally picks the winning map. Ties are broken uniformly at random among the
// leaders; with no votes at all the winner is drawn from candidates. The
// boolean is false only when there were no votes and no candidates.
func (b *Ballot) Tally(candidates []string, pick func(n int) int) (string, bool) {
	pool := b.Leaders()
	if len(pool) == 0 {
		pool = candidates
	}
	if len(pool) == 0 {
		return "", false
	}
	if pick == nil {
		pick = rand.Intn
	}
	return pool[pick(len(pool))], true
}

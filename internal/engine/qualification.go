package engine

import (
	"sync"

	"github.com/ledgerline/inappkit/internal/proposition"
)

// QualifiedCards is the set of content card propositions the user has
// qualified for, grouped by surface URI.
//
// Mutation happens on the Run loop goroutine only, but hosts read the set
// from arbitrary goroutines when rendering, so access is guarded and Get
// returns copies.
type QualifiedCards struct {
	mu    sync.RWMutex
	cards map[string][]*proposition.Proposition
}

// NewQualifiedCards creates an empty set.
func NewQualifiedCards() *QualifiedCards {
	return &QualifiedCards{cards: make(map[string][]*proposition.Proposition)}
}

// Add records a qualified card for a surface. A proposition already
// present under the same surface (by unique id) is left where it is, so
// qualification order is stable across duplicate adds.
func (q *QualifiedCards) Add(surfaceURI string, p *proposition.Proposition) {
	if p == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.cards[surfaceURI] {
		if existing.UniqueID == p.UniqueID {
			return
		}
	}
	q.cards[surfaceURI] = append(q.cards[surfaceURI], p)
}

// Get returns a copy of the qualified cards for a surface, in
// qualification order.
func (q *QualifiedCards) Get(surfaceURI string) []*proposition.Proposition {
	q.mu.RLock()
	defer q.mu.RUnlock()

	list := q.cards[surfaceURI]
	if len(list) == 0 {
		return nil
	}
	out := make([]*proposition.Proposition, len(list))
	copy(out, list)
	return out
}

// RemoveActivity drops every qualified card whose activity id matches,
// across all surfaces, preserving the relative order of the remaining
// cards. Returns the number of cards removed.
func (q *QualifiedCards) RemoveActivity(activityID string) int {
	if activityID == "" {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for uri, list := range q.cards {
		kept := list[:0]
		for _, p := range list {
			if p.ActivityID() == activityID {
				removed++
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			delete(q.cards, uri)
		} else {
			q.cards[uri] = kept
		}
	}
	return removed
}

// Len returns the total number of qualified cards across surfaces.
func (q *QualifiedCards) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := 0
	for _, list := range q.cards {
		n += len(list)
	}
	return n
}

// Clear drops every qualified card. Called at extension teardown.
func (q *QualifiedCards) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cards = make(map[string][]*proposition.Proposition)
}

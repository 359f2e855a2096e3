package ledger

import "github.com/alanyoungcy/cricbot/internal/domain"

// Index is a point-in-time view of which selections are blocked.
type Index struct {
	blocked map[domain.BetKey]struct{}
}

// NewIndex builds an Index from ledger records. Failed records do not block.
func NewIndex(recs []domain.BetRecord) *Index {
	idx := &Index{blocked: make(map[domain.BetKey]struct{}, len(recs))}
	for _, r := range recs {
		idx.Add(r)
	}
	return idx
}

// Add records r in the index.
func (x *Index) Add(r domain.BetRecord) {
	if r.Blocks() {
		x.blocked[r.Key()] = struct{}{}
	}
}

// Blocked reports whether key has a non-failed record.
func (x *Index) Blocked(key domain.BetKey) bool {
	_, ok := x.blocked[key]
	return ok
}

// Len returns the number of blocked selections.
func (x *Index) Len() int { return len(x.blocked) }

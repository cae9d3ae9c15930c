package chain

import "time"

// TicketSummary is one row of a chain listing: the link-table row joined with
// category-relevant ticket fields and first/last post metadata.
type TicketSummary struct {
	TicketID     string
	LinkID       int64
	LinkTime     time.Time
	Subject      string
	Status       string
	Department   string
	TicketType   string
	Creator      string
	Category     Category
	CreatedAt    *time.Time
	LastActivity *time.Time
	FirstPost    string
	LastPost     string
}

// ChainSnapshot is the deduplicated, ordered view of one chain. Count always
// equals len(Tickets) and no two tickets share an identifier.
type ChainSnapshot struct {
	ChainHash string
	Tickets   []TicketSummary
	Count     int
}

// NewSnapshot builds a snapshot from listing rows, dropping duplicate ticket
// identifiers (first occurrence wins). Input order is preserved; the listing
// query is responsible for category/time ordering.
func NewSnapshot(chainHash string, tickets []TicketSummary) *ChainSnapshot {
	seen := make(map[string]bool, len(tickets))
	deduped := make([]TicketSummary, 0, len(tickets))
	for _, t := range tickets {
		if seen[t.TicketID] {
			continue
		}
		seen[t.TicketID] = true
		deduped = append(deduped, t)
	}
	return &ChainSnapshot{
		ChainHash: chainHash,
		Tickets:   deduped,
		Count:     len(deduped),
	}
}

// TicketIDs returns the ticket identifiers in snapshot order.
func (s *ChainSnapshot) TicketIDs() []string {
	ids := make([]string, 0, len(s.Tickets))
	for _, t := range s.Tickets {
		ids = append(ids, t.TicketID)
	}
	return ids
}

// ByCategory groups the snapshot's tickets by category, preserving order
// within each group.
func (s *ChainSnapshot) ByCategory() map[Category][]TicketSummary {
	groups := make(map[Category][]TicketSummary)
	for _, t := range s.Tickets {
		groups[t.Category] = append(groups[t.Category], t)
	}
	return groups
}

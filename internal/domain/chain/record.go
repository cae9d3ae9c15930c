package chain

import (
	"sort"
	"time"

	"chainalyzer/internal/shared/logger"
)

// Post is one customer-visible or private reply on a ticket. Synthetic posts
// are placeholders built from the ticket's first/last post convenience fields
// when the real post rows are missing upstream.
type Post struct {
	ID        string
	Time      time.Time
	Author    string
	Body      string
	Private   bool
	Synthetic bool
}

// Note is one internal staff note on a ticket.
type Note struct {
	ID     string
	Time   time.Time
	Author string
	Body   string
}

// SiteLocation is the service site pulled from custom field values.
type SiteLocation struct {
	Address    string
	City       string
	State      string
	SiteNumber string
}

// TurnupDetail is auxiliary cross-system data for a turnup ticket.
type TurnupDetail struct {
	TicketID      string
	DispatchID    string
	Technician    string
	ServiceDate   *time.Time
	TimeIn        *time.Time
	TimeOut       *time.Time
	Status        string
	WorkPerformed string
}

// DispatchDetail is auxiliary cross-system data for a dispatch ticket.
type DispatchDetail struct {
	TicketID    string
	Customer    string
	ServiceDate *time.Time
	ServiceType string
	Status      string
}

// TicketRecord is the normalized per-ticket view assembled by the detail
// fetcher. It is built once per fetch and not mutated afterwards, except for
// auxiliary enrichment attached through AttachTurnup/AttachDispatch.
type TicketRecord struct {
	ID           string
	Subject      string
	Status       string
	Department   string
	TicketType   string
	Creator      string
	Category     Category
	CreatedAt    *time.Time
	LastActivity *time.Time
	ClosedAt     *time.Time
	// ClosedAtSuspect marks an upstream close timestamp equal to the epoch
	// origin: a data-quality flag, not a real close event. ClosedAt stays nil.
	ClosedAtSuspect  bool
	Location         *SiteLocation
	ProjectID        string
	ParentDispatchID string
	FirstPost        string
	LastPost         string
	Posts            []Post
	Notes            []Note
	Turnup           *TurnupDetail
	Dispatch         *DispatchDetail
}

// AttachTurnup enriches the record with cross-system turnup data. A dispatch
// linkage found there supplies ParentDispatchID when the ticket row had none.
func (r *TicketRecord) AttachTurnup(detail *TurnupDetail) {
	if detail == nil {
		return
	}
	r.Turnup = detail
	if r.ParentDispatchID == "" && detail.DispatchID != "" {
		r.ParentDispatchID = detail.DispatchID
	}
}

// AttachDispatch enriches the record with cross-system dispatch data.
func (r *TicketRecord) AttachDispatch(detail *DispatchDetail) {
	if detail != nil {
		r.Dispatch = detail
	}
}

// NormalizePosts orders posts by timestamp ascending and collapses duplicate
// identifiers from upstream join fan-out. The first occurrence wins; every
// duplicate is logged, never silently overwritten.
func NormalizePosts(ticketID string, posts []Post, log logger.Interface) []Post {
	seen := make(map[string]bool, len(posts))
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if p.ID != "" && seen[p.ID] {
			if log != nil {
				log.Warnw("duplicate post collapsed", "ticket_id", ticketID, "post_id", p.ID)
			}
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// NormalizeNotes orders notes by timestamp ascending and collapses duplicate
// identifiers, first occurrence winning.
func NormalizeNotes(ticketID string, notes []Note, log logger.Interface) []Note {
	seen := make(map[string]bool, len(notes))
	out := make([]Note, 0, len(notes))
	for _, n := range notes {
		if n.ID != "" && seen[n.ID] {
			if log != nil {
				log.Warnw("duplicate note collapsed", "ticket_id", ticketID, "note_id", n.ID)
			}
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// SynthesizePosts builds placeholder posts from the first/last post
// convenience fields so downstream consumers always have minimal narrative
// context. Used only when both posts and notes came back empty.
func (r *TicketRecord) SynthesizePosts() {
	if len(r.Posts) > 0 || len(r.Notes) > 0 {
		return
	}
	var synthesized []Post
	if r.FirstPost != "" {
		synthesized = append(synthesized, Post{
			ID:        r.ID + "-first",
			Body:      r.FirstPost,
			Synthetic: true,
			Time:      timeOrZero(r.CreatedAt),
		})
	}
	if r.LastPost != "" && r.LastPost != r.FirstPost {
		synthesized = append(synthesized, Post{
			ID:        r.ID + "-last",
			Body:      r.LastPost,
			Synthetic: true,
			Time:      timeOrZero(r.LastActivity),
		})
	}
	r.Posts = synthesized
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

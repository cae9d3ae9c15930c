package chain

import "sort"

// PairType tags an analysis unit with the relationship it represents.
type PairType string

const (
	PairTurnupWithDispatch PairType = "turnup_with_dispatch"
	PairTurnupOnly         PairType = "turnup_only"
	PairDispatchOnly       PairType = "dispatch_only"
)

// TicketPair is one granular analysis unit: a primary ticket and, for linked
// turnups, the dispatch it fulfils. A dispatch shared by several turnups
// appears as the related ticket of each of them (fan-out, never merged).
type TicketPair struct {
	PrimaryID string
	RelatedID string
	Type      PairType
	Primary   *TicketRecord
	Related   *TicketRecord
}

// PlanPairs partitions the dispatch and turnup tickets of a chain into
// analysis units. Every turnup and every dispatch in the input appears in
// exactly one pair as primary, with linked dispatches additionally fanning
// out as related tickets. Output order is deterministic: turnups by ID, then
// orphan dispatches by ID.
func PlanPairs(records map[string]*TicketRecord) []TicketPair {
	var turnupIDs, dispatchIDs []string
	for id, r := range records {
		switch r.Category {
		case CategoryTurnup:
			turnupIDs = append(turnupIDs, id)
		case CategoryDispatch:
			dispatchIDs = append(dispatchIDs, id)
		}
	}
	sort.Strings(turnupIDs)
	sort.Strings(dispatchIDs)

	pairedDispatch := make(map[string]bool)
	pairs := make([]TicketPair, 0, len(turnupIDs)+len(dispatchIDs))

	for _, id := range turnupIDs {
		turnup := records[id]
		dispatch := resolveDispatch(records, turnup.ParentDispatchID)
		if dispatch == nil {
			pairs = append(pairs, TicketPair{
				PrimaryID: id,
				Type:      PairTurnupOnly,
				Primary:   turnup,
			})
			continue
		}
		pairedDispatch[dispatch.ID] = true
		pairs = append(pairs, TicketPair{
			PrimaryID: id,
			RelatedID: dispatch.ID,
			Type:      PairTurnupWithDispatch,
			Primary:   turnup,
			Related:   dispatch,
		})
	}

	for _, id := range dispatchIDs {
		if pairedDispatch[id] {
			continue
		}
		pairs = append(pairs, TicketPair{
			PrimaryID: id,
			Type:      PairDispatchOnly,
			Primary:   records[id],
		})
	}

	return pairs
}

func resolveDispatch(records map[string]*TicketRecord, dispatchID string) *TicketRecord {
	if dispatchID == "" {
		return nil
	}
	r, ok := records[dispatchID]
	if !ok || r.Category != CategoryDispatch {
		return nil
	}
	return r
}

// PlanBatches groups the remaining categories (shipping, project management,
// other) into fixed-size batches. The only ordering requirement is
// determinism: tickets are taken in sorted-ID order.
func PlanBatches(records map[string]*TicketRecord, size int) [][]*TicketRecord {
	if size < 1 {
		size = 1
	}
	var ids []string
	for id, r := range records {
		if r.Category != CategoryTurnup && r.Category != CategoryDispatch {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var batches [][]*TicketRecord
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batch := make([]*TicketRecord, 0, end-start)
		for _, id := range ids[start:end] {
			batch = append(batch, records[id])
		}
		batches = append(batches, batch)
	}
	return batches
}

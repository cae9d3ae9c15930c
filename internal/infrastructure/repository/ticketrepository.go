package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"chainalyzer/internal/domain/chain"
	"chainalyzer/internal/shared/logger"
	"chainalyzer/internal/shared/sanitize"
)

type ticketRow struct {
	TicketID     string `gorm:"column:ticketid"`
	Subject      string `gorm:"column:subject"`
	Status       string `gorm:"column:ticketstatustitle"`
	Department   string `gorm:"column:departmenttitle"`
	TicketType   string `gorm:"column:tickettypetitle"`
	Creator      string `gorm:"column:fullname"`
	Created      int64  `gorm:"column:dateline"`
	LastActivity int64  `gorm:"column:lastactivity"`
	Resolution   *int64 `gorm:"column:resolutiondateline"`
	FirstPost    string `gorm:"column:firstpost"`
	LastPost     string `gorm:"column:lastpost"`
}

type aggregateRow struct {
	TicketID string `gorm:"column:ticketid"`
	Payload  string `gorm:"column:payload"`
}

type customFieldRow struct {
	TicketID   string `gorm:"column:ticketid"`
	FieldTitle string `gorm:"column:title"`
	FieldValue string `gorm:"column:fieldvalue"`
}

// Custom field titles carrying site and project metadata in the upstream
// field-value table.
const (
	fieldSiteNumber = "Site Number"
	fieldCustomer   = "Customer"
	fieldState      = "State"
	fieldCity       = "City"
	fieldProjectID  = "Project ID"
)

type TicketRepositoryImpl struct {
	db        *gorm.DB
	aux       chain.AuxiliarySource
	sanitizer *sanitize.Sanitizer
	sink      sanitize.Sink
	logger    logger.Interface
}

// NewTicketRepository builds the detail fetcher. aux may be nil when the
// auxiliary store is disabled; sink may be nil to suppress debug snapshots.
func NewTicketRepository(db *gorm.DB, aux chain.AuxiliarySource, sanitizer *sanitize.Sanitizer, sink sanitize.Sink, log logger.Interface) chain.DetailFetcher {
	if sink == nil {
		sink = sanitize.NopSink{}
	}
	return &TicketRepositoryImpl{
		db:        db,
		aux:       aux,
		sanitizer: sanitizer,
		sink:      sink,
		logger:    log,
	}
}

func (r *TicketRepositoryImpl) FetchDetails(ctx context.Context, ticketIDs []string) (map[string]*chain.TicketRecord, []string, error) {
	if len(ticketIDs) == 0 {
		return map[string]*chain.TicketRecord{}, nil, nil
	}

	records, err := r.fetchCore(ctx, ticketIDs)
	if err != nil {
		return nil, nil, err
	}

	var missing []string
	for _, id := range ticketIDs {
		if _, ok := records[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		r.logger.Warnw("tickets missing from primary store",
			"requested", len(ticketIDs),
			"missing", missing)
	}
	if len(records) == 0 {
		return records, missing, nil
	}

	present := make([]string, 0, len(records))
	for _, id := range ticketIDs {
		if _, ok := records[id]; ok {
			present = append(present, id)
		}
	}

	if err := r.attachLocations(ctx, present, records); err != nil {
		return nil, nil, err
	}
	if err := r.attachPosts(ctx, present, records); err != nil {
		return nil, nil, err
	}
	if err := r.attachNotes(ctx, present, records); err != nil {
		return nil, nil, err
	}

	r.enrichAuxiliary(ctx, present, records)

	for _, rec := range records {
		rec.SynthesizePosts()
	}

	r.snapshot(records)
	return records, missing, nil
}

func (r *TicketRepositoryImpl) fetchCore(ctx context.Context, ticketIDs []string) (map[string]*chain.TicketRecord, error) {
	var rows []ticketRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			t.ticketid,
			t.subject,
			t.ticketstatustitle,
			t.departmenttitle,
			t.tickettypetitle,
			t.fullname,
			t.dateline,
			t.lastactivity,
			t.resolutiondateline,
			t.firstpost,
			t.lastpost
		FROM sw_tickets t
		WHERE t.ticketid IN ?`, ticketIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticket rows: %w", err)
	}

	records := make(map[string]*chain.TicketRecord, len(rows))
	for _, row := range rows {
		rec := &chain.TicketRecord{
			ID:           row.TicketID,
			Subject:      r.sanitizer.Text(row.Subject),
			Status:       row.Status,
			Department:   row.Department,
			TicketType:   row.TicketType,
			Creator:      row.Creator,
			Category:     chain.CategoryForDepartment(row.Department),
			CreatedAt:    epochToTime(row.Created),
			LastActivity: epochToTime(row.LastActivity),
			FirstPost:    r.sanitizer.Text(row.FirstPost),
			LastPost:     r.sanitizer.Text(row.LastPost),
		}
		// A resolution stamp at the epoch origin is upstream noise, not a
		// real close event. NULL means the ticket was simply never closed.
		if row.Resolution != nil {
			if *row.Resolution > 0 {
				rec.ClosedAt = epochToTime(*row.Resolution)
			} else {
				rec.ClosedAtSuspect = true
			}
		}
		records[row.TicketID] = rec
	}
	return records, nil
}

func (r *TicketRepositoryImpl) attachLocations(ctx context.Context, ticketIDs []string, records map[string]*chain.TicketRecord) error {
	var rows []customFieldRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			cfv.typeid AS ticketid,
			cf.title,
			cfv.fieldvalue
		FROM sw_customfieldvalues cfv
		JOIN sw_customfields cf ON cfv.customfieldid = cf.customfieldid
		WHERE cfv.typeid IN ?
			AND cf.title IN ?`,
		ticketIDs,
		[]string{fieldSiteNumber, fieldCustomer, fieldState, fieldCity, fieldProjectID}).
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to fetch custom field values: %w", err)
	}

	for _, row := range rows {
		rec, ok := records[row.TicketID]
		if !ok {
			continue
		}
		value := r.sanitizer.Text(row.FieldValue)
		if row.FieldTitle == fieldProjectID {
			rec.ProjectID = value
			continue
		}
		if rec.Location == nil {
			rec.Location = &chain.SiteLocation{}
		}
		switch row.FieldTitle {
		case fieldSiteNumber:
			rec.Location.SiteNumber = value
		case fieldCustomer:
			rec.Location.Address = value
		case fieldState:
			rec.Location.State = value
		case fieldCity:
			rec.Location.City = value
		}
	}
	return nil
}

func (r *TicketRepositoryImpl) attachPosts(ctx context.Context, ticketIDs []string, records map[string]*chain.TicketRecord) error {
	var rows []aggregateRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			p.ticketid,
			GROUP_CONCAT(JSON_OBJECT(
				'id', p.ticketpostid,
				'dateline', p.dateline,
				'fullname', p.fullname,
				'contents', p.contents,
				'isprivate', p.isprivate
			)) AS payload
		FROM sw_ticketposts p
		WHERE p.ticketid IN ?
		GROUP BY p.ticketid`, ticketIDs).
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to fetch post aggregates: %w", err)
	}

	for _, row := range rows {
		rec, ok := records[row.TicketID]
		if !ok {
			continue
		}
		objects := r.sanitizer.Aggregate(row.Payload)
		posts := make([]chain.Post, 0, len(objects))
		for _, obj := range objects {
			posts = append(posts, chain.Post{
				ID:      asString(obj["id"]),
				Time:    time.Unix(asInt64(obj["dateline"]), 0),
				Author:  asString(obj["fullname"]),
				Body:    r.sanitizer.Text(asString(obj["contents"])),
				Private: asBool(obj["isprivate"]),
			})
		}
		rec.Posts = chain.NormalizePosts(rec.ID, posts, r.logger)
	}
	return nil
}

func (r *TicketRepositoryImpl) attachNotes(ctx context.Context, ticketIDs []string, records map[string]*chain.TicketRecord) error {
	var rows []aggregateRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			n.linktypeid AS ticketid,
			GROUP_CONCAT(JSON_OBJECT(
				'id', n.ticketnoteid,
				'dateline', n.dateline,
				'staffname', n.staffname,
				'note', n.note
			)) AS payload
		FROM sw_ticketnotes n
		WHERE n.linktypeid IN ?
		GROUP BY n.linktypeid`, ticketIDs).
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to fetch note aggregates: %w", err)
	}

	for _, row := range rows {
		rec, ok := records[row.TicketID]
		if !ok {
			continue
		}
		objects := r.sanitizer.Aggregate(row.Payload)
		notes := make([]chain.Note, 0, len(objects))
		for _, obj := range objects {
			notes = append(notes, chain.Note{
				ID:     asString(obj["id"]),
				Time:   time.Unix(asInt64(obj["dateline"]), 0),
				Author: asString(obj["staffname"]),
				Body:   r.sanitizer.Text(asString(obj["note"])),
			})
		}
		rec.Notes = chain.NormalizeNotes(rec.ID, notes, r.logger)
	}
	return nil
}

// enrichAuxiliary attaches turnup/dispatch data from the cross-system store.
// An unreachable auxiliary store is logged and skipped; enrichment never
// fails the primary fetch.
func (r *TicketRepositoryImpl) enrichAuxiliary(ctx context.Context, ticketIDs []string, records map[string]*chain.TicketRecord) {
	if r.aux == nil {
		return
	}

	turnups, err := r.aux.TurnupsForTickets(ctx, ticketIDs)
	if err != nil {
		r.logger.Warnw("auxiliary turnup lookup failed, continuing without enrichment", "error", err)
	} else {
		for id, detail := range turnups {
			if rec, ok := records[id]; ok {
				rec.AttachTurnup(detail)
			}
		}
	}

	dispatches, err := r.aux.DispatchesForTickets(ctx, ticketIDs)
	if err != nil {
		r.logger.Warnw("auxiliary dispatch lookup failed, continuing without enrichment", "error", err)
		return
	}
	for id, detail := range dispatches {
		if rec, ok := records[id]; ok {
			rec.AttachDispatch(detail)
		}
	}
}

func (r *TicketRepositoryImpl) snapshot(records map[string]*chain.TicketRecord) {
	data, err := json.Marshal(records)
	if err != nil {
		return
	}
	r.sink.Write("fetched_records.json", data)
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	case json.Number:
		n, _ := t.Int64()
		return n
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t == "1" || t == "true"
	default:
		return false
	}
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"chainalyzer/internal/domain/chain"
	"chainalyzer/internal/shared/errors"
	"chainalyzer/internal/shared/logger"
)

// chainLinkRow is one raw row of the link-table join used by ListChainTickets.
// Epoch columns come back as unix seconds.
type chainLinkRow struct {
	LinkID       int64  `gorm:"column:ticketlinkchainid"`
	LinkDateline int64  `gorm:"column:link_dateline"`
	TicketID     string `gorm:"column:ticketid"`
	Subject      string `gorm:"column:subject"`
	Status       string `gorm:"column:ticketstatustitle"`
	Department   string `gorm:"column:departmenttitle"`
	TicketType   string `gorm:"column:tickettypetitle"`
	Creator      string `gorm:"column:fullname"`
	Created      int64  `gorm:"column:ticket_created"`
	LastActivity int64  `gorm:"column:lastactivity"`
	FirstPost    string `gorm:"column:firstpost"`
	LastPost     string `gorm:"column:lastpost"`
}

type ChainRepositoryImpl struct {
	db            *gorm.DB
	excludedDepts []string
	excludedTypes []string
	logger        logger.Interface
}

func NewChainRepository(db *gorm.DB, excludedDepts, excludedTypes []string, log logger.Interface) chain.Repository {
	if len(excludedDepts) == 0 {
		excludedDepts = chain.DefaultExcludedDepartments
	}
	if len(excludedTypes) == 0 {
		excludedTypes = chain.DefaultExcludedTypes
	}
	return &ChainRepositoryImpl{
		db:            db,
		excludedDepts: excludedDepts,
		excludedTypes: excludedTypes,
		logger:        log,
	}
}

func (r *ChainRepositoryImpl) ResolveChain(ctx context.Context, ticketID string) (string, error) {
	var chainHash string
	err := r.db.WithContext(ctx).
		Raw("SELECT chainhash FROM sw_ticketlinkchains WHERE ticketid = ? LIMIT 1", ticketID).
		Scan(&chainHash).Error
	if err != nil {
		return "", fmt.Errorf("failed to resolve chain for ticket %s: %w", ticketID, err)
	}
	if chainHash == "" {
		return "", errors.NewNotFoundError("ticket is not part of any chain", ticketID)
	}
	return chainHash, nil
}

func (r *ChainRepositoryImpl) ListChainTickets(ctx context.Context, chainHash string) ([]chain.TicketSummary, error) {
	var rows []chainLinkRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			tlc.ticketlinkchainid,
			tlc.dateline AS link_dateline,
			t.ticketid,
			t.subject,
			t.ticketstatustitle,
			t.departmenttitle,
			t.tickettypetitle,
			t.fullname,
			t.dateline AS ticket_created,
			t.lastactivity,
			t.firstpost,
			t.lastpost
		FROM sw_ticketlinkchains tlc
		JOIN sw_tickets t ON tlc.ticketid = t.ticketid
		WHERE tlc.chainhash = ?
			AND t.departmenttitle NOT IN ?
			AND t.tickettypetitle NOT IN ?
		ORDER BY tlc.dateline DESC`,
		chainHash, r.excludedDepts, r.excludedTypes).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list chain tickets for %s: %w", chainHash, err)
	}

	// Join fan-out can repeat a ticket; rows arrive newest link first, so the
	// first occurrence kept here is the most recent link row per ticket.
	seen := make(map[string]bool, len(rows))
	summaries := make([]chain.TicketSummary, 0, len(rows))
	for _, row := range rows {
		if seen[row.TicketID] {
			r.logger.Debugw("duplicate link row dropped",
				"chain_hash", chainHash,
				"ticket_id", row.TicketID,
				"link_id", row.LinkID)
			continue
		}
		seen[row.TicketID] = true
		summaries = append(summaries, row.toSummary())
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Category != summaries[j].Category {
			return summaries[i].Category < summaries[j].Category
		}
		return summaries[i].LinkTime.Before(summaries[j].LinkTime)
	})

	return summaries, nil
}

func (row *chainLinkRow) toSummary() chain.TicketSummary {
	return chain.TicketSummary{
		TicketID:     row.TicketID,
		LinkID:       row.LinkID,
		LinkTime:     time.Unix(row.LinkDateline, 0),
		Subject:      row.Subject,
		Status:       row.Status,
		Department:   row.Department,
		TicketType:   row.TicketType,
		Creator:      row.Creator,
		Category:     chain.CategoryForDepartment(row.Department),
		CreatedAt:    epochToTime(row.Created),
		LastActivity: epochToTime(row.LastActivity),
		FirstPost:    row.FirstPost,
		LastPost:     row.LastPost,
	}
}

// epochToTime converts a unix-seconds column to a nullable time. Zero means
// the column was never set upstream.
func epochToTime(epoch int64) *time.Time {
	if epoch == 0 {
		return nil
	}
	t := time.Unix(epoch, 0)
	return &t
}

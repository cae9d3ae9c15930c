package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"chainalyzer/internal/domain/chain"
	"chainalyzer/internal/infrastructure/fixture"
	"chainalyzer/internal/shared/errors"
	"chainalyzer/internal/shared/logger"
)

func setupFixtureDB(t *testing.T) (*gorm.DB, *fixture.Result) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	seeder := fixture.NewSeeder(db, 42, logger.NewLogger())
	seeded, err := seeder.SeedChain(2, 3)
	require.NoError(t, err)

	return db, seeded
}

func TestChainRepository_ResolveChain(t *testing.T) {
	db, seeded := setupFixtureDB(t)
	repo := NewChainRepository(db, nil, nil, logger.NewLogger())

	hash, err := repo.ResolveChain(context.Background(), seeded.ExampleTicket)
	require.NoError(t, err)
	assert.Equal(t, seeded.ChainHash, hash)
}

func TestChainRepository_ResolveChain_NotFound(t *testing.T) {
	db, _ := setupFixtureDB(t)
	repo := NewChainRepository(db, nil, nil, logger.NewLogger())

	_, err := repo.ResolveChain(context.Background(), "1111111")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestChainRepository_ListChainTickets(t *testing.T) {
	db, seeded := setupFixtureDB(t)
	repo := NewChainRepository(db, nil, nil, logger.NewLogger())

	summaries, err := repo.ListChainTickets(context.Background(), seeded.ChainHash)
	require.NoError(t, err)

	// 2 dispatch + 3 turnup + 1 project ticket, no duplicates.
	require.Len(t, summaries, 6)
	seen := map[string]bool{}
	for _, s := range summaries {
		assert.False(t, seen[s.TicketID], "duplicate ticket %s", s.TicketID)
		seen[s.TicketID] = true
	}
	for _, id := range seeded.DispatchTickets {
		assert.True(t, seen[id])
	}
	for _, id := range seeded.TurnupTickets {
		assert.True(t, seen[id])
	}
	assert.True(t, seen[seeded.ProjectTicket])

	// Ordered by category, then link time ascending within a category.
	for i := 1; i < len(summaries); i++ {
		prev, cur := summaries[i-1], summaries[i]
		if prev.Category == cur.Category {
			assert.False(t, cur.LinkTime.Before(prev.LinkTime))
		} else {
			assert.Less(t, string(prev.Category), string(cur.Category))
		}
	}
}

func TestChainRepository_ListChainTickets_Exclusions(t *testing.T) {
	db, seeded := setupFixtureDB(t)

	// Plant a helpdesk ticket and a 3rd-party turnup in the same chain.
	require.NoError(t, db.Exec(`
		INSERT INTO sw_tickets (ticketid, subject, tickettypetitle, ticketstatustitle, departmenttitle, fullname, dateline, lastactivity)
		VALUES (5000001, 'Password reset', 'Incident', 'Open', 'Helpdesk Tier 1', 'User', 1700000000, 1700000000)`).Error)
	require.NoError(t, db.Exec(`
		INSERT INTO sw_tickets (ticketid, subject, tickettypetitle, ticketstatustitle, departmenttitle, fullname, dateline, lastactivity)
		VALUES (5000002, 'Vendor turnup', '3rd Party Turnup', 'Open', 'Turnups', 'Vendor', 1700000000, 1700000000)`).Error)
	for _, id := range []int{5000001, 5000002} {
		require.NoError(t, db.Exec(`
			INSERT INTO sw_ticketlinkchains (ticketid, chainhash, dateline, ticketlinktypeid)
			VALUES (?, ?, 1700000000, 2)`, id, seeded.ChainHash).Error)
	}

	repo := NewChainRepository(db, nil, nil, logger.NewLogger())
	summaries, err := repo.ListChainTickets(context.Background(), seeded.ChainHash)
	require.NoError(t, err)

	for _, s := range summaries {
		assert.NotEqual(t, "5000001", s.TicketID)
		assert.NotEqual(t, "5000002", s.TicketID)
	}
}

func TestChainRepository_ListChainTickets_DuplicateLinkRows(t *testing.T) {
	db, seeded := setupFixtureDB(t)

	// A second, later link row for the example ticket; only the most recent
	// one must survive dedup.
	require.NoError(t, db.Exec(`
		INSERT INTO sw_ticketlinkchains (ticketid, chainhash, dateline, ticketlinktypeid)
		VALUES (?, ?, ?, 2)`, seeded.ExampleTicket, seeded.ChainHash, 2000000000).Error)

	repo := NewChainRepository(db, nil, nil, logger.NewLogger())
	summaries, err := repo.ListChainTickets(context.Background(), seeded.ChainHash)
	require.NoError(t, err)

	var matches []chain.TicketSummary
	for _, s := range summaries {
		if s.TicketID == seeded.ExampleTicket {
			matches = append(matches, s)
		}
	}
	require.Len(t, matches, 1)
	assert.Equal(t, int64(2000000000), matches[0].LinkTime.Unix())
}

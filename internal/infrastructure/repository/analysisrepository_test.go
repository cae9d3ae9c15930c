package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"chainalyzer/internal/domain/analysis"
	"chainalyzer/internal/shared/errors"
)

func setupAnalysisRepo(t *testing.T) analysis.Repository {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	repo, err := NewAnalysisRepository(db)
	require.NoError(t, err)
	return repo
}

func TestAnalysisRepository_SaveAndGet(t *testing.T) {
	repo := setupAnalysisRepo(t)
	ctx := context.Background()

	result := analysis.NewResult("HASH-1", "2401912", 4,
		"1. TIMELINE OF EVENTS: dispatch then turnup 2. RELATIONSHIP MAP: one to one")
	err := repo.Save(ctx, result)
	require.NoError(t, err)
	assert.NotZero(t, result.ID)
	assert.False(t, result.CreatedAt.IsZero())

	found, err := repo.GetByTicket(ctx, "2401912")
	require.NoError(t, err)
	assert.Equal(t, "HASH-1", found.ChainHash)
	assert.Equal(t, 4, found.TicketCount)
	assert.Equal(t, "dispatch then turnup", found.TimelineEvents)
	assert.Equal(t, "one to one", found.RelationshipMap)
}

func TestAnalysisRepository_GetByTicket_NotFound(t *testing.T) {
	repo := setupAnalysisRepo(t)

	_, err := repo.GetByTicket(context.Background(), "9999999")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestAnalysisRepository_AppendOnlyReruns(t *testing.T) {
	repo := setupAnalysisRepo(t)
	ctx := context.Background()

	first := analysis.NewResult("HASH-2", "2401912", 3, "first run")
	require.NoError(t, repo.Save(ctx, first))
	second := analysis.NewResult("HASH-2", "2401912", 3, "second run")
	require.NoError(t, repo.Save(ctx, second))

	results, err := repo.GetByChain(ctx, "HASH-2")
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.NotEqual(t, results[0].ID, results[1].ID)
}

func TestAnalysisRepository_List(t *testing.T) {
	repo := setupAnalysisRepo(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(ctx, analysis.NewResult("HASH-3", "2401912", 1, "run")))
	}

	page, err := repo.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	all, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

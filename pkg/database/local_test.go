package database

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-tracker-backend/pkg/models"
)

func seededLocal(t *testing.T, dir string) *LocalDatabase {
	t.Helper()
	db, err := NewLocalDatabase(dir)
	require.NoError(t, err)
	require.NoError(t, db.Seed(
		[]models.CardSet{{ID: "base1", Name: "Base", ReleaseDate: "1999-01-09", TotalCards: 102}},
		[]models.Card{
			{ID: "base1-4", SetID: "base1", Name: "Charizard", Number: "4"},
			{ID: "base1-2", SetID: "base1", Name: "Blastoise", Number: "2"},
			{ID: "base1-10", SetID: "base1", Name: "Mewtwo", Number: "10"},
		},
	))
	return db
}

func TestLocalDatabase_Catalog(t *testing.T) {
	ctx := context.Background()
	db := seededLocal(t, t.TempDir())

	set, err := db.GetCardSet(ctx, "base1")
	require.NoError(t, err)
	assert.Equal(t, 102, set.TotalCards)

	_, err = db.GetCardSet(ctx, "base9")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = db.GetCard(ctx, "base1-99")
	assert.True(t, errors.Is(err, ErrNotFound))

	cards, err := db.ListCards(ctx, CardQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "base1-10", cards[0].ID)
	assert.Equal(t, "base1-2", cards[1].ID)

	cards, err = db.ListCards(ctx, CardQuery{Offset: 2})
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "base1-4", cards[0].ID)

	cards, err = db.ListCards(ctx, CardQuery{SetID: "base2"})
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestLocalDatabase_IdempotentAdd(t *testing.T) {
	ctx := context.Background()
	db := seededLocal(t, t.TempDir())

	for i := 0; i < 3; i++ {
		require.NoError(t, db.AddCollectionEntry(ctx, UserCollection, "u1", "base1-4"))
	}
	n, err := db.CountCollection(ctx, UserCollection, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// 两个收藏表互不影响
	n, err = db.CountCollection(ctx, GameCollection, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	err = db.AddCollectionEntry(ctx, UserCollection, "u1", "base1-99")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = db.AddCollectionEntry(ctx, CollectionKind("wishlist"), "u1", "base1-4")
	assert.Error(t, err)
}

func TestLocalDatabase_Procedures(t *testing.T) {
	ctx := context.Background()
	db := seededLocal(t, t.TempDir())

	require.NoError(t, db.AddCardToGameCollectionSafe(ctx, "u1", "base1-2"))
	require.NoError(t, db.AddCardToGameCollectionSafe(ctx, "u1", "base1-2"))

	n, err := db.GetGameCollectionCountSafe(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ids, err := db.GetUserGameCollectionSafe(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"base1-2"}, ids)
}

func TestLocalDatabase_Persists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db := seededLocal(t, dir)
	require.NoError(t, db.AddCollectionEntry(ctx, GameCollection, "u1", "base1-4"))

	reopened, err := NewLocalDatabase(dir)
	require.NoError(t, err)
	ids, err := reopened.ListCollectedCardIDs(ctx, GameCollection, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"base1-4"}, ids)

	card, err := reopened.GetCard(ctx, "base1-4")
	require.NoError(t, err)
	assert.Equal(t, "Charizard", card.Name)
	assert.NoError(t, reopened.HealthCheck(ctx))
}

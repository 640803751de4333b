package booster

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-tracker-backend/pkg/collection"
	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/models"
)

// countingStore records every backend read.
type countingStore struct {
	*database.LocalDatabase
	reads int
}

func (s *countingStore) ListCards(ctx context.Context, q database.CardQuery) ([]models.Card, error) {
	s.reads++
	return s.LocalDatabase.ListCards(ctx, q)
}

func (s *countingStore) ListCollectedCardIDs(ctx context.Context, kind database.CollectionKind, userID string) ([]string, error) {
	s.reads++
	return s.LocalDatabase.ListCollectedCardIDs(ctx, kind, userID)
}

func (s *countingStore) CountCollection(ctx context.Context, kind database.CollectionKind, userID string) (int, error) {
	s.reads++
	return s.LocalDatabase.CountCollection(ctx, kind, userID)
}

func newGame(t *testing.T, packSize int) (*Game, *countingStore) {
	t.Helper()
	db, err := database.NewLocalDatabase(t.TempDir())
	require.NoError(t, err)

	var cards []models.Card
	for i := 1; i <= 12; i++ {
		cards = append(cards, models.Card{ID: fmt.Sprintf("base1-%02d", i), SetID: "base1", Name: fmt.Sprintf("Card %d", i), Number: fmt.Sprint(i)})
	}
	cards = append(cards, models.Card{ID: "base2-01", SetID: "base2", Name: "Other", Number: "1"})
	require.NoError(t, db.Seed([]models.CardSet{{ID: "base1"}, {ID: "base2"}}, cards))

	store := &countingStore{LocalDatabase: db}
	tracker, err := collection.NewTracker(store, database.GameCollection, nil)
	require.NoError(t, err)
	game, err := NewGame(store, tracker, packSize, nil)
	require.NoError(t, err)
	return game, store
}

func TestOpen_RequiresUser(t *testing.T) {
	game, store := newGame(t, 5)

	_, err := game.Open(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = game.Claim(context.Background(), "", []string{"base1-01"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, store.reads)
}

func TestOpen_OrderedAndDeterministic(t *testing.T) {
	game, _ := newGame(t, 5)
	ctx := context.Background()

	first, err := game.Open(ctx, "u1", "")
	require.NoError(t, err)
	second, err := game.Open(ctx, "u1", "")
	require.NoError(t, err)

	require.Len(t, first.Cards, 5)
	assert.Equal(t, "base1-01", first.Cards[0].ID)
	assert.Equal(t, "base1-05", first.Cards[4].ID)
	assert.Equal(t, first, second)
}

func TestOpen_SetFilter(t *testing.T) {
	game, _ := newGame(t, 5)

	pack, err := game.Open(context.Background(), "u1", "base2")
	require.NoError(t, err)
	require.Len(t, pack.Cards, 1)
	assert.Equal(t, "base2-01", pack.Cards[0].ID)

	_, err = game.Open(context.Background(), "u1", "base9")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestClaim(t *testing.T) {
	game, _ := newGame(t, 5)
	ctx := context.Background()

	summary, err := game.Claim(ctx, "u1", []string{"base1-01", "base1-02", "base1-01", "nope"})
	require.NoError(t, err)
	require.Len(t, summary.Results, 3)
	assert.True(t, summary.Results[0].Added)
	assert.True(t, summary.Results[1].Added)
	assert.False(t, summary.Results[2].Added)
	assert.NotEmpty(t, summary.Results[2].Error)
	assert.Equal(t, 2, summary.Count)

	// 再次领取不会增加数量
	summary, err = game.Claim(ctx, "u1", []string{"base1-02"})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)

	pack, err := game.Open(ctx, "u1", "")
	require.NoError(t, err)
	assert.True(t, pack.Cards[0].Owned)
	assert.True(t, pack.Cards[1].Owned)
	assert.False(t, pack.Cards[2].Owned)

	ids, err := game.Collection(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"base1-01", "base1-02"}, ids)
}

func TestNewGame_RejectsUserTracker(t *testing.T) {
	db, err := database.NewLocalDatabase(t.TempDir())
	require.NoError(t, err)
	tracker, err := collection.NewTracker(db, database.UserCollection, nil)
	require.NoError(t, err)

	_, err = NewGame(db, tracker, 0, nil)
	assert.Error(t, err)
}

func TestNewGame_DefaultPackSize(t *testing.T) {
	game, _ := newGame(t, 0)
	assert.Equal(t, DefaultPackSize, game.PackSize())
}

package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/models"
)

type countingStore struct {
	*database.LocalDatabase
	setCalls  atomic.Int32
	cardCalls atomic.Int32
	listCalls atomic.Int32
}

func (s *countingStore) GetCardSet(ctx context.Context, id string) (*models.CardSet, error) {
	s.setCalls.Add(1)
	return s.LocalDatabase.GetCardSet(ctx, id)
}

func (s *countingStore) GetCard(ctx context.Context, id string) (*models.Card, error) {
	s.cardCalls.Add(1)
	return s.LocalDatabase.GetCard(ctx, id)
}

func (s *countingStore) ListCards(ctx context.Context, q database.CardQuery) ([]models.Card, error) {
	s.listCalls.Add(1)
	return s.LocalDatabase.ListCards(ctx, q)
}

func newStore(t *testing.T) *countingStore {
	t.Helper()
	db, err := database.NewLocalDatabase(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.Seed(
		[]models.CardSet{
			{ID: "base2", Name: "Jungle", ReleaseDate: "1999-06-16", TotalCards: 64},
			{ID: "base1", Name: "Base", ReleaseDate: "1999-01-09", TotalCards: 102},
		},
		[]models.Card{
			{ID: "base1-10", SetID: "base1", Name: "Mewtwo", Number: "10"},
			{ID: "base1-2", SetID: "base1", Name: "Blastoise", Number: "2"},
			{ID: "base1-4", SetID: "base1", Name: "Charizard", Number: "4"},
			{ID: "base2-1", SetID: "base2", Name: "Clefable", Number: "1"},
		},
	))
	return &countingStore{LocalDatabase: db}
}

func TestGetSet_CachesHits(t *testing.T) {
	store := newStore(t)
	r, err := NewReader(store, Options{CacheSize: 16, CacheTTL: time.Minute})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		set, err := r.GetSet(context.Background(), "base1")
		require.NoError(t, err)
		assert.Equal(t, "Base", set.Name)
	}
	assert.EqualValues(t, 1, store.setCalls.Load())
}

func TestGetSet_ExpiresAfterTTL(t *testing.T) {
	store := newStore(t)
	r, err := NewReader(store, Options{CacheSize: 16, CacheTTL: time.Minute})
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	_, err = r.GetSet(context.Background(), "base1")
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = r.GetSet(context.Background(), "base1")
	require.NoError(t, err)

	assert.EqualValues(t, 2, store.setCalls.Load())
}

func TestNotFound(t *testing.T) {
	r, err := NewReader(newStore(t), Options{CacheSize: 16})
	require.NoError(t, err)

	_, err = r.GetSet(context.Background(), "base9")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = r.GetCard(context.Background(), "base1-99")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = r.SetDetail(context.Background(), "base9")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = r.GetSet(context.Background(), "  ")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetCard(t *testing.T) {
	r, err := NewReader(newStore(t), Options{})
	require.NoError(t, err)

	card, err := r.GetCard(context.Background(), "base1-4")
	require.NoError(t, err)
	assert.Equal(t, "Charizard", card.Name)
	assert.Equal(t, "base1", card.SetID)
}

func TestSetDetail_NaturalOrder(t *testing.T) {
	r, err := NewReader(newStore(t), Options{CacheSize: 16})
	require.NoError(t, err)

	detail, err := r.SetDetail(context.Background(), "base1")
	require.NoError(t, err)
	assert.Equal(t, "base1", detail.Set.ID)

	var numbers []string
	for _, c := range detail.Cards {
		numbers = append(numbers, c.Number)
	}
	assert.Equal(t, []string{"2", "4", "10"}, numbers)
}

func TestListSets_ReleaseOrder(t *testing.T) {
	r, err := NewReader(newStore(t), Options{})
	require.NoError(t, err)

	sets, err := r.ListSets(context.Background())
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, "base1", sets[0].ID)
}

func TestSearch(t *testing.T) {
	store := newStore(t)
	r, err := NewReader(store, Options{CacheSize: 16})
	require.NoError(t, err)

	cards, err := r.Search(context.Background(), "chz", 5)
	require.NoError(t, err)
	require.NotEmpty(t, cards)
	assert.Equal(t, "base1-4", cards[0].ID)

	// 一页数据加一个空页
	assert.EqualValues(t, 2, store.listCalls.Load())

	_, err = r.Search(context.Background(), "mew", 5)
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.listCalls.Load())

	empty, err := r.Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// cappedStore 模拟把单页截断到 maxRows 行的后端（如 PostgREST max-rows）
type cappedStore struct {
	*countingStore
	maxRows int
}

func (s *cappedStore) ListCards(ctx context.Context, q database.CardQuery) ([]models.Card, error) {
	cards, err := s.countingStore.ListCards(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(cards) > s.maxRows {
		cards = cards[:s.maxRows]
	}
	return cards, nil
}

func TestSearch_ReadsPastServerPageCap(t *testing.T) {
	store := &cappedStore{countingStore: newStore(t), maxRows: 1}
	r, err := NewReader(store, Options{CacheSize: 16})
	require.NoError(t, err)

	for _, tc := range []struct{ query, id string }{
		{"clefable", "base2-1"},
		{"mewtwo", "base1-10"},
		{"blastoise", "base1-2"},
		{"charizard", "base1-4"},
	} {
		cards, err := r.Search(context.Background(), tc.query, 1)
		require.NoError(t, err)
		require.Len(t, cards, 1, tc.query)
		assert.Equal(t, tc.id, cards[0].ID)
	}
	// 四页各一行，加一个空页；之后命中缓存
	assert.EqualValues(t, 5, store.listCalls.Load())
}

func TestCachedSlicesAreNotShared(t *testing.T) {
	r, err := NewReader(newStore(t), Options{CacheSize: 16})
	require.NoError(t, err)
	ctx := context.Background()

	sets, err := r.ListSets(ctx)
	require.NoError(t, err)
	sets[0].Name = "mutated"

	again, err := r.ListSets(ctx)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, "Base", again[0].Name)

	cards, err := r.ListCardsBySet(ctx, "base1")
	require.NoError(t, err)
	cards[0].Name = "mutated"

	cached, err := r.ListCardsBySet(ctx, "base1")
	require.NoError(t, err)
	assert.Equal(t, "Blastoise", cached[0].Name)
	cached[1].Number = "999"

	detail, err := r.SetDetail(ctx, "base1")
	require.NoError(t, err)
	assert.Equal(t, "4", detail.Cards[1].Number)
}

func TestNaturalLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"2", "10", true},
		{"10", "2", false},
		{"4a", "4b", true},
		{"99", "TG01", true},
		{"TG01", "1", false},
		{"SV1", "SV2", true},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, NaturalLess(tt.a, tt.b))
		})
	}
}

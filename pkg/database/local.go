package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"card-tracker-backend/pkg/models"
)

// LocalDatabase 本地文件数据库实现（开发与测试用）
// 目录数据只读加载；收藏表在每次写入后整体落盘。
type LocalDatabase struct {
	dataDir string

	mu          sync.RWMutex
	sets        []models.CardSet
	cards       []models.Card
	collections map[CollectionKind][]models.CollectionEntry
}

// NewLocalDatabase 创建本地数据库实例并加载已有数据
func NewLocalDatabase(dataDir string) (*LocalDatabase, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	db := &LocalDatabase{
		dataDir:     dataDir,
		collections: make(map[CollectionKind][]models.CollectionEntry),
	}
	if err := db.loadFile("card_sets.json", &db.sets); err != nil {
		return nil, err
	}
	if err := db.loadFile("cards.json", &db.cards); err != nil {
		return nil, err
	}
	for _, kind := range []CollectionKind{UserCollection, GameCollection} {
		var entries []models.CollectionEntry
		if err := db.loadFile(string(kind)+".json", &entries); err != nil {
			return nil, err
		}
		db.collections[kind] = entries
	}
	return db, nil
}

// Seed 写入目录数据（覆盖现有卡组与卡牌）
func (db *LocalDatabase) Seed(sets []models.CardSet, cards []models.Card) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.sets = append([]models.CardSet(nil), sets...)
	db.cards = append([]models.Card(nil), cards...)
	if err := db.saveFile("card_sets.json", db.sets); err != nil {
		return err
	}
	return db.saveFile("cards.json", db.cards)
}

// ================= Catalog =================

func (db *LocalDatabase) ListCardSets(ctx context.Context) ([]models.CardSet, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	sets := append([]models.CardSet(nil), db.sets...)
	sort.SliceStable(sets, func(i, j int) bool { return sets[i].ReleaseDate < sets[j].ReleaseDate })
	return sets, nil
}

func (db *LocalDatabase) GetCardSet(ctx context.Context, id string) (*models.CardSet, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, s := range db.sets {
		if s.ID == id {
			set := s
			return &set, nil
		}
	}
	return nil, fmt.Errorf("card set %s: %w", id, ErrNotFound)
}

func (db *LocalDatabase) ListCardsBySet(ctx context.Context, setID string) ([]models.Card, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	cards := []models.Card{}
	for _, c := range db.cards {
		if c.SetID == setID {
			cards = append(cards, c)
		}
	}
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].Number < cards[j].Number })
	return cards, nil
}

func (db *LocalDatabase) GetCard(ctx context.Context, id string) (*models.Card, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, c := range db.cards {
		if c.ID == id {
			card := c
			return &card, nil
		}
	}
	return nil, fmt.Errorf("card %s: %w", id, ErrNotFound)
}

func (db *LocalDatabase) ListCards(ctx context.Context, q CardQuery) ([]models.Card, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	cards := []models.Card{}
	for _, c := range db.cards {
		if q.SetID == "" || c.SetID == q.SetID {
			cards = append(cards, c)
		}
	}
	sort.SliceStable(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })

	if q.Offset > 0 {
		if q.Offset >= len(cards) {
			return []models.Card{}, nil
		}
		cards = cards[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(cards) {
		cards = cards[:q.Limit]
	}
	return cards, nil
}

// ================= Collections (primary path) =================

func (db *LocalDatabase) ListCollectedCardIDs(ctx context.Context, kind CollectionKind, userID string) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown collection %q", kind)
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	ids := []string{}
	for _, e := range db.collections[kind] {
		if e.UserID == userID {
			ids = append(ids, e.CardID)
		}
	}
	return ids, nil
}

func (db *LocalDatabase) AddCollectionEntry(ctx context.Context, kind CollectionKind, userID, cardID string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown collection %q", kind)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	// 与 (user_id, card_id) 唯一约束等价
	for _, e := range db.collections[kind] {
		if e.UserID == userID && e.CardID == cardID {
			return nil
		}
	}
	if !db.hasCard(cardID) {
		return fmt.Errorf("card %s: %w", cardID, ErrNotFound)
	}

	entries := append(db.collections[kind], models.CollectionEntry{
		ID:          uuid.New().String(),
		UserID:      userID,
		CardID:      cardID,
		CollectedAt: time.Now().UTC(),
	})
	if err := db.saveFile(string(kind)+".json", entries); err != nil {
		return err
	}
	db.collections[kind] = entries
	return nil
}

func (db *LocalDatabase) CountCollection(ctx context.Context, kind CollectionKind, userID string) (int, error) {
	ids, err := db.ListCollectedCardIDs(ctx, kind, userID)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ================= Remote procedures (fallback path) =================

func (db *LocalDatabase) GetGameCollectionCountSafe(ctx context.Context, userID string) (int, error) {
	return db.CountCollection(ctx, GameCollection, userID)
}

func (db *LocalDatabase) GetUserGameCollectionSafe(ctx context.Context, userID string) ([]string, error) {
	return db.ListCollectedCardIDs(ctx, GameCollection, userID)
}

func (db *LocalDatabase) AddCardToGameCollectionSafe(ctx context.Context, userID, cardID string) error {
	return db.AddCollectionEntry(ctx, GameCollection, userID, cardID)
}

// HealthCheck 健康检查
func (db *LocalDatabase) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(db.dataDir); os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s", db.dataDir)
	}
	return nil
}

// Close 关闭连接（本地数据库无需关闭）
func (db *LocalDatabase) Close() error {
	return nil
}

// 私有辅助方法

func (db *LocalDatabase) hasCard(id string) bool {
	for _, c := range db.cards {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (db *LocalDatabase) loadFile(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(db.dataDir, name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func (db *LocalDatabase) saveFile(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	// 先写临时文件再重命名，避免半写文件
	tmp := filepath.Join(db.dataDir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return os.Rename(tmp, filepath.Join(db.dataDir, name))
}

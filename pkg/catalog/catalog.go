// Package catalog reads the card catalog (sets and cards) through a
// read-through cache.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sahilm/fuzzy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/models"
)

// searchPageSize 搜索索引加载时的单页大小
const searchPageSize = 500

// ErrNotFound is returned when a set or card id does not exist.
var ErrNotFound = database.ErrNotFound

// Store 目录读取所需的存储操作
type Store interface {
	ListCardSets(ctx context.Context) ([]models.CardSet, error)
	GetCardSet(ctx context.Context, id string) (*models.CardSet, error)
	ListCardsBySet(ctx context.Context, setID string) ([]models.Card, error)
	GetCard(ctx context.Context, id string) (*models.Card, error)
	ListCards(ctx context.Context, q database.CardQuery) ([]models.Card, error)
}

// SetDetail 卡组及其全部卡牌
type SetDetail struct {
	Set   models.CardSet `json:"set"`
	Cards []models.Card  `json:"cards"`
}

// Options 缓存参数
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Logger    *zap.Logger
}

type cachedEntry struct {
	value     interface{}
	timestamp time.Time
}

// Reader 目录读取器（带 LRU + TTL 缓存）
type Reader struct {
	store Store
	cache *lru.Cache
	ttl   time.Duration
	log   *zap.Logger
	now   func() time.Time
}

// NewReader 创建目录读取器；CacheSize <= 0 时关闭缓存
func NewReader(store Store, opts Options) (*Reader, error) {
	r := &Reader{
		store: store,
		ttl:   opts.CacheTTL,
		log:   logger.OrNop(opts.Logger),
		now:   time.Now,
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New(opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create catalog cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

func (r *Reader) cached(key string) (interface{}, bool) {
	if r.cache == nil {
		return nil, false
	}
	v, ok := r.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(cachedEntry)
	if r.ttl > 0 && r.now().Sub(entry.timestamp) > r.ttl {
		r.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (r *Reader) remember(key string, value interface{}) {
	if r.cache != nil {
		r.cache.Add(key, cachedEntry{value: value, timestamp: r.now()})
	}
}

// Purge 清空缓存
func (r *Reader) Purge() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

// ListSets 返回全部卡组（按发行日期）
func (r *Reader) ListSets(ctx context.Context) ([]models.CardSet, error) {
	if v, ok := r.cached("sets"); ok {
		return append([]models.CardSet(nil), v.([]models.CardSet)...), nil
	}
	sets, err := r.store.ListCardSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}
	r.remember("sets", append([]models.CardSet(nil), sets...))
	return sets, nil
}

// GetSet 按 id 获取卡组
func (r *Reader) GetSet(ctx context.Context, id string) (*models.CardSet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("empty set id: %w", ErrNotFound)
	}
	key := "set:" + id
	if v, ok := r.cached(key); ok {
		set := v.(models.CardSet)
		return &set, nil
	}
	set, err := r.store.GetCardSet(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			r.log.Debug("card set not found", zap.String("set_id", id))
		}
		return nil, err
	}
	r.remember(key, *set)
	return set, nil
}

// GetCard 按 id 获取卡牌
func (r *Reader) GetCard(ctx context.Context, id string) (*models.Card, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("empty card id: %w", ErrNotFound)
	}
	key := "card:" + id
	if v, ok := r.cached(key); ok {
		card := v.(models.Card)
		return &card, nil
	}
	card, err := r.store.GetCard(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			r.log.Debug("card not found", zap.String("card_id", id))
		}
		return nil, err
	}
	r.remember(key, *card)
	return card, nil
}

// ListCardsBySet 返回卡组内的卡牌，按卡号自然顺序排列（2 在 10 之前）
func (r *Reader) ListCardsBySet(ctx context.Context, setID string) ([]models.Card, error) {
	key := "cards:" + setID
	if v, ok := r.cached(key); ok {
		return append([]models.Card(nil), v.([]models.Card)...), nil
	}
	cards, err := r.store.ListCardsBySet(ctx, setID)
	if err != nil {
		return nil, fmt.Errorf("list cards of set %s: %w", setID, err)
	}
	sort.SliceStable(cards, func(i, j int) bool {
		return NaturalLess(cards[i].Number, cards[j].Number)
	})
	r.remember(key, append([]models.Card(nil), cards...))
	return cards, nil
}

// SetDetail 并发获取卡组与其卡牌；卡组不存在时返回 ErrNotFound
func (r *Reader) SetDetail(ctx context.Context, setID string) (*SetDetail, error) {
	var (
		set   *models.CardSet
		cards []models.Card
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		set, err = r.GetSet(gctx, setID)
		return err
	})
	g.Go(func() error {
		var err error
		cards, err = r.ListCardsBySet(gctx, setID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &SetDetail{Set: *set, Cards: cards}, nil
}

// cardNames implements fuzzy.Source over card names
type cardNames []models.Card

func (c cardNames) String(i int) string { return strings.ToLower(c[i].Name) }
func (c cardNames) Len() int            { return len(c) }

// Search 按名称模糊搜索卡牌，结果按相关度排序
func (r *Reader) Search(ctx context.Context, query string, limit int) ([]models.Card, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []models.Card{}, nil
	}

	var all []models.Card
	if v, ok := r.cached("cards:*"); ok {
		all = v.([]models.Card)
	} else {
		var err error
		all, err = r.allCards(ctx)
		if err != nil {
			return nil, fmt.Errorf("search cards: %w", err)
		}
		r.remember("cards:*", all)
	}

	matches := fuzzy.FindFrom(query, cardNames(all))
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	results := make([]models.Card, len(matches))
	for i, m := range matches {
		results[i] = all[m.Index]
	}
	r.log.Debug("card search", zap.String("query", query), zap.Int("matches", len(results)))
	return results, nil
}

// allCards 分页读取全部卡牌，直到返回空页；后端可能把单页截断到比请求更小
func (r *Reader) allCards(ctx context.Context) ([]models.Card, error) {
	var all []models.Card
	for offset := 0; ; {
		page, err := r.store.ListCards(ctx, database.CardQuery{Limit: searchPageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
		offset += len(page)
	}
}

// NaturalLess 比较卡号：数字部分按数值，其余按字典序（"2" < "10" < "TG01"）
func NaturalLess(a, b string) bool {
	an, arest := leadingNumber(a)
	bn, brest := leadingNumber(b)
	switch {
	case an >= 0 && bn >= 0:
		if an != bn {
			return an < bn
		}
		return arest < brest
	case an >= 0:
		return true
	case bn >= 0:
		return false
	}
	return a < b
}

// leadingNumber 返回开头的数字（无数字时为 -1）与剩余部分
func leadingNumber(s string) (int, string) {
	i := 0
	n := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		i++
	}
	if i == 0 {
		return -1, s
	}
	return n, s[i:]
}

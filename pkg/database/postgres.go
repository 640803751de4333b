package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"card-tracker-backend/pkg/models"
)

// PostgreSQL 错误码
const (
	pqUndefinedFunction   = "42883"
	pqUndefinedTable      = "42P01"
	pqForeignKeyViolation = "23503"
)

// PostgresDatabase PostgreSQL数据库实现
type PostgresDatabase struct {
	db  *sql.DB
	log *zap.Logger
}

// NewPostgresDatabase 创建PostgreSQL数据库实例，依次尝试多种连接参数
func NewPostgresDatabase(dsn string, log *zap.Logger) (*PostgresDatabase, error) {
	if log == nil {
		log = zap.NewNop()
	}
	// Sanitize DSN to avoid stray CR/LF from env values
	dsn = strings.TrimSpace(dsn)
	strategies := []string{
		addConnectionParams(dsn, "connect_timeout=10"),
		addConnectionParams(dsn, "sslmode=require&connect_timeout=10"),
		dsn, // 最后尝试原始DSN
	}

	var lastErr error
	for i, strategy := range strategies {
		db, err := sql.Open("postgres", strategy)
		if err != nil {
			log.Warn("❌ postgres strategy failed to open", zap.Int("strategy", i+1), zap.Error(err))
			lastErr = err
			continue
		}

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err != nil {
			log.Warn("❌ postgres strategy failed to ping", zap.Int("strategy", i+1), zap.Error(err))
			db.Close()
			lastErr = err
			continue
		}

		log.Info("✅ PostgreSQL connection established", zap.Int("strategy", i+1))
		return &PostgresDatabase{db: db, log: log}, nil
	}

	return nil, fmt.Errorf("failed to connect to PostgreSQL with all strategies: %w", lastErr)
}

// NewPostgresDatabaseFromDB 包装已有连接（测试或外部连接池使用）
func NewPostgresDatabaseFromDB(db *sql.DB, log *zap.Logger) *PostgresDatabase {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostgresDatabase{db: db, log: log}
}

// addConnectionParams 添加连接参数到DSN（仅 URL 形式的 DSN）
func addConnectionParams(dsn, params string) string {
	if params == "" || !strings.Contains(dsn, "://") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + params
}

// classifyError 给常见的 PostgreSQL 错误补充上下文
func classifyError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUndefinedFunction:
			return fmt.Errorf("%s: procedure missing (run scripts/setup_db.go): %w", op, err)
		case pqUndefinedTable:
			return fmt.Errorf("%s: table missing (run scripts/setup_db.go): %w", op, err)
		case pqForeignKeyViolation:
			// 引用的卡牌不存在
			return fmt.Errorf("%s: %w", op, errors.Join(ErrNotFound, err))
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

const cardSetColumns = `id, name, COALESCE(to_char(release_date, 'YYYY-MM-DD'), ''), COALESCE(total_cards, 0),
	COALESCE(image_url, ''), COALESCE(description, ''), COALESCE(series, '')`

const cardColumns = `id, set_id, name, COALESCE(number, ''), COALESCE(rarity, ''), COALESCE(type, ''),
	COALESCE(hp, 0), COALESCE(artist, ''), COALESCE(image_url, ''), COALESCE(supertype, '')`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCardSet(s rowScanner) (models.CardSet, error) {
	var cs models.CardSet
	err := s.Scan(&cs.ID, &cs.Name, &cs.ReleaseDate, &cs.TotalCards, &cs.ImageURL, &cs.Description, &cs.Series)
	return cs, err
}

func scanCard(s rowScanner) (models.Card, error) {
	var c models.Card
	err := s.Scan(&c.ID, &c.SetID, &c.Name, &c.Number, &c.Rarity, &c.Type, &c.HP, &c.Artist, &c.ImageURL, &c.Supertype)
	return c, err
}

func (db *PostgresDatabase) queryCards(ctx context.Context, op, query string, args ...interface{}) ([]models.Card, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(op, err)
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, classifyError(op, err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(op, err)
	}
	return cards, nil
}

// ================= Catalog =================

func (db *PostgresDatabase) ListCardSets(ctx context.Context) ([]models.CardSet, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT `+cardSetColumns+` FROM public.card_sets ORDER BY release_date ASC NULLS LAST, id`)
	if err != nil {
		return nil, classifyError("failed to list card sets", err)
	}
	defer rows.Close()

	sets := []models.CardSet{}
	for rows.Next() {
		cs, err := scanCardSet(rows)
		if err != nil {
			return nil, classifyError("failed to scan card set", err)
		}
		sets = append(sets, cs)
	}
	return sets, rows.Err()
}

func (db *PostgresDatabase) GetCardSet(ctx context.Context, id string) (*models.CardSet, error) {
	cs, err := scanCardSet(db.db.QueryRowContext(ctx, `SELECT `+cardSetColumns+` FROM public.card_sets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card set %s: %w", id, ErrNotFound)
		}
		return nil, classifyError("failed to get card set", err)
	}
	return &cs, nil
}

func (db *PostgresDatabase) ListCardsBySet(ctx context.Context, setID string) ([]models.Card, error) {
	return db.queryCards(ctx, "failed to list cards of set",
		`SELECT `+cardColumns+` FROM public.cards WHERE set_id = $1 ORDER BY number`, setID)
}

func (db *PostgresDatabase) GetCard(ctx context.Context, id string) (*models.Card, error) {
	c, err := scanCard(db.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM public.cards WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card %s: %w", id, ErrNotFound)
		}
		return nil, classifyError("failed to get card", err)
	}
	return &c, nil
}

func (db *PostgresDatabase) ListCards(ctx context.Context, q CardQuery) ([]models.Card, error) {
	limit := sql.NullInt64{Int64: int64(q.Limit), Valid: q.Limit > 0}
	return db.queryCards(ctx, "failed to list cards",
		`SELECT `+cardColumns+` FROM public.cards
		 WHERE ($1 = '' OR set_id = $1)
		 ORDER BY id
		 LIMIT $2 OFFSET $3`, q.SetID, limit, q.Offset)
}

// ================= Collections (primary path) =================

func (db *PostgresDatabase) ListCollectedCardIDs(ctx context.Context, kind CollectionKind, userID string) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown collection %q", kind)
	}
	// kind 已校验为固定表名，可安全拼接
	rows, err := db.db.QueryContext(ctx, `SELECT card_id FROM public.`+string(kind)+` WHERE user_id = $1`, userID)
	if err != nil {
		return nil, classifyError("failed to query "+string(kind), err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classifyError("failed to scan "+string(kind), err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *PostgresDatabase) AddCollectionEntry(ctx context.Context, kind CollectionKind, userID, cardID string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown collection %q", kind)
	}
	_, err := db.db.ExecContext(ctx,
		`INSERT INTO public.`+string(kind)+` (user_id, card_id, collected_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id, card_id) DO NOTHING`, userID, cardID)
	if err != nil {
		return classifyError("failed to insert into "+string(kind), err)
	}
	return nil
}

func (db *PostgresDatabase) CountCollection(ctx context.Context, kind CollectionKind, userID string) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("unknown collection %q", kind)
	}
	var n int
	err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM public.`+string(kind)+` WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, classifyError("failed to count "+string(kind), err)
	}
	return n, nil
}

// ================= Remote procedures (fallback path) =================

func (db *PostgresDatabase) GetGameCollectionCountSafe(ctx context.Context, userID string) (int, error) {
	var n sql.NullInt64
	if err := db.db.QueryRowContext(ctx, `SELECT public.get_game_collection_count_safe($1)`, userID).Scan(&n); err != nil {
		return 0, classifyError("rpc "+ProcGameCollectionCount, err)
	}
	return int(n.Int64), nil
}

func (db *PostgresDatabase) GetUserGameCollectionSafe(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT card_id FROM public.get_user_game_collection_safe($1)`, userID)
	if err != nil {
		return nil, classifyError("rpc "+ProcUserGameCollection, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classifyError("rpc "+ProcUserGameCollection, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (db *PostgresDatabase) AddCardToGameCollectionSafe(ctx context.Context, userID, cardID string) error {
	if _, err := db.db.ExecContext(ctx, `SELECT public.add_card_to_game_collection_safe($1, $2)`, userID, cardID); err != nil {
		return classifyError("rpc "+ProcAddCardToGame, err)
	}
	return nil
}

// HealthCheck 健康检查
func (db *PostgresDatabase) HealthCheck(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Close 关闭连接
func (db *PostgresDatabase) Close() error {
	return db.db.Close()
}

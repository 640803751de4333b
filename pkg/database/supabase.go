package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"card-tracker-backend/pkg/models"
)

// HTTPError 表示 Supabase REST 返回的错误状态
type HTTPError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API request %s %s failed with status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// Is 把外键冲突（PostgREST 409 + SQLSTATE 23503）视为 ErrNotFound
func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound &&
		e.StatusCode == http.StatusConflict &&
		strings.Contains(e.Body, `"`+pqForeignKeyViolation+`"`)
}

// SupabaseDatabase Supabase数据库实现（PostgREST）
type SupabaseDatabase struct {
	baseURL     string
	apiKey      string
	accessToken string
	httpClient  *http.Client
	log         *zap.Logger
}

// SupabaseOption 配置 SupabaseDatabase
type SupabaseOption func(*SupabaseDatabase)

// WithHTTPClient 替换默认 HTTP 客户端
func WithHTTPClient(c *http.Client) SupabaseOption {
	return func(db *SupabaseDatabase) { db.httpClient = c }
}

// WithSupabaseLogger 设置 logger
func WithSupabaseLogger(l *zap.Logger) SupabaseOption {
	return func(db *SupabaseDatabase) {
		if l != nil {
			db.log = l
		}
	}
}

// NewSupabaseDatabase 创建Supabase数据库实例
func NewSupabaseDatabase(baseURL, key string, opts ...SupabaseOption) *SupabaseDatabase {
	// 确保URL格式正确
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}

	db := &SupabaseDatabase{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  key,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db
}

// WithAccessToken 返回以用户身份（而非 API key）访问的副本，使行级安全策略生效
func (db *SupabaseDatabase) WithAccessToken(token string) *SupabaseDatabase {
	cp := *db
	cp.accessToken = token
	return &cp
}

// WithUser 实现 UserScoper
func (db *SupabaseDatabase) WithUser(accessToken string) DatabaseInterface {
	return db.WithAccessToken(accessToken)
}

// makeRequest 发送HTTP请求到Supabase，返回响应体与响应头
func (db *SupabaseDatabase) makeRequest(ctx context.Context, method, endpoint string, body interface{}, customHeaders map[string]string) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, db.baseURL+"/rest/v1"+endpoint, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	bearer := db.apiKey
	if db.accessToken != "" {
		bearer = db.accessToken
	}
	req.Header.Set("apikey", db.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range customHeaders {
		req.Header.Set(key, value)
	}

	resp, err := db.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		db.log.Debug("supabase request failed",
			zap.String("method", method), zap.String("endpoint", endpoint), zap.Int("status", resp.StatusCode))
		return nil, nil, &HTTPError{Method: method, Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, resp.Header, nil
}

// getRows 查询表并解码为切片
func (db *SupabaseDatabase) getRows(ctx context.Context, table string, query url.Values, out interface{}) error {
	data, _, err := db.makeRequest(ctx, http.MethodGet, "/"+table+"?"+query.Encode(), nil, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", table, err)
	}
	return nil
}

// rpc 调用远程过程
func (db *SupabaseDatabase) rpc(ctx context.Context, name string, params map[string]interface{}, out interface{}) error {
	data, _, err := db.makeRequest(ctx, http.MethodPost, "/rpc/"+name, params, nil)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", name, err)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("rpc %s: failed to parse response: %w", name, err)
	}
	return nil
}

// ================= Catalog =================

func (db *SupabaseDatabase) ListCardSets(ctx context.Context) ([]models.CardSet, error) {
	var sets []models.CardSet
	q := url.Values{"select": {"*"}, "order": {"release_date.asc"}}
	if err := db.getRows(ctx, "card_sets", q, &sets); err != nil {
		return nil, fmt.Errorf("failed to list card sets: %w", err)
	}
	return sets, nil
}

func (db *SupabaseDatabase) GetCardSet(ctx context.Context, id string) (*models.CardSet, error) {
	var sets []models.CardSet
	q := url.Values{"id": {"eq." + id}, "select": {"*"}, "limit": {"1"}}
	if err := db.getRows(ctx, "card_sets", q, &sets); err != nil {
		return nil, fmt.Errorf("failed to get card set %s: %w", id, err)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("card set %s: %w", id, ErrNotFound)
	}
	return &sets[0], nil
}

func (db *SupabaseDatabase) ListCardsBySet(ctx context.Context, setID string) ([]models.Card, error) {
	var cards []models.Card
	q := url.Values{"set_id": {"eq." + setID}, "select": {"*"}, "order": {"number.asc"}}
	if err := db.getRows(ctx, "cards", q, &cards); err != nil {
		return nil, fmt.Errorf("failed to list cards of set %s: %w", setID, err)
	}
	return cards, nil
}

func (db *SupabaseDatabase) GetCard(ctx context.Context, id string) (*models.Card, error) {
	var cards []models.Card
	q := url.Values{"id": {"eq." + id}, "select": {"*"}, "limit": {"1"}}
	if err := db.getRows(ctx, "cards", q, &cards); err != nil {
		return nil, fmt.Errorf("failed to get card %s: %w", id, err)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("card %s: %w", id, ErrNotFound)
	}
	return &cards[0], nil
}

func (db *SupabaseDatabase) ListCards(ctx context.Context, cq CardQuery) ([]models.Card, error) {
	q := url.Values{"select": {"*"}, "order": {"id.asc"}}
	if cq.SetID != "" {
		q.Set("set_id", "eq."+cq.SetID)
	}
	if cq.Limit > 0 {
		q.Set("limit", strconv.Itoa(cq.Limit))
	}
	if cq.Offset > 0 {
		q.Set("offset", strconv.Itoa(cq.Offset))
	}
	var cards []models.Card
	if err := db.getRows(ctx, "cards", q, &cards); err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	return cards, nil
}

// ================= Collections (primary path) =================

func (db *SupabaseDatabase) ListCollectedCardIDs(ctx context.Context, kind CollectionKind, userID string) ([]string, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown collection %q", kind)
	}
	var rows []struct {
		CardID string `json:"card_id"`
	}
	q := url.Values{"user_id": {"eq." + userID}, "select": {"card_id"}}
	if err := db.getRows(ctx, string(kind), q, &rows); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", kind, err)
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CardID)
	}
	return ids, nil
}

func (db *SupabaseDatabase) AddCollectionEntry(ctx context.Context, kind CollectionKind, userID, cardID string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown collection %q", kind)
	}
	payload := map[string]interface{}{
		"user_id":      userID,
		"card_id":      cardID,
		"collected_at": time.Now().UTC().Format(time.RFC3339),
	}
	// 唯一约束 (user_id, card_id) 上冲突时忽略，保证重复添加幂等
	endpoint := "/" + string(kind) + "?" + url.Values{"on_conflict": {"user_id,card_id"}}.Encode()
	_, _, err := db.makeRequest(ctx, http.MethodPost, endpoint, payload, map[string]string{
		"Prefer": "resolution=ignore-duplicates,return=minimal",
	})
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", kind, err)
	}
	return nil
}

func (db *SupabaseDatabase) CountCollection(ctx context.Context, kind CollectionKind, userID string) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("unknown collection %q", kind)
	}
	q := url.Values{"user_id": {"eq." + userID}, "select": {"card_id"}, "limit": {"1"}}
	_, header, err := db.makeRequest(ctx, http.MethodGet, "/"+string(kind)+"?"+q.Encode(), nil, map[string]string{
		"Prefer": "count=exact",
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", kind, err)
	}
	return parseContentRangeTotal(header.Get("Content-Range"))
}

// parseContentRangeTotal 解析 "0-0/42" 或 "*/0" 中的总数
func parseContentRangeTotal(v string) (int, error) {
	slash := strings.LastIndex(v, "/")
	if slash < 0 || slash == len(v)-1 {
		return 0, fmt.Errorf("missing count in Content-Range %q", v)
	}
	total, err := strconv.Atoi(v[slash+1:])
	if err != nil {
		return 0, fmt.Errorf("invalid count in Content-Range %q: %w", v, err)
	}
	return total, nil
}

// ================= Remote procedures (fallback path) =================

func (db *SupabaseDatabase) GetGameCollectionCountSafe(ctx context.Context, userID string) (int, error) {
	var count int
	if err := db.rpc(ctx, ProcGameCollectionCount, map[string]interface{}{"user_id": userID}, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (db *SupabaseDatabase) GetUserGameCollectionSafe(ctx context.Context, userID string) ([]string, error) {
	var rows []struct {
		CardID string `json:"card_id"`
	}
	if err := db.rpc(ctx, ProcUserGameCollection, map[string]interface{}{"user_id": userID}, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CardID)
	}
	return ids, nil
}

func (db *SupabaseDatabase) AddCardToGameCollectionSafe(ctx context.Context, userID, cardID string) error {
	return db.rpc(ctx, ProcAddCardToGame, map[string]interface{}{"user_id": userID, "card_id": cardID}, nil)
}

// HealthCheck 健康检查
func (db *SupabaseDatabase) HealthCheck(ctx context.Context) error {
	_, _, err := db.makeRequest(ctx, http.MethodGet, "/", nil, nil)
	return err
}

// Close 关闭连接（HTTP客户端无需显式关闭）
func (db *SupabaseDatabase) Close() error {
	db.httpClient.CloseIdleConnections()
	return nil
}

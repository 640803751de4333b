package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"card-tracker-backend/pkg/logger"
	"card-tracker-backend/pkg/models"
)

// RedisOptions Redis 连接配置
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient 创建 Redis 客户端并测试连接
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// RedisRelay 通过 Redis 频道在进程间镜像会话事件。
// 频道中只传递用户身份与过期时间，不传递令牌。
type RedisRelay struct {
	client  *redis.Client
	channel string
	local   Provider
	bus     *Broadcaster
	log     *zap.Logger

	mu     sync.RWMutex
	last   *models.Session
	mirror bool
}

// NewRedisRelay 创建转发器；local 用于尚未收到任何远端事件时回答 Current
func NewRedisRelay(client *redis.Client, channel string, local Provider, log *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
		local:   local,
		bus:     NewBroadcaster(),
		log:     logger.OrNop(log).With(zap.String("channel", channel)),
	}
}

// Publish 发布事件到频道
func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(redact(ev))
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	return nil
}

// Run 订阅频道并把事件分发给本地订阅者，直到 ctx 结束
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// 等待订阅确认，避免丢失紧随其后的事件
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.log.Info("📡 session relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.handle(msg.Payload); err != nil {
				r.log.Warn("⚠️ dropping malformed session event", zap.Error(err))
			}
		}
	}
}

func (r *RedisRelay) handle(payload string) error {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return err
	}
	switch ev.Type {
	case EventSignedIn, EventTokenRefreshed, EventInitialSession:
		if ev.Session == nil || ev.Session.User.ID == "" {
			return errors.New("session event without user")
		}
	case EventSignedOut:
		ev.Session = nil
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	r.mu.Lock()
	r.last = ev.Session
	r.mirror = true
	r.mu.Unlock()

	r.bus.Publish(ev)
	return nil
}

// Current 返回最近一次镜像到的会话；尚无远端事件时询问本地 Provider
func (r *RedisRelay) Current(ctx context.Context) (*models.Session, error) {
	r.mu.RLock()
	last, mirror := r.last, r.mirror
	r.mu.RUnlock()

	if mirror {
		if last == nil {
			return nil, ErrNoSession
		}
		return last, nil
	}
	if r.local != nil {
		return r.local.Current(ctx)
	}
	return nil, ErrNoSession
}

// Subscribe 订阅镜像到的会话事件
func (r *RedisRelay) Subscribe() *Subscription {
	return r.bus.Subscribe()
}

// Close 关闭本地订阅
func (r *RedisRelay) Close() {
	r.bus.Close()
}

func redact(ev Event) Event {
	if ev.Session == nil {
		return ev
	}
	ev.Session = &models.Session{
		ExpiresAt: ev.Session.ExpiresAt,
		User:      ev.Session.User,
	}
	return ev
}

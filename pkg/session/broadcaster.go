package session

import "sync"

const subscriptionBuffer = 8

// Broadcaster 进程内事件分发
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	next   uint64
	closed bool
}

// NewBroadcaster 创建分发器
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uint64]*Subscription)}
}

// Subscription 一个订阅句柄；Close 可重复调用
type Subscription struct {
	C <-chan Event

	ch   chan Event
	id   uint64
	b    *Broadcaster
	once sync.Once
}

// Subscribe 注册订阅；分发器已关闭时返回的通道立即关闭
func (b *Broadcaster) Subscribe() *Subscription {
	ch := make(chan Event, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, b: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}
	sub.id = b.next
	b.next++
	b.subs[sub.id] = sub
	return sub
}

// Close 取消订阅并关闭通道
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		delete(s.b.subs, s.id)
		close(s.ch)
	})
}

// Publish 向所有订阅者发送事件。慢订阅者的缓冲区满时丢弃最旧的事件，
// 发送方永不阻塞。
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Len 返回订阅者数量
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close 关闭全部订阅
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

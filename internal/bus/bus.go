// Package bus 按消息类型分发请求/响应，并向订阅者推送通知
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"openkeytool/internal/logger"
)

// Kind 消息类型
type Kind string

const (
	KindGetCurrentTab           Kind = "get-current-tab"
	KindGetIframeSessionStorage Kind = "get-iframe-session-storage"
	KindRequestSessionStorage   Kind = "REQUEST_SESSION_STORAGE"
	KindSessionStorageResponse  Kind = "SESSION_STORAGE_RESPONSE"
	KindTabPrev                 Kind = "tab-prev"
)

var ErrUnknownKind = errors.New("unknown message kind")

// HandlerFunc 处理一类请求
type HandlerFunc func(ctx context.Context, req any) (any, error)

// Bus 消息总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind]HandlerFunc
	subs     map[Kind][]chan any
	log      logger.Logger
}

func New(l logger.Logger) *Bus {
	if l == nil {
		l = logger.NewNop()
	}
	return &Bus{
		handlers: make(map[Kind]HandlerFunc),
		subs:     make(map[Kind][]chan any),
		log:      l,
	}
}

// Handle 注册处理器，同一类型重复注册时覆盖
func (b *Bus) Handle(kind Kind, h HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = h
}

// Call 分发一次请求
func (b *Bus) Call(ctx context.Context, kind Kind, req any) (any, error) {
	b.mu.RLock()
	h, ok := b.handlers[kind]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return h(ctx, req)
}

// On 注册类型化处理器
func On[Req, Resp any](b *Bus, kind Kind, fn func(ctx context.Context, req Req) (Resp, error)) {
	b.Handle(kind, func(ctx context.Context, req any) (any, error) {
		r, ok := req.(Req)
		if !ok && req != nil {
			return nil, fmt.Errorf("%s: 请求类型 %T 不匹配", kind, req)
		}
		return fn(ctx, r)
	})
}

// Request 发送类型化请求
func Request[Req, Resp any](ctx context.Context, b *Bus, kind Kind, req Req) (Resp, error) {
	var zero Resp
	out, err := b.Call(ctx, kind, req)
	if err != nil {
		return zero, err
	}
	resp, ok := out.(Resp)
	if !ok {
		return zero, fmt.Errorf("%s: 响应类型 %T 不匹配", kind, out)
	}
	return resp, nil
}

// Subscribe 订阅通知，返回的函数用于取消订阅
func (b *Bus) Subscribe(kind Kind, buffer int) (<-chan any, func()) {
	ch := make(chan any, buffer)
	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], ch)
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[kind]
			for i, c := range list {
				if c == ch {
					b.subs[kind] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			close(ch)
		})
	}
}

// Publish 非阻塞推送通知，订阅者通道满时丢弃
func (b *Bus) Publish(kind Kind, msg any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[kind] {
		select {
		case ch <- msg:
		default:
			b.log.Warn("订阅通道已满，丢弃通知", "kind", string(kind))
		}
	}
}

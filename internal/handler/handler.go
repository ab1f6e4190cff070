package handler

import (
	"context"
	"time"

	"openkeytool/internal/logger"
	"openkeytool/internal/rules"
	"openkeytool/internal/storage"
	"openkeytool/pkg/model"
	"openkeytool/pkg/traffic"

	"github.com/google/uuid"
)

// Handler 捕获 openKey 请求并缓存其 URL 与请求头，不修改请求
type Handler struct {
	kv      storage.KV
	matcher rules.Matcher
	events  chan<- model.CaptureEvent
	log     logger.Logger
	now     func() time.Time
}

// Config 配置选项
type Config struct {
	KV      storage.KV
	Matcher rules.Matcher
	Events  chan<- model.CaptureEvent
	Logger  logger.Logger
	Now     func() time.Time
}

// New 创建事件处理器
func New(cfg Config) *Handler {
	h := &Handler{
		kv:      cfg.KV,
		matcher: cfg.Matcher,
		events:  cfg.Events,
		log:     cfg.Logger,
		now:     cfg.Now,
	}
	if h.log == nil {
		h.log = logger.NewNop()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// HandleRequest 处理一次请求拦截，返回是否已缓存
func (h *Handler) HandleRequest(ctx context.Context, targetID model.TargetID, req *traffic.Request) bool {
	if !h.matcher.Match(rules.Ctx{URL: req.URL, Method: req.Method, Headers: req.Headers, Query: req.Query}) {
		return false
	}
	h.log.Debug("捕获openKey请求", "url", req.URL, "method", req.Method, "headers", len(req.HeaderEntries))

	evt := model.CaptureEvent{
		ID:        uuid.NewString(),
		Target:    targetID,
		URL:       req.URL,
		Method:    req.Method,
		Headers:   len(req.HeaderEntries),
		Timestamp: h.now().UnixMilli(),
	}

	cached := model.CachedRequest{URL: req.URL, Headers: req.SerializeHeaders()}
	if err := storage.SetJSON(ctx, h.kv, storage.KeyCachedRequest, cached); err != nil {
		h.log.Err(err, "缓存openKey请求失败", "url", req.URL)
		evt.Error = err.Error()
		h.sendEvent(evt)
		return false
	}

	h.sendEvent(evt)
	return true
}

// sendEvent 非阻塞发送事件，通道满时丢弃
func (h *Handler) sendEvent(evt model.CaptureEvent) {
	if h.events == nil {
		return
	}
	select {
	case h.events <- evt:
	default:
		h.log.Warn("事件通道已满，丢弃捕获事件", "url", evt.URL)
	}
}

package cdp

import (
	"context"
	"fmt"
	"time"

	adapter "openkeytool/internal/adapter/cdp"
	"openkeytool/internal/logger"
	"openkeytool/pkg/model"
	"openkeytool/pkg/traffic"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
)

// RequestHandler 处理一次被拦截的请求
type RequestHandler interface {
	HandleRequest(ctx context.Context, targetID model.TargetID, req *traffic.Request) bool
}

// EnableCapture 以请求阶段拦截匹配 pattern 的请求，交给 h 处理后原样放行。
// 消费协程在 ctx 结束或事件流出错时退出
func (m *Manager) EnableCapture(ctx context.Context, pattern string, h RequestHandler) error {
	client, target, err := m.session()
	if err != nil {
		return err
	}

	paused, err := client.Fetch.RequestPaused(ctx)
	if err != nil {
		return fmt.Errorf("订阅拦截事件失败: %w", err)
	}

	patterns := []fetch.RequestPattern{
		{URLPattern: &pattern, RequestStage: fetch.RequestStageRequest},
	}
	if err := client.Fetch.Enable(ctx, &fetch.EnableArgs{Patterns: patterns}); err != nil {
		_ = paused.Close()
		return fmt.Errorf("启用请求拦截失败: %w", err)
	}
	m.log.Info("已启用请求拦截", "target", target.ID, "pattern", pattern)

	l := m.log.With("target", target.ID)
	go func() {
		<-ctx.Done()
		_ = paused.Close()
	}()
	go m.consume(ctx, client, target.ID, paused, h, l)
	return nil
}

// DisableCapture 关闭请求拦截
func (m *Manager) DisableCapture(ctx context.Context) error {
	client, _, err := m.session()
	if err != nil {
		return err
	}
	return client.Fetch.Disable(ctx)
}

func (m *Manager) consume(ctx context.Context, client *cdp.Client, id model.TargetID, paused fetch.RequestPausedClient, h RequestHandler, l logger.Logger) {
	defer paused.Close()
	for {
		ev, err := paused.Recv()
		if err != nil {
			if ctx.Err() == nil {
				l.Warn("拦截事件流结束", "error", err.Error())
			}
			return
		}
		m.handle(ctx, client, id, ev, h, l)
	}
}

// handle 处理一次拦截事件，无论处理结果如何都放行原请求
func (m *Manager) handle(ctx context.Context, client *cdp.Client, id model.TargetID, ev *fetch.RequestPausedReply, h RequestHandler, l logger.Logger) {
	to := m.processTimeoutMS
	if to <= 0 {
		to = 3000
	}
	cctx, cancel := context.WithTimeout(ctx, time.Duration(to)*time.Millisecond)
	defer cancel()
	start := time.Now()

	req := adapter.ToNeutralRequest(ev)
	captured := h.HandleRequest(cctx, id, req)

	if err := client.Fetch.ContinueRequest(cctx, &fetch.ContinueRequestArgs{RequestID: ev.RequestID}); err != nil {
		l.Warn("放行请求失败", "url", req.URL, "error", err.Error())
		return
	}
	l.Debug("拦截事件处理完成", "url", req.URL, "captured", captured, "duration", time.Since(start))
}

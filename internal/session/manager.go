package session

import (
	"context"
	"sync"
	"time"

	"openkeytool/internal/logger"
	"openkeytool/pkg/model"
)

// Lister 提供浏览器页面目标列表，第一个为当前激活的标签页
type Lister interface {
	ListTargets(ctx context.Context) ([]model.TargetInfo, error)
}

// Manager 跟踪标签页切换，切换时推送上一个标签页的标题
type Manager struct {
	mu       sync.RWMutex
	tabs     []model.TargetInfo
	current  *model.TargetInfo
	previous *model.TargetInfo
	notify   func(model.TabPrev)
	log      logger.Logger
}

// NewManager 创建标签页管理器，notify 可为空
func NewManager(l logger.Logger, notify func(model.TabPrev)) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{notify: notify, log: l}
}

// Observe 用最新的目标列表更新状态。首次观察只记录当前标签页
func (m *Manager) Observe(targets []model.TargetInfo) {
	m.mu.Lock()
	m.tabs = append(m.tabs[:0:0], targets...)

	if len(targets) == 0 {
		m.mu.Unlock()
		return
	}
	next := targets[0]
	next.IsCurrent = true

	if m.current == nil {
		m.current = &next
		m.mu.Unlock()
		m.log.Debug("记录当前标签页", "target", next.ID, "title", next.Title)
		return
	}
	if m.current.ID == next.ID {
		m.current = &next
		m.mu.Unlock()
		return
	}

	prev := *m.current
	prev.IsCurrent = false
	m.previous = &prev
	m.current = &next

	// 上一个标签页已关闭时不推送
	stillOpen := false
	for _, t := range targets {
		if t.ID == prev.ID {
			prev.Title = t.Title
			stillOpen = true
			break
		}
	}
	notify := m.notify
	m.mu.Unlock()

	m.log.Info("标签页切换", "from", prev.ID, "to", next.ID)
	if stillOpen && notify != nil {
		notify(model.TabPrev{Title: prev.Title})
	}
}

// Current 当前激活的标签页
func (m *Manager) Current() (model.TargetInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return model.TargetInfo{}, false
	}
	return *m.current, true
}

// previousTab 上一个激活的标签页
func (m *Manager) previousTab() (model.TargetInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.previous == nil {
		return model.TargetInfo{}, false
	}
	return *m.previous, true
}

// listTabs 返回最近一次观察到的目标列表
func (m *Manager) listTabs() []model.TargetInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.TargetInfo(nil), m.tabs...)
}

// Watch 按 interval 轮询目标列表直到 ctx 结束
func (m *Manager) Watch(ctx context.Context, lister Lister, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	poll := func() {
		targets, err := lister.ListTargets(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.log.Warn("轮询标签页失败", "error", err.Error())
			}
			return
		}
		m.Observe(targets)
	}

	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll()
		}
	}
}

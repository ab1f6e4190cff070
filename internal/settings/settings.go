package settings

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"openkeytool/internal/errs"
	"openkeytool/internal/logger"
	"openkeytool/internal/storage"
	"openkeytool/pkg/model"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultHost 默认 host 前缀
const DefaultHost = "http://localhost:4000"

// Manager 设置上下文，由调用方持有并显式加载/保存
type Manager struct {
	kv  storage.KV
	log logger.Logger

	mu       sync.RWMutex
	settings model.Settings
}

// New 创建设置管理器，加载前使用默认值
func New(kv storage.KV, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		kv:       kv,
		log:      l,
		settings: model.Settings{HostPrefix: DefaultHost},
	}
}

// Load 从存储读取设置；无有效配置时写入默认值，读取失败时回退默认值
func (m *Manager) Load(ctx context.Context) {
	raw, ok, err := m.kv.Get(ctx, storage.KeySettings)
	if err != nil {
		m.log.Err(err, "加载设置失败，使用默认配置")
		m.set(DefaultHost)
		return
	}

	host := gjson.Get(raw, "hostPrefix")
	if ok && gjson.Valid(raw) && host.Type == gjson.String {
		m.set(host.String())
		return
	}

	m.set(DefaultHost)
	if err := m.Save(ctx); err != nil {
		m.log.Err(err, "写入默认设置失败")
	}
}

// Save 持久化当前设置，保留存储中其他未知字段
func (m *Manager) Save(ctx context.Context) error {
	raw, ok, err := m.kv.Get(ctx, storage.KeySettings)
	if err != nil || !ok || !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		raw = "{}"
	}
	out, err := sjson.Set(raw, "hostPrefix", m.HostPrefix())
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSave, err)
	}
	if err := m.kv.Set(ctx, storage.KeySettings, out); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrSave, err)
	}
	return nil
}

// UpdateHostPrefix 校验并保存 host 前缀，缺少协议时自动补 http://
func (m *Manager) UpdateHostPrefix(ctx context.Context, hostPrefix string) error {
	if strings.TrimSpace(hostPrefix) == "" {
		return fmt.Errorf("%w: Host前缀不能为空", errs.ErrValidation)
	}

	if !isAbsoluteURL(hostPrefix) {
		withProtocol := hostPrefix
		if !strings.HasPrefix(hostPrefix, "http") {
			withProtocol = "http://" + hostPrefix
		}
		if !isAbsoluteURL(withProtocol) {
			return fmt.Errorf("%w: 请输入有效的URL格式（如：http://localhost:3000）", errs.ErrValidation)
		}
		hostPrefix = withProtocol
	}

	m.set(hostPrefix)
	m.log.Info("更新host前缀", "hostPrefix", hostPrefix)
	return m.Save(ctx)
}

// Reset 恢复默认设置
func (m *Manager) Reset(ctx context.Context) error {
	m.set(DefaultHost)
	return m.Save(ctx)
}

func (m *Manager) HostPrefix() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.HostPrefix
}

func (m *Manager) Settings() model.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// BuildURL 根据路径构建完整URL；已是完整URL时原样返回
func (m *Manager) BuildURL(path string) string {
	host := m.HostPrefix()
	if path == "" {
		return host
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	host = strings.TrimSuffix(host, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return host + path
}

func (m *Manager) set(host string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings.HostPrefix = host
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

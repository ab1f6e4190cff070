package history

import (
	"context"
	_ "embed"
	"encoding/json"
	"strings"

	"openkeytool/internal/logger"

	"github.com/tidwall/gjson"
)

// BindingName 页面回调 Go 侧的绑定函数名
const BindingName = "__openkeyMenuClick"

//go:embed scripts/menu_click.js
var menuClickScript string

// Binder 在页面中注册绑定并注入脚本，每次绑定被调用时回调 fn
type Binder interface {
	Bind(ctx context.Context, name, script string, fn func(payload string)) error
}

// Tracker 监听目标站点菜单项点击并写入搜索历史
type Tracker struct {
	history    *History
	targetHost string
	homeLabel  string
	log        logger.Logger
}

func NewTracker(h *History, targetHost, homeLabel string, l logger.Logger) *Tracker {
	if l == nil {
		l = logger.NewNop()
	}
	return &Tracker{history: h, targetHost: targetHost, homeLabel: homeLabel, log: l}
}

// Script 返回填入目标域名、首页文案与绑定名后的注入脚本
func (t *Tracker) Script() string {
	return strings.NewReplacer(
		"__TARGET_HOST__", jsString(t.targetHost),
		"__HOME_LABEL__", jsString(t.homeLabel),
		"__BINDING__", jsString(BindingName),
	).Replace(menuClickScript)
}

// Start 注册绑定，之后的点击事件异步写入历史
func (t *Tracker) Start(ctx context.Context, b Binder) error {
	t.log.Info("开始监听菜单点击", "host", t.targetHost)
	return b.Bind(ctx, BindingName, t.Script(), func(payload string) {
		t.HandlePayload(ctx, payload)
	})
}

// HandlePayload 处理一次绑定回调，payload 形如 {"text":"..."}
func (t *Tracker) HandlePayload(ctx context.Context, payload string) {
	if !gjson.Valid(payload) {
		t.log.Warn("忽略无法解析的点击回调", "payload", payload)
		return
	}
	text := gjson.Get(payload, "text").String()
	if err := t.history.Push(ctx, text); err != nil {
		t.log.Err(err, "记录菜单点击失败")
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

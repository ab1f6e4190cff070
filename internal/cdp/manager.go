package cdp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"openkeytool/internal/errs"
	"openkeytool/internal/logger"
	"openkeytool/pkg/model"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
)

//go:embed scripts/list_iframes.js
var listIframesScript string

// Manager 连接浏览器 DevTools 并附加到单个页面目标
type Manager struct {
	devtoolsURL      string
	processTimeoutMS int
	log              logger.Logger

	mu     sync.Mutex
	conn   *rpcc.Conn
	client *cdp.Client
	target model.TargetInfo
}

// New 创建管理器，devtoolsURL 形如 http://127.0.0.1:9222
func New(devtoolsURL string, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{devtoolsURL: devtoolsURL, processTimeoutMS: 3000, log: l}
}

// ListTargets 列出页面目标，第一个为最近激活的标签页
func (m *Manager) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取浏览器目标列表失败: %w", err)
	}
	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		out = append(out, model.TargetInfo{
			ID:        model.TargetID(t.ID),
			Type:      string(t.Type),
			URL:       t.URL,
			Title:     t.Title,
			IsCurrent: len(out) == 0,
		})
	}
	return out, nil
}

// AttachTarget 附加到指定目标；id 为空时附加到当前标签页
func (m *Manager) AttachTarget(ctx context.Context, id model.TargetID) (model.TargetInfo, error) {
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return model.TargetInfo{}, fmt.Errorf("获取浏览器目标列表失败: %w", err)
	}

	var sel *devtool.Target
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		if id == "" || t.ID == string(id) {
			sel = t
			break
		}
	}
	if sel == nil {
		return model.TargetInfo{}, fmt.Errorf("未找到页面目标 %q", id)
	}

	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		return model.TargetInfo{}, fmt.Errorf("连接页面目标失败: %w", err)
	}

	info := model.TargetInfo{
		ID:        model.TargetID(sel.ID),
		Type:      string(sel.Type),
		URL:       sel.URL,
		Title:     sel.Title,
		IsCurrent: true,
	}

	m.mu.Lock()
	old := m.conn
	m.conn = conn
	m.client = cdp.NewClient(conn)
	m.target = info
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	m.log.Info("已附加到页面目标", "target", info.ID, "title", info.Title)
	return info, nil
}

// Detach 断开连接
func (m *Manager) Detach() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.client = nil
	m.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Attached 是否已附加
func (m *Manager) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil
}

func (m *Manager) session() (*cdp.Client, model.TargetInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil, model.TargetInfo{}, errs.ErrNotAttached
	}
	return m.client, m.target, nil
}

// ActiveTab 返回已附加的标签页，标题与 URL 以最新的目标列表为准
func (m *Manager) ActiveTab(ctx context.Context) (model.TargetInfo, error) {
	_, target, err := m.session()
	if err != nil {
		return model.TargetInfo{}, err
	}
	targets, err := m.ListTargets(ctx)
	if err != nil {
		return target, nil
	}
	for _, t := range targets {
		if t.ID == target.ID {
			t.IsCurrent = true
			return t, nil
		}
	}
	return model.TargetInfo{}, fmt.Errorf("标签页 %s 已关闭", target.ID)
}

// ListIframes 在页面中执行枚举脚本，返回所有 iframe 的 src 与 hash
func (m *Manager) ListIframes(ctx context.Context) ([]model.RawIframe, error) {
	var out []model.RawIframe
	if err := m.Evaluate(ctx, listIframesScript, &out); err != nil {
		return nil, fmt.Errorf("枚举iframe失败: %w", err)
	}
	return out, nil
}

// Evaluate 在页面主上下文中执行表达式，结果按值反序列化到 out
func (m *Manager) Evaluate(ctx context.Context, expr string, out any) error {
	client, _, err := m.session()
	if err != nil {
		return err
	}
	return evaluate(ctx, client, runtime.NewEvaluateArgs(expr), out)
}

// SessionStorageItem 依次在各子 frame 与主 frame 中读取 sessionStorage，返回第一个非空值
func (m *Manager) SessionStorageItem(ctx context.Context, key string) (string, bool, error) {
	client, _, err := m.session()
	if err != nil {
		return "", false, err
	}

	tree, err := client.Page.GetFrameTree(ctx)
	if err != nil {
		return "", false, fmt.Errorf("获取frame树失败: %w", err)
	}
	frames := flattenFrames(tree.FrameTree)

	quoted, _ := json.Marshal(key)
	expr := fmt.Sprintf("sessionStorage.getItem(%s)", quoted)

	return firstStorageValue(frames, func(f page.Frame) (*string, error) {
		world, err := client.Page.CreateIsolatedWorld(ctx,
			page.NewCreateIsolatedWorldArgs(f.ID).SetWorldName("openkeytool"))
		if err != nil {
			m.log.Debug("创建隔离环境失败", "frame", f.ID, "error", err.Error())
			return nil, err
		}
		var value *string
		args := runtime.NewEvaluateArgs(expr).SetContextID(world.ExecutionContextID)
		if err := evaluate(ctx, client, args, &value); err != nil {
			m.log.Debug("读取frame sessionStorage失败", "frame", f.ID, "error", err.Error())
			return nil, err
		}
		if value != nil {
			m.log.Debug("读取到sessionStorage", "frame", f.ID, "url", f.URL, "key", key)
		}
		return value, nil
	})
}

// firstStorageValue 按顺序读取各 frame，返回第一个非空值。
// 只要有一个 frame 读取成功就不报错，全部失败时返回最后一个错误
func firstStorageValue(frames []page.Frame, read func(page.Frame) (*string, error)) (string, bool, error) {
	var lastErr error
	evaluated := false
	for _, f := range frames {
		value, err := read(f)
		if err != nil {
			lastErr = err
			continue
		}
		evaluated = true
		if value != nil {
			return *value, true, nil
		}
	}
	if !evaluated && lastErr != nil {
		return "", false, fmt.Errorf("读取sessionStorage失败: %w", lastErr)
	}
	return "", false, nil
}

// Bind 注册页面到进程的回调：页面调用 window[name](payload) 时触发 fn。
// script 在当前文档及之后每次导航的新文档中执行
func (m *Manager) Bind(ctx context.Context, name, script string, fn func(payload string)) error {
	client, target, err := m.session()
	if err != nil {
		return err
	}

	if err := client.Runtime.Enable(ctx); err != nil {
		return fmt.Errorf("启用Runtime失败: %w", err)
	}
	if err := client.Page.Enable(ctx); err != nil {
		return fmt.Errorf("启用Page失败: %w", err)
	}

	calls, err := client.Runtime.BindingCalled(ctx)
	if err != nil {
		return fmt.Errorf("订阅绑定事件失败: %w", err)
	}
	if err := client.Runtime.AddBinding(ctx, runtime.NewAddBindingArgs(name)); err != nil {
		_ = calls.Close()
		return fmt.Errorf("添加绑定失败: %w", err)
	}
	if _, err := client.Page.AddScriptToEvaluateOnNewDocument(ctx,
		page.NewAddScriptToEvaluateOnNewDocumentArgs(script)); err != nil {
		_ = calls.Close()
		return fmt.Errorf("注入脚本失败: %w", err)
	}
	if err := evaluate(ctx, client, runtime.NewEvaluateArgs(script), nil); err != nil {
		m.log.Warn("当前文档执行注入脚本失败", "error", err.Error())
	}

	l := m.log.With("target", target.ID, "binding", name)
	go func() {
		<-ctx.Done()
		_ = calls.Close()
	}()
	go func() {
		defer calls.Close()
		for {
			ev, err := calls.Recv()
			if err != nil {
				if ctx.Err() == nil {
					l.Warn("绑定事件流结束", "error", err.Error())
				}
				return
			}
			if ev.Name != name {
				continue
			}
			fn(ev.Payload)
		}
	}()
	return nil
}

func evaluate(ctx context.Context, client *cdp.Client, args *runtime.EvaluateArgs, out any) error {
	reply, err := client.Runtime.Evaluate(ctx, args.SetReturnByValue(true).SetAwaitPromise(true))
	if err != nil {
		return err
	}
	if ex := reply.ExceptionDetails; ex != nil {
		msg := ex.Text
		if ex.Exception != nil && ex.Exception.Description != nil {
			msg += ": " + *ex.Exception.Description
		}
		return fmt.Errorf("脚本执行异常: %s", msg)
	}
	if out == nil || len(reply.Result.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Result.Value, out); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrParse, err)
	}
	return nil
}

// flattenFrames 子 frame 在前，主 frame 最后
func flattenFrames(tree page.FrameTree) []page.Frame {
	var out []page.Frame
	for _, child := range tree.ChildFrames {
		out = append(out, flattenFrames(child)...)
	}
	return append(out, tree.Frame)
}

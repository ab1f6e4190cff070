package bus

import (
	"context"

	"openkeytool/pkg/model"

	"github.com/tidwall/gjson"
)

// LoginDataKey 唯一会实际读取的 sessionStorage 键
const LoginDataKey = "SET_LOGIN_DATA"

const movedToContentScript = "此功能已移至content script处理"

// CurrentTabber 提供当前标签页
type CurrentTabber interface {
	Current() (model.TargetInfo, bool)
}

// SessionStorageReader 从页面 frame 中读取 sessionStorage
type SessionStorageReader interface {
	SessionStorageItem(ctx context.Context, key string) (string, bool, error)
}

// RegisterDefaults 注册内置的消息处理器
func RegisterDefaults(b *Bus, tabs CurrentTabber, storage SessionStorageReader) {
	On(b, KindGetCurrentTab, func(context.Context, any) (model.CurrentTabResponse, error) {
		tab, ok := tabs.Current()
		if !ok {
			return model.CurrentTabResponse{}, nil
		}
		return model.CurrentTabResponse{Title: tab.Title}, nil
	})

	On(b, KindGetIframeSessionStorage, func(context.Context, any) (model.IframeSessionStorageResult, error) {
		return model.IframeSessionStorageResult{Success: false, Error: movedToContentScript}, nil
	})

	On(b, KindRequestSessionStorage, func(ctx context.Context, req model.SessionStorageRequest) (model.SessionStorageResponse, error) {
		return SessionStorage(ctx, storage, req.Key), nil
	})
}

// SessionStorage 读取指定键并构造响应，值为 JSON 时解码
func SessionStorage(ctx context.Context, r SessionStorageReader, key string) model.SessionStorageResponse {
	resp := model.SessionStorageResponse{Type: string(KindSessionStorageResponse), Key: key}
	if key != LoginDataKey {
		resp.Success = true
		return resp
	}

	raw, ok, err := r.SessionStorageItem(ctx, key)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Success = true
	if !ok || raw == "" {
		return resp
	}
	if gjson.Valid(raw) {
		resp.Data = gjson.Parse(raw).Value()
	} else {
		resp.Data = raw
	}
	return resp
}

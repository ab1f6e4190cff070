package history

import (
	"context"
	"strings"

	"openkeytool/internal/logger"
	"openkeytool/internal/storage"

	"github.com/samber/lo"
)

// MaxEntries 搜索历史保留条数
const MaxEntries = 30

// History 菜单点击搜索历史，最新的在前且不重复
type History struct {
	kv  storage.KV
	log logger.Logger
}

func New(kv storage.KV, l logger.Logger) *History {
	if l == nil {
		l = logger.NewNop()
	}
	return &History{kv: kv, log: l}
}

// Push 将文本移到最前（已存在）或插入最前，并截断到 MaxEntries
func (h *History) Push(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	list := storage.GetArray[string](ctx, h.kv, storage.KeySearchHistory)
	list = append([]string{text}, lo.Without(list, text)...)
	if len(list) > MaxEntries {
		list = list[:MaxEntries]
	}
	if err := storage.SaveArray(ctx, h.kv, storage.KeySearchHistory, list); err != nil {
		h.log.Err(err, "保存搜索历史失败", "text", text)
		return err
	}
	h.log.Debug("记录搜索历史", "text", text, "size", len(list))
	return nil
}

func (h *History) List(ctx context.Context) []string {
	return storage.GetArray[string](ctx, h.kv, storage.KeySearchHistory)
}

func (h *History) Clear(ctx context.Context) error {
	return storage.SaveArray(ctx, h.kv, storage.KeySearchHistory, []string{})
}

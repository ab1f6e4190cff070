// Package clipboard 封装系统剪切板写入
package clipboard

import (
	"fmt"

	"openkeytool/internal/errs"

	sysclip "github.com/atotto/clipboard"
)

// Writer 剪切板写入接口
type Writer interface {
	WriteText(text string) error
}

// System 系统剪切板
type System struct{}

func (System) WriteText(text string) error {
	if sysclip.Unsupported {
		return fmt.Errorf("%w: 当前系统不支持剪切板", errs.ErrClipboard)
	}
	if err := sysclip.WriteAll(text); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrClipboard, err)
	}
	return nil
}

// Memory 内存剪切板，用于无桌面环境和测试
type Memory struct {
	Text string
	Err  error
}

func (m *Memory) WriteText(text string) error {
	if m.Err != nil {
		return fmt.Errorf("%w: %v", errs.ErrClipboard, m.Err)
	}
	m.Text = text
	return nil
}

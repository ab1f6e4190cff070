// Package errs 定义各模块共用的错误类别，调用方通过 errors.Is 判断
package errs

import "errors"

var (
	// ErrConfig 未捕获到请求模板
	ErrConfig = errors.New("未找到有效的请求配置，请先访问目标页面")
	// ErrNetwork 重放请求失败
	ErrNetwork = errors.New("网络请求失败")
	// ErrAbort 重放请求超时被中止
	ErrAbort = errors.New("请求超时已中止")
	// ErrParse JSON 响应或请求头解析失败
	ErrParse = errors.New("响应解析失败")
	// ErrValidation 输入校验失败
	ErrValidation = errors.New("参数校验失败")
	// ErrClipboard 写入剪切板失败
	ErrClipboard = errors.New("复制到剪切板失败")
	// ErrSave 持久化设置失败
	ErrSave = errors.New("保存设置失败")
	// ErrNotAttached 尚未连接到浏览器目标
	ErrNotAttached = errors.New("not attached")
)

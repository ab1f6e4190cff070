// Package retry 提供带线性退避的有界重试
package retry

import (
	"context"
	"errors"
	"time"
)

// Sleeper 等待指定时长，ctx 取消时提前返回错误
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy 重试策略
type Policy struct {
	MaxAttempts int
	// Backoff 返回第 attempt 次失败后的等待时间，attempt 从 1 开始
	Backoff func(attempt int) time.Duration
}

// Linear 第 n 次失败后等待 n*unit
func Linear(maxAttempts int, unit time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff: func(attempt int) time.Duration {
			return time.Duration(attempt) * unit
		},
	}
}

// Outcome 重试结果
type Outcome[T any] struct {
	Value    T
	OK       bool
	Attempts int
	Errors   []error
}

// Last 最后一次失败的错误
func (o Outcome[T]) Last() error {
	if len(o.Errors) == 0 {
		return nil
	}
	return o.Errors[len(o.Errors)-1]
}

type stopError struct{ err error }

func (s *stopError) Error() string { return s.err.Error() }
func (s *stopError) Unwrap() error { return s.err }

// Stop 标记不可重试的错误，Do 遇到后立即结束
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// IsStop 是否为 Stop 标记的错误
func IsStop(err error) bool {
	var s *stopError
	return errors.As(err, &s)
}

// SleepContext 默认的 Sleeper
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do 使用默认 Sleeper 执行
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) Outcome[T] {
	return DoWith(ctx, p, SleepContext, fn)
}

// DoWith 执行 fn 直到成功、遇到 Stop 错误、次数耗尽或 ctx 取消。最后一次失败后不再等待
func DoWith[T any](ctx context.Context, p Policy, sleep Sleeper, fn func(ctx context.Context, attempt int) (T, error)) Outcome[T] {
	var out Outcome[T]
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out.Attempts = attempt
		v, err := fn(ctx, attempt)
		if err == nil {
			out.Value = v
			out.OK = true
			return out
		}
		out.Value = v
		out.Errors = append(out.Errors, err)
		if IsStop(err) || attempt == maxAttempts {
			return out
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if err := sleep(ctx, wait); err != nil {
			out.Errors = append(out.Errors, err)
			return out
		}
	}
	return out
}

package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Policy 固定间隔重试策略
//
// Attempts <= 0 表示无限重试（只会因 ctx 取消而停止）。
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Forever 无限重试，每次失败后等待 delay
func Forever(delay time.Duration) Policy {
	return Policy{Attempts: 0, Delay: delay}
}

// Times 最多执行 n 次
func Times(n int, delay time.Duration) Policy {
	if n < 1 {
		n = 1
	}
	return Policy{Attempts: n, Delay: delay}
}

// Unbounded 是否无限重试
func (p Policy) Unbounded() bool {
	return p.Attempts <= 0
}

// Do 按策略执行 fn，直到成功、次数耗尽或 ctx 取消。
// 每次失败都会记录日志；次数耗尽时返回最后一次错误。
func Do(ctx context.Context, p Policy, log *logrus.Entry, name string, fn func(ctx context.Context) error) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Infof("✅ %s 在第 %d 次尝试后成功", name, attempt)
			}
			return nil
		}

		if !p.Unbounded() && attempt >= p.Attempts {
			log.Errorf("❌ %s 失败（已尝试 %d 次）: %v", name, attempt, err)
			return fmt.Errorf("%s: %d 次尝试后仍失败: %w", name, attempt, err)
		}

		log.Warnf("⚠️ %s 第 %d 次尝试失败，%v 后重试: %v", name, attempt, p.Delay, err)

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: 重试被取消: %w (last error: %v)", name, ctx.Err(), err)
		case <-timer.C:
		}
	}
}

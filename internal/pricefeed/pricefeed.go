// Package pricefeed 参考价格来源：固定价格、HTTP 轮询、WebSocket 推送。
//
// 所有实现都遵守同一个约定：没有可用价格时返回 ok=false，而不是 0 或错误；
// 超过 expiry 未更新的价格视为不可用。
package pricefeed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/keeper/internal/ports"
)

// Update 价格消息，HTTP 响应与 WebSocket 推送共用
type Update struct {
	Price decimal.Decimal `json:"price"`
}

// Open 按 source 前缀创建价格源：
//
//	fixed:<price>     固定价格
//	http(s)://...     每次调用时请求，失败时沿用 expiry 内的上一次价格
//	ws(s)://...       后台订阅推送，断线自动重连
//
// WebSocket 源的后台 goroutine 随 ctx 结束。
func Open(ctx context.Context, source string, expiry time.Duration, log *logrus.Entry) (ports.PriceFeed, error) {
	if log == nil {
		log = logrus.WithField("component", "pricefeed")
	}
	source = strings.TrimSpace(source)
	switch {
	case strings.HasPrefix(source, "fixed:"):
		p, err := decimal.NewFromString(strings.TrimPrefix(source, "fixed:"))
		if err != nil {
			return nil, fmt.Errorf("无效的固定价格 %q: %w", source, err)
		}
		return NewFixed(p), nil
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return NewHTTP(source, expiry, log), nil
	case strings.HasPrefix(source, "ws://"), strings.HasPrefix(source, "wss://"):
		f := NewWebSocket(source, expiry, log)
		f.Start(ctx)
		return f, nil
	}
	return nil, fmt.Errorf("不支持的价格源: %q", source)
}

// Fixed 固定价格；非正数价格视为不可用
type Fixed struct {
	price decimal.Decimal
}

// NewFixed 创建固定价格源
func NewFixed(price decimal.Decimal) *Fixed {
	return &Fixed{price: price}
}

func (f *Fixed) Price(context.Context) (decimal.Decimal, bool) {
	if !f.price.IsPositive() {
		return decimal.Zero, false
	}
	return f.price, true
}

// lastPrice 带时间戳的最近价格
type lastPrice struct {
	mu      sync.RWMutex
	price   decimal.Decimal
	at      time.Time
	expiry  time.Duration
	nowFunc func() time.Time
}

func (l *lastPrice) set(p decimal.Decimal) {
	l.mu.Lock()
	l.price = p
	l.at = l.now()
	l.mu.Unlock()
}

func (l *lastPrice) get() (decimal.Decimal, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.at.IsZero() || !l.price.IsPositive() {
		return decimal.Zero, false
	}
	if l.expiry > 0 && l.now().Sub(l.at) > l.expiry {
		return decimal.Zero, false
	}
	return l.price, true
}

func (l *lastPrice) now() time.Time {
	if l.nowFunc != nil {
		return l.nowFunc()
	}
	return time.Now()
}

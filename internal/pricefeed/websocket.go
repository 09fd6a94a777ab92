package pricefeed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	wsHandshakeTimeout  = 10 * time.Second
	wsReconnectDelay    = time.Second
	wsMaxReconnectDelay = 30 * time.Second
)

// WebSocket 订阅推送价格（每条文本消息为 {"price": ...}），读取循环在后台运行，
// 断线后按递增延迟重连；Price() 只读取最近一次收到的价格。
type WebSocket struct {
	url  string
	last lastPrice
	log  *logrus.Entry

	connMu sync.Mutex
	conn   *websocket.Conn

	startOnce sync.Once
	doneCh    chan struct{}
}

// NewWebSocket 创建 WebSocket 价格源（需调用 Start）
func NewWebSocket(url string, expiry time.Duration, log *logrus.Entry) *WebSocket {
	if log == nil {
		log = logrus.WithField("component", "pricefeed")
	}
	return &WebSocket{
		url:    url,
		last:   lastPrice{expiry: expiry},
		log:    log,
		doneCh: make(chan struct{}),
	}
}

// Start 启动后台读取循环，ctx 结束时关闭连接并退出
func (w *WebSocket) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		go w.readLoop(ctx)
		go func() {
			<-ctx.Done()
			w.closeConn()
		}()
	})
}

// Done 读取循环退出后关闭
func (w *WebSocket) Done() <-chan struct{} {
	return w.doneCh
}

func (w *WebSocket) Price(context.Context) (decimal.Decimal, bool) {
	return w.last.get()
}

func (w *WebSocket) readLoop(ctx context.Context) {
	defer close(w.doneCh)

	attempts := 0
	for ctx.Err() == nil {
		conn, err := w.dial(ctx)
		if err != nil {
			attempts++
			delay := wsReconnectDelay * time.Duration(attempts)
			if delay > wsMaxReconnectDelay {
				delay = wsMaxReconnectDelay
			}
			w.log.Warnf("⚠️ [WebSocket] 连接失败（第 %d 次），%v 后重试: %v", attempts, delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		attempts = 0
		w.log.Infof("🔌 [WebSocket] 已连接价格源 %s", w.url)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				w.closeConn()
				if ctx.Err() != nil {
					return
				}
				w.log.Warnf("⚠️ [WebSocket] 读取错误，重连中: %v", err)
				break
			}
			w.handleMessage(msg)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wsReconnectDelay):
		}
	}
}

func (w *WebSocket) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return nil, err
	}
	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
	// ctx 可能在 dial 返回后、登记连接前结束
	if ctx.Err() != nil {
		w.closeConn()
		return nil, ctx.Err()
	}
	return conn, nil
}

func (w *WebSocket) closeConn() {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn != nil {
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = w.conn.Close()
		w.conn = nil
	}
}

func (w *WebSocket) handleMessage(msg []byte) {
	var u Update
	if err := json.Unmarshal(msg, &u); err != nil {
		w.log.Debugf("[WebSocket] 忽略无法解析的消息: %s", string(msg))
		return
	}
	if !u.Price.IsPositive() {
		return
	}
	w.last.set(u.Price)
}

package pricefeed

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	sdkhttp "github.com/betbot/keeper/pkg/sdk/http"
)

// HTTP 每次 Price() 请求一次 JSON 接口（{"price": "..."}）
type HTTP struct {
	client   *sdkhttp.Client
	endpoint string
	last     lastPrice
	log      *logrus.Entry
}

// NewHTTP 创建 HTTP 价格源
func NewHTTP(source string, expiry time.Duration, log *logrus.Entry) *HTTP {
	if log == nil {
		log = logrus.WithField("component", "pricefeed")
	}
	host, endpoint := splitURL(source)
	return &HTTP{
		client:   sdkhttp.NewClient(host, sdkhttp.Options{Timeout: 5 * time.Second, RetryCount: 1}),
		endpoint: endpoint,
		last:     lastPrice{expiry: expiry},
		log:      log,
	}
}

func (h *HTTP) Price(ctx context.Context) (decimal.Decimal, bool) {
	var u Update
	if err := h.client.Get(ctx, h.endpoint, nil, &u); err != nil {
		h.log.Warnf("⚠️ 获取价格失败: %v", err)
		return h.last.get()
	}
	if !u.Price.IsPositive() {
		h.log.Warnf("⚠️ 价格源返回非正数价格: %s", u.Price)
		return h.last.get()
	}
	h.last.set(u.Price)
	return u.Price, true
}

// splitURL 拆成 base URL 与带查询参数的路径
func splitURL(raw string) (host, endpoint string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}
	endpoint = u.EscapedPath()
	if u.RawQuery != "" {
		endpoint += "?" + u.RawQuery
	}
	u.Path, u.RawPath, u.RawQuery, u.Fragment = "", "", "", ""
	return u.String(), endpoint
}

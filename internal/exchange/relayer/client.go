package relayer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/betbot/keeper/internal/domain"
	"github.com/betbot/keeper/pkg/ratelimit"
	sdkhttp "github.com/betbot/keeper/pkg/sdk/http"
)

const (
	pathOrders = "/orders"
	pathOrder  = "/order"
	pathFees   = "/fees"

	perPage  = 100
	maxPages = 50
)

// Options relayer 客户端参数
type Options struct {
	URL      string // 包含版本前缀，例如 https://api.radarrelay.com/0x/v0
	APIKey   string
	Timeout  time.Duration
	Exchange common.Address // 只接受该 Exchange 合约上的订单
}

// Client SRA v0 relayer API 客户端
type Client struct {
	http     *sdkhttp.Client
	limiter  ratelimit.Limiter
	tokens   domain.TokenResolver
	exchange common.Address
	log      *logrus.Entry
}

// NewClient 创建 relayer 客户端；limiter 为 nil 表示不限速
func NewClient(opts Options, limiter ratelimit.Limiter, tokens domain.TokenResolver, log *logrus.Entry) *Client {
	headers := map[string]string{}
	if opts.APIKey != "" {
		headers["API-KEY"] = opts.APIKey
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if log == nil {
		log = logrus.WithField("component", "relayer")
	}
	return &Client{
		http:     sdkhttp.NewClient(opts.URL, sdkhttp.Options{Timeout: opts.Timeout, Headers: headers}),
		limiter:  limiter,
		tokens:   tokens,
		exchange: opts.Exchange,
		log:      log,
	}
}

// OrdersByMaker 分页拉取 maker 在 relayer 上的全部订单（不做存活过滤）
func (c *Client) OrdersByMaker(ctx context.Context, maker common.Address) ([]domain.Order, error) {
	var out []domain.Order
	for page := 1; page <= maxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		var batch []Order
		params := map[string]any{
			"maker":    maker.Hex(),
			"page":     strconv.Itoa(page),
			"per_page": strconv.Itoa(perPage),
		}
		if err := c.http.Get(ctx, pathOrders, params, &batch); err != nil {
			return nil, fmt.Errorf("relayer: 获取订单失败: %w", err)
		}
		for _, w := range batch {
			if c.exchange != (common.Address{}) && w.ExchangeContractAddress != c.exchange {
				continue
			}
			o, err := w.toDomain(c.tokens)
			if err != nil {
				return nil, fmt.Errorf("relayer: 无法解析订单 %s (salt=%s): %w", w.hashLabel(), w.Salt, err)
			}
			out = append(out, o)
		}
		if len(batch) < perPage {
			return out, nil
		}
	}
	c.log.Warnf("⚠️ 订单分页达到上限 %d 页，结果可能不完整", maxPages)
	return out, nil
}

// CalculateFees 请求 relayer 计算手续费，返回带 fee 字段的新订单
func (c *Client) CalculateFees(ctx context.Context, o domain.Order) (domain.Order, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Order{}, err
	}
	w := toWire(o, c.tokens)
	req := FeesRequest{
		ExchangeContractAddress:    w.ExchangeContractAddress,
		Maker:                      w.Maker,
		Taker:                      w.Taker,
		MakerTokenAddress:          w.MakerTokenAddress,
		TakerTokenAddress:          w.TakerTokenAddress,
		MakerTokenAmount:           w.MakerTokenAmount,
		TakerTokenAmount:           w.TakerTokenAmount,
		ExpirationUnixTimestampSec: w.ExpirationUnixTimestampSec,
		Salt:                       w.Salt,
	}
	var resp FeesResponse
	if err := c.http.Post(ctx, pathFees, req, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("relayer: 计算手续费失败: %w", err)
	}
	makerFee, err := parseWei("makerFee", resp.MakerFee)
	if err != nil {
		return domain.Order{}, err
	}
	takerFee, err := parseWei("takerFee", resp.TakerFee)
	if err != nil {
		return domain.Order{}, err
	}

	withFees := o
	withFees.FeeRecipient = resp.FeeRecipient
	withFees.MakerFee = feeToken.FromWei(makerFee)
	withFees.TakerFee = feeToken.FromWei(takerFee)
	return withFees, nil
}

// SubmitOrder 提交已签名订单
func (c *Client) SubmitOrder(ctx context.Context, o domain.Order) error {
	if !o.IsSigned() {
		return fmt.Errorf("relayer: 订单未签名")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	w := toWire(o, c.tokens)
	w.OrderHash = nil
	if err := c.http.Post(ctx, pathOrder, w, nil); err != nil {
		return fmt.Errorf("relayer: 提交订单失败: %w", err)
	}
	c.log.Infof("📝 已提交订单 %s", o)
	return nil
}

package relayer

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/betbot/keeper/internal/domain"
)

// ECSignature SRA v0 签名
type ECSignature struct {
	V uint8       `json:"v"`
	R common.Hash `json:"r"`
	S common.Hash `json:"s"`
}

// Order SRA v0 订单（数量为十进制字符串形式的最小单位）
type Order struct {
	OrderHash                  *common.Hash   `json:"orderHash,omitempty"`
	ExchangeContractAddress    common.Address `json:"exchangeContractAddress"`
	Maker                      common.Address `json:"maker"`
	Taker                      common.Address `json:"taker"`
	MakerTokenAddress          common.Address `json:"makerTokenAddress"`
	TakerTokenAddress          common.Address `json:"takerTokenAddress"`
	FeeRecipient               common.Address `json:"feeRecipient"`
	MakerTokenAmount           string         `json:"makerTokenAmount"`
	TakerTokenAmount           string         `json:"takerTokenAmount"`
	MakerFee                   string         `json:"makerFee"`
	TakerFee                   string         `json:"takerFee"`
	ExpirationUnixTimestampSec string         `json:"expirationUnixTimestampSec"`
	Salt                       string         `json:"salt"`
	ECSignature                *ECSignature   `json:"ecSignature,omitempty"`
}

// FeesRequest POST /fees 请求
type FeesRequest struct {
	ExchangeContractAddress    common.Address `json:"exchangeContractAddress"`
	Maker                      common.Address `json:"maker"`
	Taker                      common.Address `json:"taker"`
	MakerTokenAddress          common.Address `json:"makerTokenAddress"`
	TakerTokenAddress          common.Address `json:"takerTokenAddress"`
	MakerTokenAmount           string         `json:"makerTokenAmount"`
	TakerTokenAmount           string         `json:"takerTokenAmount"`
	ExpirationUnixTimestampSec string         `json:"expirationUnixTimestampSec"`
	Salt                       string         `json:"salt"`
}

// FeesResponse POST /fees 响应
type FeesResponse struct {
	FeeRecipient common.Address `json:"feeRecipient"`
	MakerFee     string         `json:"makerFee"`
	TakerFee     string         `json:"takerFee"`
}

// 手续费以 ZRX 计价
var feeToken = domain.Token{Name: "ZRX", Decimals: 18}

func parseWei(field, s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("relayer: invalid %s %q", field, s)
	}
	return v, nil
}

func toWire(o domain.Order, tokens domain.TokenResolver) Order {
	salt := "0"
	if o.Salt != nil {
		salt = o.Salt.String()
	}
	w := Order{
		ExchangeContractAddress:    o.ExchangeAddress,
		Maker:                      o.Maker,
		Taker:                      o.Taker,
		MakerTokenAddress:          o.PayToken,
		TakerTokenAddress:          o.BuyToken,
		FeeRecipient:               o.FeeRecipient,
		MakerTokenAmount:           tokens(o.PayToken).ToWei(o.PayAmount).String(),
		TakerTokenAmount:           tokens(o.BuyToken).ToWei(o.BuyAmount).String(),
		MakerFee:                   feeToken.ToWei(o.MakerFee).String(),
		TakerFee:                   feeToken.ToWei(o.TakerFee).String(),
		ExpirationUnixTimestampSec: strconv.FormatInt(o.Expiration, 10),
		Salt:                       salt,
	}
	if o.Hash != (common.Hash{}) {
		h := o.Hash
		w.OrderHash = &h
	}
	if o.Signature != nil {
		w.ECSignature = &ECSignature{V: o.Signature.V, R: o.Signature.R, S: o.Signature.S}
	}
	return w
}

func (w Order) toDomain(tokens domain.TokenResolver) (domain.Order, error) {
	pay, err := parseWei("makerTokenAmount", w.MakerTokenAmount)
	if err != nil {
		return domain.Order{}, err
	}
	buy, err := parseWei("takerTokenAmount", w.TakerTokenAmount)
	if err != nil {
		return domain.Order{}, err
	}
	makerFee, err := parseWei("makerFee", w.MakerFee)
	if err != nil {
		return domain.Order{}, err
	}
	takerFee, err := parseWei("takerFee", w.TakerFee)
	if err != nil {
		return domain.Order{}, err
	}
	salt, err := parseWei("salt", w.Salt)
	if err != nil {
		return domain.Order{}, err
	}
	expiration, err := strconv.ParseInt(w.ExpirationUnixTimestampSec, 10, 64)
	if err != nil {
		return domain.Order{}, fmt.Errorf("relayer: invalid expirationUnixTimestampSec %q", w.ExpirationUnixTimestampSec)
	}

	o := domain.Order{
		ExchangeAddress: w.ExchangeContractAddress,
		Maker:           w.Maker,
		Taker:           w.Taker,
		FeeRecipient:    w.FeeRecipient,
		PayToken:        w.MakerTokenAddress,
		PayAmount:       tokens(w.MakerTokenAddress).FromWei(pay),
		BuyToken:        w.TakerTokenAddress,
		BuyAmount:       tokens(w.TakerTokenAddress).FromWei(buy),
		MakerFee:        feeToken.FromWei(makerFee),
		TakerFee:        feeToken.FromWei(takerFee),
		Expiration:      expiration,
		Salt:            salt,
	}
	if w.OrderHash != nil {
		o.Hash = *w.OrderHash
	}
	if w.ECSignature != nil {
		o.Signature = &domain.Signature{V: w.ECSignature.V, R: w.ECSignature.R, S: w.ECSignature.S}
	}
	return o, nil
}

// hashLabel 返回 relayer 给出的订单哈希，缺失时返回 "<unknown>"
func (w Order) hashLabel() string {
	if w.OrderHash == nil {
		return "<unknown>"
	}
	return w.OrderHash.Hex()
}

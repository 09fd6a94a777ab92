package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Client resty 的薄封装：统一 base URL、超时、429 重试和错误解析
type Client struct {
	client *resty.Client
}

// Options 客户端选项
type Options struct {
	Timeout    time.Duration
	RetryCount int
	UserAgent  string
	Headers    map[string]string
}

// NewClient 创建 HTTP 客户端
func NewClient(host string, opts Options) *Client {
	host = strings.TrimSuffix(host, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "market-maker-keeper"
	}

	// resty 会自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", opts.UserAgent).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return resp != nil && resp.StatusCode() == http.StatusTooManyRequests
		}).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 遇到 429 限流，使用 Retry-After 头
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					return time.Duration(seconds) * time.Second, nil
				}
			}
			return 0, nil
		})
	for k, v := range opts.Headers {
		client.SetHeader(k, v)
	}

	return &Client{client: client}
}

type RequestOptions struct {
	Headers map[string]string
	Data    any
	Params  map[string]any
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	return r
}

// Do 发送请求；非 2xx 返回 *StatusError，out 非 nil 时解析 JSON 响应体
func (c *Client) Do(ctx context.Context, method, endpoint string, opt *RequestOptions, out any) error {
	rc := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if opt.Params != nil {
			rc.SetQueryParamsFromValues(toValues(opt.Params))
		}
		if opt.Data != nil {
			rc.SetHeader("Content-Type", "application/json")
			rc.SetBody(opt.Data)
		}
	}

	var (
		resp *resty.Response
		err  error
	)
	switch strings.ToUpper(method) {
	case http.MethodGet:
		resp, err = rc.Get(endpoint)
	case http.MethodPost:
		resp, err = rc.Post(endpoint)
	case http.MethodDelete:
		resp, err = rc.Delete(endpoint)
	case http.MethodPut:
		resp, err = rc.Put(endpoint)
	default:
		return fmt.Errorf("unsupported method: %s", method)
	}
	if err := ParseHTTPError(resp, err); err != nil {
		return errors.Wrapf(err, "%s %s", method, endpoint)
	}
	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return errors.Wrapf(err, "decode %s %s", method, endpoint)
		}
	}
	return nil
}

// Get GET 请求
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]any, out any) error {
	return c.Do(ctx, http.MethodGet, endpoint, &RequestOptions{Params: params}, out)
}

// Post POST JSON 请求
func (c *Client) Post(ctx context.Context, endpoint string, body any, out any) error {
	return c.Do(ctx, http.MethodPost, endpoint, &RequestOptions{Data: body}, out)
}

func toValues(m map[string]any) map[string][]string {
	v := make(map[string][]string, len(m))
	for k, val := range m {
		switch t := val.(type) {
		case []string:
			v[k] = t
		default:
			v[k] = []string{fmt.Sprint(val)}
		}
	}
	return v
}

// StatusError 非 2xx 响应
type StatusError struct {
	Status int
	Body   any
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http non-2xx: %d %v", e.Status, e.Body)
}

// ParseHTTPError 把传输错误和非 2xx 响应统一成 error
func ParseHTTPError(resp *resty.Response, err error) error {
	if err != nil {
		return errors.WithStack(err)
	}
	if resp == nil {
		return errors.New("http: empty response")
	}
	if resp.IsSuccess() {
		return nil
	}
	var body any
	b := resp.Body()
	_ = json.Unmarshal(b, &body)
	if body == nil {
		body = string(b)
	}
	return &StatusError{Status: resp.StatusCode(), Body: body}
}

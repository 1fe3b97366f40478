package broker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"

	"stockrouter/pkg/ratelimit"
	"stockrouter/pkg/retry"
)

// json - быстрый drop-in для encoding/json на горячем пути запросов
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config содержит настройки клиента брокерского API
type Config struct {
	// BaseURL - корень REST API брокера
	BaseURL string

	// ProbeTimeout - таймаут liveness probe токена (default: 10s)
	ProbeTimeout time.Duration

	// CallTimeout - таймаут торговых и токен-вызовов (default: 30s)
	CallTimeout time.Duration

	// RateLimit / RateBurst - лимит исходящих запросов, req/sec
	RateLimit float64
	RateBurst float64

	// HTTP - настройки транспорта
	HTTP HTTPClientConfig
}

// DefaultConfig возвращает конфигурацию клиента по умолчанию
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		ProbeTimeout: 10 * time.Second,
		CallTimeout:  30 * time.Second,
		RateLimit:    20,
		RateBurst:    20,
		HTTP:         DefaultHTTPClientConfig(),
	}
}

// Client - клиент REST API брокера. Потокобезопасен; один экземпляр
// обслуживает все слоты, различающиеся только заголовками запросов.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *ratelimit.RateLimiter
	probeTimeout time.Duration
	callTimeout  time.Duration
}

// NewClient создаёт клиента брокерского API
func NewClient(cfg Config) *Client {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.HTTP == (HTTPClientConfig{}) {
		cfg.HTTP = DefaultHTTPClientConfig()
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		httpClient:   newHTTPClient(cfg.HTTP),
		limiter:      ratelimit.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		probeTimeout: cfg.ProbeTimeout,
		callTimeout:  cfg.CallTimeout,
	}
}

// do выполняет один HTTP вызов: rate limit, маршалинг тела, заголовки,
// чтение ответа. Транспортные ошибки (timeout, connection refused)
// помечаются как транзиентные.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body interface{}, h *Headers, trID string, timeout time.Duration) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}

	if h != nil {
		h.apply(req, trID)
	} else {
		req.Header.Set("content-type", "application/json; charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, retry.Temporary(fmt.Errorf("request %s %s: %w", method, endpoint, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, retry.Temporary(fmt.Errorf("read response body: %w", err))
	}

	return resp.StatusCode, raw, nil
}

// parseResponse нормализует ответ API: HTTP-статус и rt_cd сводятся к
// (результат, ошибка). Ошибки апстрима классифицируются по тексту.
func parseResponse(status int, raw []byte) (*apiResponse, error) {
	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, classify(&UpstreamError{
			StatusCode: status,
			Message:    fmt.Sprintf("unparsable response: %s", truncate(raw, 200)),
		})
	}

	if status != http.StatusOK || resp.RtCd != rtSuccess {
		msg := resp.Msg1
		if msg == "" {
			msg = truncate(raw, 200)
		}
		return nil, classify(&UpstreamError{
			StatusCode: status,
			Code:       resp.MsgCd,
			Message:    msg,
		})
	}

	return &resp, nil
}

func truncate(raw []byte, n int) string {
	if len(raw) > n {
		return string(raw[:n]) + "..."
	}
	return string(raw)
}

// ============================================================
// Обмен ключей на токен
// ============================================================

// ExchangeToken обменивает ключи приложения на access token.
// Успех определяется наличием токена в ответе, независимо от rt_cd:
// эндпоинт OAuth отвечает без общей обёртки. Возвращает токен и срок
// его действия в исходном текстовом формате апстрима.
func (c *Client) ExchangeToken(ctx context.Context, appKey, appSecret string) (token, expiresAt string, err error) {
	body := tokenRequest{
		GrantType: "client_credentials",
		AppKey:    appKey,
		AppSecret: appSecret,
	}

	status, raw, err := c.do(ctx, http.MethodPost, endpointTokenIssue, nil, body, nil, "", c.callTimeout)
	if err != nil {
		return "", "", err
	}

	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", "", classify(&UpstreamError{
			StatusCode: status,
			Message:    fmt.Sprintf("unparsable token response: %s", truncate(raw, 200)),
		})
	}

	if resp.AccessToken == "" {
		msg := resp.Msg1
		if msg == "" {
			msg = truncate(raw, 200)
		}
		return "", "", classify(&UpstreamError{
			StatusCode: status,
			Code:       resp.MsgCd,
			Message:    msg,
		})
	}

	return resp.AccessToken, resp.ExpiresAt, nil
}

// ============================================================
// Liveness probe токена
// ============================================================

// Probe проверяет токен дешёвым read-only запросом котировки.
// nil - токен принят апстримом; ErrTokenRejected - апстрим распознал
// истёкший или невалидный токен; другая ошибка - результат неопределён
// (например, таймаут), и вызывающий должен считать токен ненадёжным.
func (c *Client) Probe(ctx context.Context, h Headers) error {
	query := url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_INPUT_ISCD":         {probeTicker},
	}

	status, raw, err := c.do(ctx, http.MethodGet, endpointProbe, query, nil, &h, trProbe, c.probeTimeout)
	if err != nil {
		return err
	}

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("unparsable probe response: %s", truncate(raw, 200))
	}

	if resp.MsgCd == msgCodeTokenExpired {
		return ErrTokenRejected
	}
	if status != http.StatusOK {
		return &UpstreamError{StatusCode: status, Code: resp.MsgCd, Message: resp.Msg1}
	}

	return nil
}

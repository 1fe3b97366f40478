package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"stockrouter/internal/models"
)

// CurrentPrice возвращает текущую цену инструмента.
//
// Возвращаемый ok различает "цены нет" и "цена есть": апстрим иногда
// отвечает успешным rt_cd с пустым полем цены (неизвестный тикер,
// закрытая сессия). Такой ответ - (0, false, nil), а не ошибка, чтобы
// вызывающий мог отличить отсутствие котировки от отказа вызова.
func (c *Client) CurrentPrice(ctx context.Context, h Headers, market models.Market, ticker string) (price float64, ok bool, err error) {
	if !market.Supported() {
		return 0, false, fmt.Errorf("%w: %s", models.ErrUnsupportedMarket, market)
	}

	var (
		endpoint   string
		trID       string
		query      url.Values
		priceField func(*apiResponse) string
	)

	if market.Overseas() {
		code, supported := quoteExchangeCode[market]
		if !supported {
			return 0, false, fmt.Errorf("%w: %s", models.ErrUnsupportedMarket, market)
		}
		endpoint = endpointOverseasQuote
		trID = trOverseasQuote
		query = url.Values{
			"AUTH": {""},
			"EXCD": {code},
			"SYMB": {ticker},
		}
		priceField = func(r *apiResponse) string { return r.Output.OverseasLast }
	} else {
		endpoint = endpointDomesticQuote
		trID = trDomesticQuote
		query = url.Values{
			"FID_COND_MRKT_DIV_CODE": {"J"},
			"FID_INPUT_ISCD":         {ticker},
		}
		priceField = func(r *apiResponse) string { return r.Output.DomesticPrice }
	}

	status, raw, err := c.do(ctx, http.MethodGet, endpoint, query, nil, &h, trID, c.probeTimeout)
	if err != nil {
		quoteRequestsTotal.WithLabelValues(string(market), "error").Inc()
		return 0, false, err
	}

	resp, err := parseResponse(status, raw)
	if err != nil {
		quoteRequestsTotal.WithLabelValues(string(market), "error").Inc()
		return 0, false, err
	}

	field := priceField(resp)
	if field == "" {
		quoteRequestsTotal.WithLabelValues(string(market), "absent").Inc()
		return 0, false, nil
	}

	price, perr := strconv.ParseFloat(field, 64)
	if perr != nil || price <= 0 {
		quoteRequestsTotal.WithLabelValues(string(market), "absent").Inc()
		return 0, false, nil
	}

	quoteRequestsTotal.WithLabelValues(string(market), "ok").Inc()
	return price, true, nil
}

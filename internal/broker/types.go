package broker

import (
	"net/http"

	"stockrouter/internal/models"
)

// Эндпоинты брокерского API
const (
	endpointTokenIssue    = "/oauth2/tokenP"
	endpointProbe         = "/uapi/domestic-stock/v1/quotations/inquire-ccnl"
	endpointDomesticQuote = "/uapi/domestic-stock/v1/quotations/inquire-price"
	endpointOverseasQuote = "/uapi/overseas-price/v1/quotations/price"
	endpointDomesticOrder = "/uapi/domestic-stock/v1/trading/order-cash"
	endpointOverseasOrder = "/uapi/overseas-stock/v1/trading/order"
)

// Транзакционные коды (tr_id). API различает покупку и продажу на уровне
// заголовка, а не тела запроса.
const (
	trDomesticBuy   = "TTTC0802U"
	trDomesticSell  = "TTTC0801U"
	trOverseasBuy   = "TTTT1002U"
	trOverseasSell  = "TTTT1006U"
	trProbe         = "FHKST01010300"
	trDomesticQuote = "FHKST01010100"
	trOverseasQuote = "HHDFS00000300"
)

// Сигналы ответов API
const (
	rtSuccess           = "0"        // rt_cd успешного ответа
	msgCodeTokenExpired = "EGW00123" // msg_cd истёкшего токена на probe-запросе
)

// probeTicker - ликвидный тикер для liveness probe (Samsung Electronics).
// Probe - обычный read-only запрос котировки с bearer-авторизацией.
const probeTicker = "005930"

// Коды площадок: API использует разные коды для ордеров и котировок.
var (
	orderExchangeCode = map[models.Market]string{
		models.MarketNASDAQ: "NASD",
		models.MarketNYSE:   "NYSE",
		models.MarketAMEX:   "AMEX",
	}
	quoteExchangeCode = map[models.Market]string{
		models.MarketNASDAQ: "NAS",
		models.MarketNYSE:   "NYS",
		models.MarketAMEX:   "AMS",
	}
)

// Коды типов ордера (ORD_DVSN)
const (
	ordDvsnLimit          = "00"
	ordDvsnDomesticMarket = "01"
)

// Headers - готовые к использованию заголовки авторизованного запроса.
// Валидны пока не истёк лежащий в их основе кред; переживать рестарт
// процесса не могут - строятся заново из хранилища.
type Headers struct {
	Authorization string // "Bearer <token>"
	AppKey        string
	AppSecret     string
	CustType      string // фиксированный маркер типа клиента, всегда "P"
}

// apply проставляет заголовки на исходящий запрос
func (h Headers) apply(req *http.Request, trID string) {
	req.Header.Set("content-type", "application/json; charset=utf-8")
	req.Header.Set("authorization", h.Authorization)
	req.Header.Set("appkey", h.AppKey)
	req.Header.Set("appsecret", h.AppSecret)
	req.Header.Set("custtype", h.CustType)
	if trID != "" {
		req.Header.Set("tr_id", trID)
	}
}

// ============================================================
// Wire-типы
// ============================================================

// tokenRequest - тело запроса обмена ключей на токен
type tokenRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	AppSecret string `json:"appsecret"`
}

// tokenResponse - ответ обмена. Эндпоинт OAuth отвечает без общей
// обёртки: признаком успеха служит непустой access_token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"access_token_token_expired"`
	RtCd        string `json:"rt_cd"`
	MsgCd       string `json:"msg_cd"`
	Msg1        string `json:"msg1"`
}

// apiResponse - общая обёртка ответов торговых и котировочных вызовов
type apiResponse struct {
	RtCd   string `json:"rt_cd"`
	MsgCd  string `json:"msg_cd"`
	Msg1   string `json:"msg1"`
	Output output `json:"output"`
}

// output - интересующие нас поля вложенного output разных вызовов
type output struct {
	// Ордерные ответы
	OrderNo string `json:"ODNO"`
	// Котировка KRX: текущая цена
	DomesticPrice string `json:"stck_prpr"`
	// Котировка зарубежных площадок: последняя сделка
	OverseasLast string `json:"last"`
}

// domesticOrderBody - тело ордера на внутреннем рынке
type domesticOrderBody struct {
	AccountNumber  string `json:"CANO"`
	AccountSubCode string `json:"ACNT_PRDT_CD"`
	Ticker         string `json:"PDNO"`
	OrderDivision  string `json:"ORD_DVSN"`
	Quantity       string `json:"ORD_QTY"`
	Price          string `json:"ORD_UNPR"`
}

// overseasOrderBody - тело ордера на зарубежной площадке.
// Нативного рыночного типа нет: ORD_DVSN всегда лимитный, цена для
// market-ордеров синтезируется движком исполнения.
type overseasOrderBody struct {
	AccountNumber  string `json:"CANO"`
	AccountSubCode string `json:"ACNT_PRDT_CD"`
	ExchangeCode   string `json:"OVRS_EXCG_CD"`
	Ticker         string `json:"PDNO"`
	OrderDivision  string `json:"ORD_DVSN"`
	Quantity       string `json:"ORD_QTY"`
	Price          string `json:"OVRS_ORD_UNPR"`
	OrderCondition string `json:"ORD_SVR_DVSN_CD"`
}

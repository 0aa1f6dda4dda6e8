package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

const (
	binanceFuturesBaseURL = "https://fapi.binance.com"

	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second

	// Binance error code for trigger orders that would fire on placement.
	codeImmediateTrigger = -2021
	codeOrderNotFound    = -2013
)

type binanceAPIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Binance is the USDT-M futures REST connector.
type Binance struct {
	apiKey    string
	apiSecret string
	http      *resty.Client
	rateLimit *RateLimit
	onUsage   UsageFunc
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

// NewBinance creates a connector. proxyURL may be empty for a direct
// connection; onUsage may be nil when nobody tracks quota.
func NewBinance(apiKey, apiSecret, proxyURL string, onUsage UsageFunc) *Binance {
	retryCount := defaultRetryAttempts - 1

	httpClient := resty.New().
		SetBaseURL(binanceFuturesBaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	if proxyURL != "" {
		httpClient.SetProxy(proxyURL)
	}

	return &Binance{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      httpClient,
		rateLimit: &RateLimit{},
		onUsage:   onUsage,
	}
}

// RateLimitState exposes the quota counters for callers that report usage.
func (b *Binance) RateLimitState() *RateLimit {
	return b.rateLimit
}

func (b *Binance) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(b.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *Binance) trackUsage(resp *resty.Response) {
	requestCount := headerInt(resp, "X-Mbx-Used-Weight-1m")
	orderCount := headerInt(resp, "X-Mbx-Order-Count-1m")
	b.rateLimit.Update(requestCount, orderCount)

	if b.onUsage != nil {
		b.onUsage(b.rateLimit.CurrentRequest(), b.rateLimit.CurrentOrder())
	}
}

func headerInt(resp *resty.Response, name string) int {
	value := resp.Header().Get(name)
	if value == "" {
		return -1
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return parsed
}

// doRequest performs one REST round trip. Signed requests get timestamp and
// signature appended to the query string.
func (b *Binance) doRequest(method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	req := b.http.R()

	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
		query := params.Encode()
		query += "&signature=" + b.sign(query)

		req.SetHeader("X-MBX-APIKEY", b.apiKey)
		req.SetQueryString(query)
	} else if len(params) > 0 {
		req.SetQueryString(params.Encode())
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("binance: %s %s: %w", method, path, err)
	}

	b.trackUsage(resp)

	raw := resp.Body()

	if resp.StatusCode() != 200 {
		var apiErr binanceAPIError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code != 0 {
			switch apiErr.Code {
			case codeImmediateTrigger:
				return nil, ErrImmediateTrigger
			case codeOrderNotFound:
				return nil, ErrOrderNotFound
			}

			logger.WithFields(map[string]interface{}{
				"path": path,
				"code": apiErr.Code,
				"msg":  apiErr.Msg,
			}).Error("Binance API error")

			return nil, fmt.Errorf("binance: %s %s: code %d: %s", method, path, apiErr.Code, apiErr.Msg)
		}

		return nil, fmt.Errorf("binance: %s %s: HTTP %d: %s", method, path, resp.StatusCode(), string(raw))
	}

	return raw, nil
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// GetCandles returns up to limit OHLCV bars, oldest first.
func (b *Binance) GetCandles(symbol, interval string, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	raw, err := b.doRequest(resty.MethodGet, "/fapi/v1/klines", params, false)
	if err != nil {
		return nil, err
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}

		var candle Candle
		var open, high, low, closePrice, volume string

		json.Unmarshal(row[0], &candle.OpenTime)
		json.Unmarshal(row[1], &open)
		json.Unmarshal(row[2], &high)
		json.Unmarshal(row[3], &low)
		json.Unmarshal(row[4], &closePrice)
		json.Unmarshal(row[5], &volume)
		json.Unmarshal(row[6], &candle.CloseTime)

		candle.Open = parseFloat(open)
		candle.High = parseFloat(high)
		candle.Low = parseFloat(low)
		candle.Close = parseFloat(closePrice)
		candle.Volume = parseFloat(volume)

		candles = append(candles, candle)
	}

	return candles, nil
}

// GetBook returns a shallow depth snapshot.
func (b *Binance) GetBook(symbol string) (*Book, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", "5")

	raw, err := b.doRequest(resty.MethodGet, "/fapi/v1/depth", params, false)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("binance: decode depth: %w", err)
	}

	book := &Book{}
	for _, level := range payload.Bids {
		if len(level) >= 2 {
			book.Bids = append(book.Bids, BookLevel{Price: parseFloat(level[0]), Quantity: parseFloat(level[1])})
		}
	}
	for _, level := range payload.Asks {
		if len(level) >= 2 {
			book.Asks = append(book.Asks, BookLevel{Price: parseFloat(level[0]), Quantity: parseFloat(level[1])})
		}
	}

	return book, nil
}

// GetAccountInformation returns the account margin summary.
func (b *Binance) GetAccountInformation() (*AccountInformation, error) {
	raw, err := b.doRequest(resty.MethodGet, "/fapi/v2/account", nil, true)
	if err != nil {
		return nil, err
	}

	var payload struct {
		TotalWalletBalance    string `json:"totalWalletBalance"`
		TotalMarginBalance    string `json:"totalMarginBalance"`
		TotalMaintMargin      string `json:"totalMaintMargin"`
		TotalUnrealizedProfit string `json:"totalUnrealizedProfit"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("binance: decode account: %w", err)
	}

	return &AccountInformation{
		TotalWalletBalance:    parseFloat(payload.TotalWalletBalance),
		TotalMarginBalance:    parseFloat(payload.TotalMarginBalance),
		TotalMaintMargin:      parseFloat(payload.TotalMaintMargin),
		TotalUnrealizedProfit: parseFloat(payload.TotalUnrealizedProfit),
	}, nil
}

// GetPosition returns the hedge-mode position rows for one symbol.
func (b *Binance) GetPosition(symbol string) ([]PositionRisk, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	raw, err := b.doRequest(resty.MethodGet, "/fapi/v2/positionRisk", params, true)
	if err != nil {
		return nil, err
	}

	var payload []struct {
		Symbol           string `json:"symbol"`
		PositionSide     string `json:"positionSide"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		BreakEvenPrice   string `json:"breakEvenPrice"`
		MarkPrice        string `json:"markPrice"`
		LiquidationPrice string `json:"liquidationPrice"`
		Leverage         string `json:"leverage"`
		MarginType       string `json:"marginType"`
		Notional         string `json:"notional"`
		UnRealizedProfit string `json:"unRealizedProfit"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("binance: decode positions: %w", err)
	}

	positions := make([]PositionRisk, 0, len(payload))
	for _, row := range payload {
		leverage, _ := strconv.Atoi(row.Leverage)
		positions = append(positions, PositionRisk{
			Symbol:           row.Symbol,
			PositionSide:     row.PositionSide,
			PositionAmt:      parseFloat(row.PositionAmt),
			EntryPrice:       parseFloat(row.EntryPrice),
			BreakEvenPrice:   parseFloat(row.BreakEvenPrice),
			MarkPrice:        parseFloat(row.MarkPrice),
			LiquidationPrice: parseFloat(row.LiquidationPrice),
			Leverage:         leverage,
			MarginType:       strings.ToUpper(row.MarginType),
			Notional:         parseFloat(row.Notional),
			UnrealizedProfit: parseFloat(row.UnRealizedProfit),
		})
	}

	return positions, nil
}

type binanceOrder struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	PositionSide  string `json:"positionSide"`
	Type          string `json:"type"`
	OrigType      string `json:"origType"`
	Status        string `json:"status"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
	ReduceOnly    bool   `json:"reduceOnly"`
	ClosePosition bool   `json:"closePosition"`
	TimeInForce   string `json:"timeInForce"`
	Time          int64  `json:"time"`
	UpdateTime    int64  `json:"updateTime"`
}

func (o *binanceOrder) toOrder() *Order {
	return &Order{
		OrderID:       strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          o.Side,
		PositionSide:  o.PositionSide,
		Type:          o.Type,
		OrigType:      o.OrigType,
		Status:        o.Status,
		Price:         parseFloat(o.Price),
		StopPrice:     parseFloat(o.StopPrice),
		OrigQty:       parseFloat(o.OrigQty),
		ExecutedQty:   parseFloat(o.ExecutedQty),
		AvgPrice:      parseFloat(o.AvgPrice),
		ReduceOnly:    o.ReduceOnly,
		ClosePosition: o.ClosePosition,
		TimeInForce:   o.TimeInForce,
		Time:          o.Time,
		UpdateTime:    o.UpdateTime,
	}
}

// GetOpenOrders returns every working order for one symbol.
func (b *Binance) GetOpenOrders(symbol string) ([]Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	raw, err := b.doRequest(resty.MethodGet, "/fapi/v1/openOrders", params, true)
	if err != nil {
		return nil, err
	}

	var payload []binanceOrder
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("binance: decode open orders: %w", err)
	}

	orders := make([]Order, 0, len(payload))
	for i := range payload {
		orders = append(orders, *payload[i].toOrder())
	}

	return orders, nil
}

// GetOrderByID fetches one order. Returns (nil, nil) when the exchange no
// longer knows the id.
func (b *Binance) GetOrderByID(symbol, orderID string) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	raw, err := b.doRequest(resty.MethodGet, "/fapi/v1/order", params, true)
	if err != nil {
		if err == ErrOrderNotFound {
			return nil, nil
		}
		return nil, err
	}

	var payload binanceOrder
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("binance: decode order: %w", err)
	}

	return payload.toOrder(), nil
}

// GetRealizedPnl sums the trade fills of one order into a PnL breakdown.
func (b *Binance) GetRealizedPnl(symbol, orderID string) (*RealizedPnl, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	raw, err := b.doRequest(resty.MethodGet, "/fapi/v1/userTrades", params, true)
	if err != nil {
		return nil, err
	}

	var trades []struct {
		Price       string `json:"price"`
		Qty         string `json:"qty"`
		Commission  string `json:"commission"`
		RealizedPnl string `json:"realizedPnl"`
	}
	if err := json.Unmarshal(raw, &trades); err != nil {
		return nil, fmt.Errorf("binance: decode trades: %w", err)
	}

	pnl := &RealizedPnl{}
	for _, trade := range trades {
		pnl.Close += parseFloat(trade.Price) * parseFloat(trade.Qty)
		pnl.Commission += parseFloat(trade.Commission)
		pnl.Realized += parseFloat(trade.RealizedPnl)
	}

	return pnl, nil
}

// CreateOrder places a new order.
func (b *Binance) CreateOrder(spec OrderSpec) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", spec.Symbol)
	params.Set("side", spec.Side)
	params.Set("positionSide", spec.PositionSide)
	params.Set("type", spec.Type)

	if spec.Quantity > 0 {
		params.Set("quantity", strconv.FormatFloat(spec.Quantity, 'f', -1, 64))
	}
	if spec.Price > 0 {
		params.Set("price", strconv.FormatFloat(spec.Price, 'f', -1, 64))
	}
	if spec.StopPrice > 0 {
		params.Set("stopPrice", strconv.FormatFloat(spec.StopPrice, 'f', -1, 64))
	}
	if spec.ClosePosition {
		params.Set("closePosition", "true")
	}
	if spec.ReduceOnly && !spec.ClosePosition {
		params.Set("reduceOnly", "true")
	}
	if spec.TimeInForce != "" {
		params.Set("timeInForce", spec.TimeInForce)
	}
	clientOrderID := spec.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = "flink-" + uuid.NewString()
	}
	params.Set("newClientOrderId", clientOrderID)

	raw, err := b.doRequest(resty.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return nil, err
	}

	var payload binanceOrder
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("binance: decode created order: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"symbol":   spec.Symbol,
		"side":     spec.Side,
		"type":     spec.Type,
		"order_id": payload.OrderID,
	}).Info("Order placed")

	return payload.toOrder(), nil
}

// CancelOrder cancels one working order.
func (b *Binance) CancelOrder(symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	_, err := b.doRequest(resty.MethodDelete, "/fapi/v1/order", params, true)
	if err != nil && err != ErrOrderNotFound {
		return err
	}

	return nil
}

// ClosePosition places a reduce-only trigger order against an open position.
// stop selects a stop-loss leg instead of a take-profit leg. quantity 0
// closes the whole position.
func (b *Binance) ClosePosition(symbol, positionSide string, price float64, stop bool, quantity float64) (*Order, error) {
	side := OrderSideSell
	if positionSide == "SHORT" {
		side = OrderSideBuy
	}

	orderType := "TAKE_PROFIT_MARKET"
	if stop {
		orderType = "STOP_MARKET"
	}

	spec := OrderSpec{
		Symbol:       symbol,
		Side:         side,
		PositionSide: positionSide,
		Type:         orderType,
		StopPrice:    price,
	}

	if quantity > 0 {
		spec.Quantity = quantity
		spec.ReduceOnly = true
	} else {
		spec.ClosePosition = true
	}

	return b.CreateOrder(spec)
}

// GetExchangeInfo returns precision and filter metadata for every pair.
func (b *Binance) GetExchangeInfo() (*ExchangeInfo, error) {
	raw, err := b.doRequest(resty.MethodGet, "/fapi/v1/exchangeInfo", nil, false)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Symbols []struct {
			Symbol            string `json:"symbol"`
			PricePrecision    int    `json:"pricePrecision"`
			QuantityPrecision int    `json:"quantityPrecision"`
			Filters           []struct {
				FilterType string `json:"filterType"`
				Notional   string `json:"notional"`
				StepSize   string `json:"stepSize"`
				MinQty     string `json:"minQty"`
				TickSize   string `json:"tickSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("binance: decode exchange info: %w", err)
	}

	info := &ExchangeInfo{Symbols: make([]SymbolInfo, 0, len(payload.Symbols))}
	for _, row := range payload.Symbols {
		symbolInfo := SymbolInfo{
			Symbol:            row.Symbol,
			PricePrecision:    row.PricePrecision,
			QuantityPrecision: row.QuantityPrecision,
		}
		for _, filter := range row.Filters {
			symbolInfo.Filters = append(symbolInfo.Filters, Filter{
				FilterType:  filter.FilterType,
				Notional:    parseFloat(filter.Notional),
				StepSize:    parseFloat(filter.StepSize),
				MinQuantity: parseFloat(filter.MinQty),
				TickSize:    parseFloat(filter.TickSize),
			})
		}
		info.Symbols = append(info.Symbols, symbolInfo)
	}

	return info, nil
}

// GetStaticsTicker returns the 24h price statistics for one pair.
func (b *Binance) GetStaticsTicker(symbol string) (*Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	raw, err := b.doRequest(resty.MethodGet, "/fapi/v1/ticker/24hr", params, false)
	if err != nil {
		return nil, err
	}

	var payload struct {
		LastPrice string `json:"lastPrice"`
		HighPrice string `json:"highPrice"`
		LowPrice  string `json:"lowPrice"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("binance: decode ticker: %w", err)
	}

	return &Ticker{
		LastPrice: parseFloat(payload.LastPrice),
		HighPrice: parseFloat(payload.HighPrice),
		LowPrice:  parseFloat(payload.LowPrice),
	}, nil
}

package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	binanceWSURL       = "wss://stream.binance.com:9443/stream"
	binanceRESTURL     = "https://api.binance.com"
	binanceTestWSURL   = "wss://stream.testnet.binance.vision/stream"
	binanceTestRESTURL = "https://testnet.binance.vision"

	binanceRecvWindow = "5000"
)

// BinanceClient speaks the Binance spot API: market data over the combined
// websocket stream, trading over signed REST. Execution reports are
// synthesized from REST acks; the private user-data stream is not consumed.
type BinanceClient struct {
	log     *zap.Logger
	apiKey  string
	secret  string
	wsURL   string
	restURL string
	httpc   *http.Client

	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected bool
	stopCh    chan struct{}
	wg        sync.WaitGroup

	// writeMu serializes websocket writes between the ping loop and
	// subscription management.
	writeMu sync.Mutex

	cbMu sync.RWMutex
	cb   Callbacks

	subMu     sync.Mutex
	streams   []string
	nextSubID uint64
}

// NewBinanceClient builds a disconnected Binance adapter. Empty credentials
// fall back to the BINANCE_API_KEY and BINANCE_API_SECRET environment
// variables; market data works without either.
func NewBinanceClient(apiKey, apiSecret string, testnet bool, log *zap.Logger) *BinanceClient {
	if apiKey == "" {
		apiKey = os.Getenv("BINANCE_API_KEY")
	}
	if apiSecret == "" {
		apiSecret = os.Getenv("BINANCE_API_SECRET")
	}
	wsURL, restURL := binanceWSURL, binanceRESTURL
	if testnet {
		wsURL, restURL = binanceTestWSURL, binanceTestRESTURL
	}
	return &BinanceClient{
		log:     log.Named("binance"),
		apiKey:  apiKey,
		secret:  apiSecret,
		wsURL:   wsURL,
		restURL: restURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *BinanceClient) Exchange() core.ExchangeID { return core.ExchangeBinance }

func (c *BinanceClient) Name() string { return "binance" }

// SetEndpoints overrides the websocket and REST endpoints. Empty strings
// keep the defaults chosen at construction. Call before Connect.
func (c *BinanceClient) SetEndpoints(wsURL, restURL string) {
	if wsURL != "" {
		c.wsURL = wsURL
	}
	if restURL != "" {
		c.restURL = restURL
	}
}

// SetTimeout overrides the REST client timeout. Call before Connect.
func (c *BinanceClient) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpc.Timeout = d
	}
}

// SetCallbacks registers the event sinks. Call before Connect.
func (c *BinanceClient) SetCallbacks(cb Callbacks) {
	c.cbMu.Lock()
	c.cb = cb
	c.cbMu.Unlock()
}

func (c *BinanceClient) callbacks() Callbacks {
	c.cbMu.RLock()
	defer c.cbMu.RUnlock()
	return c.cb
}

func (c *BinanceClient) Connect(ctx context.Context) error {
	c.connMu.Lock()
	if c.connected {
		c.connMu.Unlock()
		return nil
	}
	c.log.Info("Connecting to WebSocket", zap.String("url", c.wsURL))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		c.connMu.Unlock()
		return fmt.Errorf("binance: dial %s: %w", c.wsURL, err)
	}
	c.conn = conn
	c.connected = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.connMu.Unlock()

	c.log.Info("WebSocket connected")

	c.wg.Add(2)
	go c.readPump(conn, stopCh)
	go c.pingPump(conn, stopCh)

	if err := c.resubscribe(); err != nil {
		c.log.Warn("Stream resubscribe failed", zap.Error(err))
	}

	if cb := c.callbacks(); cb.OnConnected != nil {
		cb.OnConnected()
	}
	return nil
}

func (c *BinanceClient) Disconnect() error {
	c.connMu.Lock()
	if !c.connected {
		c.connMu.Unlock()
		return nil
	}
	c.connected = false
	close(c.stopCh)
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	c.log.Info("WebSocket disconnected")

	if cb := c.callbacks(); cb.OnDisconnected != nil {
		cb.OnDisconnected()
	}
	return nil
}

func (c *BinanceClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

func (c *BinanceClient) readPump(conn *websocket.Conn, stopCh <-chan struct{}) {
	defer c.wg.Done()

	conn.SetReadLimit(512 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-stopCh:
			return
		default:
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("WebSocket read error", zap.Error(err))
			}
			c.handleDisconnect()
			return
		}
		c.handleMessage(msg)
	}
}

func (c *BinanceClient) pingPump(conn *websocket.Conn, stopCh <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.log.Warn("WebSocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

// handleDisconnect runs when the read loop dies without Disconnect being
// called. The owner decides whether to reconnect.
func (c *BinanceClient) handleDisconnect() {
	c.connMu.Lock()
	if !c.connected {
		c.connMu.Unlock()
		return
	}
	c.connected = false
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.log.Warn("WebSocket connection lost")
	if cb := c.callbacks(); cb.OnDisconnected != nil {
		cb.OnDisconnected()
	}
}

// Combined-stream frame. Control acks arrive without the wrapper and are
// dropped.
type wsFrame struct {
	Stream string              `json:"stream"`
	Data   jsoniter.RawMessage `json:"data"`
}

type wsCommand struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     uint64   `json:"id"`
}

type binanceBookTicker struct {
	UpdateID uint64 `json:"u"`
	Symbol   string `json:"s"`
	Bid      string `json:"b"`
	BidQty   string `json:"B"`
	Ask      string `json:"a"`
	AskQty   string `json:"A"`
}

type binanceTradeEvent struct {
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      uint64 `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	BuyerIsMaker bool   `json:"m"`
}

type binanceMiniTicker struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

func (c *BinanceClient) handleMessage(msg []byte) {
	var frame wsFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		c.log.Warn("Unparseable WebSocket message", zap.Error(err))
		return
	}
	switch {
	case strings.Contains(frame.Stream, "@bookTicker"):
		c.handleBookTicker(frame.Data)
	case strings.Contains(frame.Stream, "@trade"):
		c.handleTrade(frame.Data)
	case strings.Contains(frame.Stream, "@miniTicker"):
		c.handleMiniTicker(frame.Data)
	}
}

func (c *BinanceClient) handleBookTicker(data []byte) {
	var bt binanceBookTicker
	if err := json.Unmarshal(data, &bt); err != nil {
		c.log.Warn("Bad bookTicker payload", zap.Error(err))
		return
	}
	t := core.Tick{
		Bid:      core.Price(parseScaled(bt.Bid)),
		Ask:      core.Price(parseScaled(bt.Ask)),
		BidQty:   core.Quantity(parseScaled(bt.BidQty)),
		AskQty:   core.Quantity(parseScaled(bt.AskQty)),
		LocalTS:  core.Now(),
		Seq:      core.SequenceNum(bt.UpdateID),
		Exchange: core.ExchangeBinance,
	}
	if cb := c.callbacks(); cb.OnTick != nil {
		cb.OnTick(t)
	}
}

// Public prints carry only last price and size; the book side of the tick
// stays zero so consumers leave their quotes untouched.
func (c *BinanceClient) handleTrade(data []byte) {
	var tr binanceTradeEvent
	if err := json.Unmarshal(data, &tr); err != nil {
		c.log.Warn("Bad trade payload", zap.Error(err))
		return
	}
	t := core.Tick{
		LastPrice:  core.Price(parseScaled(tr.Price)),
		LastQty:    core.Quantity(parseScaled(tr.Quantity)),
		ExchangeTS: msToTimestamp(tr.TradeTime),
		LocalTS:    core.Now(),
		Exchange:   core.ExchangeBinance,
	}
	if cb := c.callbacks(); cb.OnTick != nil {
		cb.OnTick(t)
	}
}

func (c *BinanceClient) handleMiniTicker(data []byte) {
	var mt binanceMiniTicker
	if err := json.Unmarshal(data, &mt); err != nil {
		c.log.Warn("Bad miniTicker payload", zap.Error(err))
		return
	}
	t := core.Tick{
		LastPrice:  core.Price(parseScaled(mt.Close)),
		ExchangeTS: msToTimestamp(mt.EventTime),
		LocalTS:    core.Now(),
		Exchange:   core.ExchangeBinance,
	}
	if cb := c.callbacks(); cb.OnTick != nil {
		cb.OnTick(t)
	}
}

// The book feed is top-of-book; depth is accepted for interface symmetry.
func (c *BinanceClient) SubscribeOrderBook(symbol core.Symbol, depth int) error {
	return c.subscribe(streamName(symbol, "bookTicker"))
}

func (c *BinanceClient) SubscribeTrades(symbol core.Symbol) error {
	return c.subscribe(streamName(symbol, "trade"))
}

func (c *BinanceClient) SubscribeTicker(symbol core.Symbol) error {
	return c.subscribe(streamName(symbol, "miniTicker"))
}

func (c *BinanceClient) Unsubscribe(symbol core.Symbol) error {
	prefix := strings.ToLower(symbol.String()) + "@"

	c.subMu.Lock()
	var dropped []string
	kept := c.streams[:0]
	for _, s := range c.streams {
		if strings.HasPrefix(s, prefix) {
			dropped = append(dropped, s)
		} else {
			kept = append(kept, s)
		}
	}
	c.streams = kept
	c.nextSubID++
	id := c.nextSubID
	c.subMu.Unlock()

	if len(dropped) == 0 {
		return nil
	}
	return c.sendCommand(wsCommand{Method: "UNSUBSCRIBE", Params: dropped, ID: id})
}

func streamName(symbol core.Symbol, kind string) string {
	return strings.ToLower(symbol.String()) + "@" + kind
}

// subscribe records the stream and, when connected, sends the SUBSCRIBE
// frame. Recorded streams are replayed on every connect, so subscribing
// before Connect is fine.
func (c *BinanceClient) subscribe(stream string) error {
	c.subMu.Lock()
	known := false
	for _, s := range c.streams {
		if s == stream {
			known = true
			break
		}
	}
	if !known {
		c.streams = append(c.streams, stream)
	}
	c.nextSubID++
	id := c.nextSubID
	c.subMu.Unlock()

	if !c.IsConnected() {
		return nil
	}
	c.log.Debug("Subscribing", zap.String("stream", stream))
	return c.sendCommand(wsCommand{Method: "SUBSCRIBE", Params: []string{stream}, ID: id})
}

func (c *BinanceClient) resubscribe() error {
	c.subMu.Lock()
	streams := make([]string, len(c.streams))
	copy(streams, c.streams)
	c.nextSubID++
	id := c.nextSubID
	c.subMu.Unlock()

	if len(streams) == 0 {
		return nil
	}
	c.log.Info("Resubscribing streams", zap.Int("count", len(streams)))
	return c.sendCommand(wsCommand{Method: "SUBSCRIBE", Params: streams, ID: id})
}

func (c *BinanceClient) sendCommand(cmd wsCommand) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	buf, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, buf)
}

type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type binanceFill struct {
	Price   string `json:"price"`
	Qty     string `json:"qty"`
	TradeID int64  `json:"tradeId"`
}

type binanceOrderAck struct {
	Symbol        string        `json:"symbol"`
	OrderID       int64         `json:"orderId"`
	ClientOrderID string        `json:"clientOrderId"`
	TransactTime  int64         `json:"transactTime"`
	Price         string        `json:"price"`
	OrigQty       string        `json:"origQty"`
	ExecutedQty   string        `json:"executedQty"`
	Status        string        `json:"status"`
	Fills         []binanceFill `json:"fills"`
}

func (c *BinanceClient) SendOrder(ctx context.Context, o *core.Order) OrderResponse {
	otype, tif := binanceOrderParams(o)

	params := url.Values{}
	params.Set("symbol", o.Symbol.String())
	params.Set("side", o.Side.String())
	params.Set("type", otype)
	if tif != "" {
		params.Set("timeInForce", tif)
	}
	params.Set("quantity", fmtScaled(int64(o.Quantity)))
	if otype != "MARKET" {
		params.Set("price", fmtScaled(int64(o.Price)))
	}
	if o.ClientID != 0 {
		params.Set("newClientOrderId", strconv.FormatUint(uint64(o.ClientID), 10))
	}
	params.Set("newOrderRespType", "FULL")

	var ack binanceOrderAck
	if err := c.signedRequest(ctx, http.MethodPost, "/api/v3/order", params, &ack); err != nil {
		return OrderResponse{ClientOrderID: o.ClientID, Error: err.Error()}
	}

	resp := OrderResponse{
		ExchangeOrderID: core.OrderID(ack.OrderID),
		ClientOrderID:   o.ClientID,
		Success:         true,
		ExchangeTS:      msToTimestamp(ack.TransactTime),
	}
	c.emitAck(o, &ack)
	return resp
}

// emitAck turns a REST ack carrying execution state into the order update
// and trade events the user-data stream would have produced.
func (c *BinanceClient) emitAck(o *core.Order, ack *binanceOrderAck) {
	status := binanceStatus(ack.Status)
	if status == core.StatusNew && len(ack.Fills) == 0 {
		return
	}
	cb := c.callbacks()

	update := *o
	update.ID = core.OrderID(ack.OrderID)
	update.Exchange = core.ExchangeBinance
	update.Status = status
	update.FilledQty = core.Quantity(parseScaled(ack.ExecutedQty))
	update.Timestamp = msToTimestamp(ack.TransactTime)
	if update.Timestamp == 0 {
		update.Timestamp = core.Now()
	}
	if cb.OnOrderUpdate != nil {
		cb.OnOrderUpdate(update)
	}
	if cb.OnTrade == nil {
		return
	}
	for _, f := range ack.Fills {
		cb.OnTrade(core.Trade{
			OrderID:   core.OrderID(ack.OrderID),
			TradeID:   core.OrderID(f.TradeID),
			Price:     core.Price(parseScaled(f.Price)),
			Quantity:  core.Quantity(parseScaled(f.Qty)),
			Timestamp: update.Timestamp,
			Exchange:  core.ExchangeBinance,
			Side:      o.Side,
			IsMaker:   false,
		})
	}
}

func (c *BinanceClient) CancelOrder(ctx context.Context, req CancelRequest) CancelResponse {
	params := url.Values{}
	params.Set("symbol", req.Symbol.String())
	if req.OrderID != 0 {
		params.Set("orderId", strconv.FormatUint(uint64(req.OrderID), 10))
	} else if req.ClientOrderID != 0 {
		params.Set("origClientOrderId", strconv.FormatUint(uint64(req.ClientOrderID), 10))
	} else {
		return CancelResponse{Error: "order id required"}
	}

	var ack binanceOrderAck
	if err := c.signedRequest(ctx, http.MethodDelete, "/api/v3/order", params, &ack); err != nil {
		return CancelResponse{Error: err.Error()}
	}
	c.emitCancel(req.Symbol, &ack)
	return CancelResponse{Success: true}
}

func (c *BinanceClient) CancelAllOrders(ctx context.Context, symbol core.Symbol) CancelResponse {
	if symbol.String() == "" {
		return CancelResponse{Error: "symbol required"}
	}
	params := url.Values{}
	params.Set("symbol", symbol.String())

	var acks []binanceOrderAck
	if err := c.signedRequest(ctx, http.MethodDelete, "/api/v3/openOrders", params, &acks); err != nil {
		return CancelResponse{Error: err.Error()}
	}
	for i := range acks {
		c.emitCancel(symbol, &acks[i])
	}
	return CancelResponse{Success: true}
}

func (c *BinanceClient) emitCancel(symbol core.Symbol, ack *binanceOrderAck) {
	cb := c.callbacks()
	if cb.OnOrderUpdate == nil {
		return
	}
	update := core.Order{
		ID:        core.OrderID(ack.OrderID),
		Price:     core.Price(parseScaled(ack.Price)),
		Quantity:  core.Quantity(parseScaled(ack.OrigQty)),
		FilledQty: core.Quantity(parseScaled(ack.ExecutedQty)),
		Timestamp: core.Now(),
		Symbol:    symbol,
		Exchange:  core.ExchangeBinance,
		Status:    binanceStatus(ack.Status),
	}
	if id, err := strconv.ParseUint(ack.ClientOrderID, 10, 64); err == nil {
		update.ClientID = core.OrderID(id)
	}
	cb.OnOrderUpdate(update)
}

type binanceBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

type binanceAccount struct {
	Balances []binanceBalance `json:"balances"`
}

// Balance returns the free balance of one asset.
func (c *BinanceClient) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	var acct binanceAccount
	if err := c.signedRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{}, &acct); err != nil {
		return decimal.Zero, err
	}
	for _, b := range acct.Balances {
		if strings.EqualFold(b.Asset, asset) {
			return decimal.NewFromString(b.Free)
		}
	}
	return decimal.Zero, nil
}

type binanceOpenOrder struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	TimeInForce   string `json:"timeInForce"`
	Time          int64  `json:"time"`
}

func (c *BinanceClient) OpenOrders(ctx context.Context, symbol core.Symbol) ([]core.Order, error) {
	params := url.Values{}
	if symbol.String() != "" {
		params.Set("symbol", symbol.String())
	}
	var raw []binanceOpenOrder
	if err := c.signedRequest(ctx, http.MethodGet, "/api/v3/openOrders", params, &raw); err != nil {
		return nil, err
	}

	out := make([]core.Order, 0, len(raw))
	for _, r := range raw {
		o := core.Order{
			ID:        core.OrderID(r.OrderID),
			Price:     core.Price(parseScaled(r.Price)),
			Quantity:  core.Quantity(parseScaled(r.OrigQty)),
			FilledQty: core.Quantity(parseScaled(r.ExecutedQty)),
			Timestamp: msToTimestamp(r.Time),
			Symbol:    core.NewSymbol(r.Symbol),
			Exchange:  core.ExchangeBinance,
			Side:      parseSide(r.Side),
			Type:      parseOrderType(r.Type),
			Status:    binanceStatus(r.Status),
			TIF:       parseTIF(r.TimeInForce),
		}
		if id, err := strconv.ParseUint(r.ClientOrderID, 10, 64); err == nil {
			o.ClientID = core.OrderID(id)
		}
		out = append(out, o)
	}
	return out, nil
}

func (c *BinanceClient) ServerTime(ctx context.Context) (core.Timestamp, error) {
	var st struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.publicRequest(ctx, "/api/v3/time", &st); err != nil {
		return 0, err
	}
	return msToTimestamp(st.ServerTime), nil
}

func (c *BinanceClient) publicRequest(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// signedRequest sends an HMAC-SHA256 signed request. Binance signs the
// full query string and takes the signature as the last parameter.
func (c *BinanceClient) signedRequest(ctx context.Context, method, path string, params url.Values, out any) error {
	if c.apiKey == "" || c.secret == "" {
		return fmt.Errorf("binance: api credentials not configured")
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", binanceRecvWindow)
	query := params.Encode()

	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(query))
	sig := hex.EncodeToString(mac.Sum(nil))

	u := c.restURL + path + "?" + query + "&signature=" + sig
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr binanceError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return fmt.Errorf("binance: %s (code %d)", apiErr.Msg, apiErr.Code)
		}
		return fmt.Errorf("binance: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// binanceOrderParams maps an order onto Binance's type and timeInForce
// parameters. IOC and FOK are limit orders with a short time in force;
// GTX maps to the post-only LIMIT_MAKER type.
func binanceOrderParams(o *core.Order) (otype, tif string) {
	switch o.Type {
	case core.Market:
		return "MARKET", ""
	case core.LimitMaker:
		return "LIMIT_MAKER", ""
	case core.ImmediateOrCancel:
		return "LIMIT", "IOC"
	case core.FillOrKill:
		return "LIMIT", "FOK"
	}
	switch o.TIF {
	case core.IOC:
		return "LIMIT", "IOC"
	case core.FOK:
		return "LIMIT", "FOK"
	case core.GTX:
		return "LIMIT_MAKER", ""
	}
	return "LIMIT", "GTC"
}

func binanceStatus(s string) core.OrderStatus {
	switch s {
	case "NEW":
		return core.StatusNew
	case "PARTIALLY_FILLED":
		return core.StatusPartiallyFilled
	case "FILLED":
		return core.StatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return core.StatusCanceled
	case "REJECTED":
		return core.StatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return core.StatusExpired
	}
	return core.StatusNew
}

func parseSide(s string) core.Side {
	if s == "SELL" {
		return core.Sell
	}
	return core.Buy
}

func parseOrderType(s string) core.OrderType {
	switch s {
	case "MARKET":
		return core.Market
	case "LIMIT_MAKER":
		return core.LimitMaker
	}
	return core.Limit
}

func parseTIF(s string) core.TimeInForce {
	switch s {
	case "IOC":
		return core.IOC
	case "FOK":
		return core.FOK
	}
	return core.GTC
}

func msToTimestamp(ms int64) core.Timestamp {
	if ms <= 0 {
		return 0
	}
	return core.Timestamp(ms) * 1e6
}

// parseScaled converts a venue decimal string to the fixed-point scale.
// Decimal parsing keeps prices like "4.56" exact where a float round trip
// would truncate.
func parseScaled(s string) int64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.Shift(8).IntPart()
}

// fmtScaled renders a fixed-point value as a decimal string with trailing
// zeros trimmed, the way venue APIs expect quantities and prices.
func fmtScaled(v int64) string {
	whole := v / core.PricePrecision
	frac := v % core.PricePrecision
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	s := fmt.Sprintf("%d.%08d", whole, frac)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

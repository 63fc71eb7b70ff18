package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/core"
)

func TestFmtScaled(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{100 * core.PricePrecision, "100"},
		{10050000000, "100.5"},
		{10000000, "0.1"},
		{456000000, "4.56"},
		{12345678900, "123.456789"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, fmtScaled(c.in), "fmtScaled(%d)", c.in)
	}
}

func TestParseScaled(t *testing.T) {
	assert.EqualValues(t, 10050000000, parseScaled("100.5"))
	// A float round trip would truncate this one to 455999999.
	assert.EqualValues(t, 456000000, parseScaled("4.56"))
	assert.EqualValues(t, 100000000, parseScaled("1"))
	assert.Zero(t, parseScaled(""))
	assert.Zero(t, parseScaled("bogus"))
}

func TestBinanceOrderParams(t *testing.T) {
	cases := []struct {
		order core.Order
		otype string
		tif   string
	}{
		{core.Order{Type: core.Market}, "MARKET", ""},
		{core.Order{Type: core.LimitMaker}, "LIMIT_MAKER", ""},
		{core.Order{Type: core.ImmediateOrCancel}, "LIMIT", "IOC"},
		{core.Order{Type: core.FillOrKill}, "LIMIT", "FOK"},
		{core.Order{Type: core.Limit, TIF: core.GTC}, "LIMIT", "GTC"},
		{core.Order{Type: core.Limit, TIF: core.IOC}, "LIMIT", "IOC"},
		{core.Order{Type: core.Limit, TIF: core.GTX}, "LIMIT_MAKER", ""},
	}
	for _, c := range cases {
		ot, tif := binanceOrderParams(&c.order)
		assert.Equal(t, c.otype, ot)
		assert.Equal(t, c.tif, tif)
	}
}

func TestBinanceStatusMapping(t *testing.T) {
	assert.Equal(t, core.StatusNew, binanceStatus("NEW"))
	assert.Equal(t, core.StatusPartiallyFilled, binanceStatus("PARTIALLY_FILLED"))
	assert.Equal(t, core.StatusFilled, binanceStatus("FILLED"))
	assert.Equal(t, core.StatusCanceled, binanceStatus("CANCELED"))
	assert.Equal(t, core.StatusRejected, binanceStatus("REJECTED"))
	assert.Equal(t, core.StatusExpired, binanceStatus("EXPIRED"))
	assert.Equal(t, core.StatusNew, binanceStatus("SOMETHING_ELSE"))
}

func newBinanceFixture(t *testing.T) (*BinanceClient, *paperRecorder) {
	t.Helper()
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")
	c := NewBinanceClient("test-key", "test-secret", true, zap.NewNop())
	rec := &paperRecorder{}
	c.SetCallbacks(rec.callbacks())
	return c, rec
}

func TestBinanceBookTickerMessage(t *testing.T) {
	c, rec := newBinanceFixture(t)

	c.handleMessage([]byte(`{"stream":"btcusdt@bookTicker","data":{"u":42,"s":"BTCUSDT","b":"100.5","B":"3","a":"100.6","A":"2"}}`))

	require.Len(t, rec.ticks, 1)
	tick := rec.ticks[0]
	assert.Equal(t, core.ToPrice(100.5), tick.Bid)
	assert.EqualValues(t, 10060000000, tick.Ask)
	assert.Equal(t, core.ToQty(3), tick.BidQty)
	assert.Equal(t, core.ToQty(2), tick.AskQty)
	assert.EqualValues(t, 42, tick.Seq)
	assert.Equal(t, core.ExchangeBinance, tick.Exchange)
	assert.NotZero(t, tick.LocalTS)
	assert.True(t, tick.IsValid())
}

func TestBinanceTradeMessage(t *testing.T) {
	c, rec := newBinanceFixture(t)

	c.handleMessage([]byte(`{"stream":"btcusdt@trade","data":{"e":"trade","E":1700000000123,"s":"BTCUSDT","t":99,"p":"100.55","q":"0.25","T":1700000000120,"m":true}}`))

	require.Len(t, rec.ticks, 1)
	tick := rec.ticks[0]
	assert.EqualValues(t, 10055000000, tick.LastPrice)
	assert.Equal(t, core.ToQty(0.25), tick.LastQty)
	assert.EqualValues(t, uint64(1700000000120)*1e6, tick.ExchangeTS)
	assert.Zero(t, tick.Bid)
	assert.Zero(t, tick.Ask)
}

func TestBinanceIgnoresNoise(t *testing.T) {
	c, rec := newBinanceFixture(t)

	c.handleMessage([]byte(`{"result":null,"id":1}`))
	c.handleMessage([]byte(`{"stream":"btcusdt@depth","data":{}}`))
	c.handleMessage([]byte(`not json at all`))

	assert.Empty(t, rec.ticks)
}

func TestBinanceSubscribeBeforeConnect(t *testing.T) {
	c, _ := newBinanceFixture(t)
	sym := core.NewSymbol("BTCUSDT")

	require.NoError(t, c.SubscribeOrderBook(sym, 1))
	require.NoError(t, c.SubscribeTrades(sym))
	require.NoError(t, c.SubscribeOrderBook(sym, 1))

	c.subMu.Lock()
	defer c.subMu.Unlock()
	assert.Equal(t, []string{"btcusdt@bookTicker", "btcusdt@trade"}, c.streams)
}

func TestBinanceSendOrderSigned(t *testing.T) {
	var gotPath, gotKey, gotQuery, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-MBX-APIKEY")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"symbol":"BTCUSDT","orderId":555,"clientOrderId":"9","transactTime":1700000000000,"price":"100.5","origQty":"1","executedQty":"1","status":"FILLED","fills":[{"price":"100.5","qty":"1","tradeId":777}]}`))
	}))
	defer srv.Close()

	c, rec := newBinanceFixture(t)
	c.restURL = srv.URL

	o := core.Order{ClientID: 9, Symbol: core.NewSymbol("BTCUSDT"), Side: core.Buy,
		Type: core.Limit, TIF: core.GTC, Price: core.ToPrice(100.5), Quantity: core.ToQty(1)}
	resp := c.SendOrder(context.Background(), &o)

	require.True(t, resp.Success, resp.Error)
	assert.EqualValues(t, 555, resp.ExchangeOrderID)
	assert.EqualValues(t, 9, resp.ClientOrderID)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/v3/order", gotPath)
	assert.Equal(t, "test-key", gotKey)

	vals, err := url.ParseQuery(gotQuery)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", vals.Get("symbol"))
	assert.Equal(t, "BUY", vals.Get("side"))
	assert.Equal(t, "LIMIT", vals.Get("type"))
	assert.Equal(t, "GTC", vals.Get("timeInForce"))
	assert.Equal(t, "100.5", vals.Get("price"))
	assert.Equal(t, "1", vals.Get("quantity"))
	assert.Equal(t, "9", vals.Get("newClientOrderId"))
	assert.NotEmpty(t, vals.Get("timestamp"))

	// The signature is computed over the query as sent, minus itself.
	idx := strings.Index(gotQuery, "&signature=")
	require.Positive(t, idx)
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(gotQuery[:idx]))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), vals.Get("signature"))

	// Fills in the ack surface as synthesized events.
	require.Len(t, rec.orders, 1)
	assert.Equal(t, core.StatusFilled, rec.orders[0].Status)
	assert.Equal(t, core.ToQty(1), rec.orders[0].FilledQty)
	require.Len(t, rec.trades, 1)
	assert.EqualValues(t, 777, rec.trades[0].TradeID)
	assert.Equal(t, core.ToPrice(100.5), rec.trades[0].Price)
}

func TestBinanceSendOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	}))
	defer srv.Close()

	c, rec := newBinanceFixture(t)
	c.restURL = srv.URL

	o := core.Order{Symbol: core.NewSymbol("BTCUSDT"), Side: core.Buy, Type: core.Limit,
		TIF: core.GTC, Price: core.ToPrice(100), Quantity: core.ToQty(1)}
	resp := c.SendOrder(context.Background(), &o)

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "insufficient balance")
	assert.Empty(t, rec.orders)
}

func TestBinanceCancelOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Write([]byte(`{"symbol":"BTCUSDT","orderId":555,"clientOrderId":"9","price":"100.5","origQty":"1","executedQty":"0.25","status":"CANCELED"}`))
	}))
	defer srv.Close()

	c, rec := newBinanceFixture(t)
	c.restURL = srv.URL

	resp := c.CancelOrder(context.Background(), CancelRequest{Symbol: core.NewSymbol("BTCUSDT"), OrderID: 555})
	require.True(t, resp.Success)

	require.Len(t, rec.orders, 1)
	ev := rec.orders[0]
	assert.Equal(t, core.StatusCanceled, ev.Status)
	assert.EqualValues(t, 555, ev.ID)
	assert.EqualValues(t, 9, ev.ClientID)
	assert.Equal(t, core.ToQty(0.25), ev.FilledQty)
}

func TestBinanceMissingCredentials(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")
	c := NewBinanceClient("", "", true, zap.NewNop())

	o := core.Order{Symbol: core.NewSymbol("BTCUSDT"), Side: core.Buy, Type: core.Limit,
		Quantity: core.ToQty(1)}
	resp := c.SendOrder(context.Background(), &o)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "credentials")
}

func TestBinanceServerTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/time", r.URL.Path)
		w.Write([]byte(`{"serverTime":1700000000000}`))
	}))
	defer srv.Close()

	c, _ := newBinanceFixture(t)
	c.restURL = srv.URL

	ts, err := c.ServerTime(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, uint64(1700000000000)*1e6, ts)
}

func TestBinanceOpenOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"symbol":"BTCUSDT","orderId":1,"clientOrderId":"3","price":"99","origQty":"2","executedQty":"0.5","status":"PARTIALLY_FILLED","type":"LIMIT","side":"SELL","timeInForce":"GTC","time":1700000000000}]`))
	}))
	defer srv.Close()

	c, _ := newBinanceFixture(t)
	c.restURL = srv.URL

	orders, err := c.OpenOrders(context.Background(), core.NewSymbol("BTCUSDT"))
	require.NoError(t, err)
	require.Len(t, orders, 1)
	o := orders[0]
	assert.EqualValues(t, 1, o.ID)
	assert.EqualValues(t, 3, o.ClientID)
	assert.Equal(t, core.Sell, o.Side)
	assert.Equal(t, core.ToPrice(99), o.Price)
	assert.Equal(t, core.ToQty(0.5), o.FilledQty)
	assert.Equal(t, core.StatusPartiallyFilled, o.Status)
	assert.Equal(t, "BTCUSDT", o.Symbol.String())
}

func TestBinanceBalanceLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/account", r.URL.Path)
		w.Write([]byte(`{"balances":[{"asset":"BTC","free":"1.5","locked":"0.5"},{"asset":"USDT","free":"1000","locked":"0"}]}`))
	}))
	defer srv.Close()

	c, _ := newBinanceFixture(t)
	c.restURL = srv.URL

	b, err := c.Balance(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, "1.5", b.String())

	b, err = c.Balance(context.Background(), "DOGE")
	require.NoError(t, err)
	assert.True(t, b.IsZero())
}

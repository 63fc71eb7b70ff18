package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/quantara-io/quantara/internal/book"
	"github.com/quantara-io/quantara/internal/config"
	"github.com/quantara-io/quantara/internal/core"
	"github.com/quantara-io/quantara/internal/exchange"
	"github.com/quantara-io/quantara/internal/risk"
	_ "github.com/quantara-io/quantara/pkg/metrics"
)

type stubControls struct {
	running bool
}

func (s *stubControls) Running() bool { return s.running }
func (s *stubControls) Pause()        { s.running = false }
func (s *stubControls) Resume()       { s.running = true }

func newTestServer(t *testing.T) (*Server, *risk.Gate, *book.ConsolidatedBook, *stubControls) {
	t.Helper()
	cfg := config.Default()
	gate := risk.NewGate(risk.DefaultLimits())
	cb := book.NewConsolidatedBook(core.NewSymbol("BTCUSDT"))
	mgr := exchange.NewManager(zap.NewNop())
	ctrl := &stubControls{running: true}
	return New(cfg, gate, cb, mgr, ctrl, zap.NewNop()), gate, cb, ctrl
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	out := map[string]any{}
	if strings.Contains(w.Header().Get("Content-Type"), "json") && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestHealthz(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	w, body := doJSON(t, srv.Router(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestStatusReportsEngineState(t *testing.T) {
	srv, gate, _, ctrl := newTestServer(t)
	router := srv.Router()

	w, body := doJSON(t, router, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BTCUSDT", body["symbol"])
	assert.Equal(t, true, body["running"])
	assert.Equal(t, false, body["kill_switch"])
	assert.Equal(t, float64(0), body["open_orders"])

	ctrl.running = false
	gate.ActivateKillSwitch("test")
	_, body = doJSON(t, router, http.MethodGet, "/status", "")
	assert.Equal(t, false, body["running"])
	assert.Equal(t, true, body["kill_switch"])
}

func TestPositionsRenderHumanUnits(t *testing.T) {
	srv, gate, _, _ := newTestServer(t)
	sym := core.NewSymbol("BTCUSDT")
	gate.OnFill(sym, core.Buy, core.QtyPrecision/2, 50_000*core.PricePrecision)

	w, body := doJSON(t, srv.Router(), http.MethodGet, "/positions", "")
	require.Equal(t, http.StatusOK, w.Code)

	positions, ok := body["positions"].([]any)
	require.True(t, ok)
	require.Len(t, positions, 1)
	pos := positions[0].(map[string]any)
	assert.Equal(t, "BTCUSDT", pos["symbol"])
	assert.Equal(t, "0.5", pos["quantity"])
	assert.Equal(t, "50000", pos["avg_entry_price"])
}

func TestBookEndpoint(t *testing.T) {
	srv, _, cb, _ := newTestServer(t)
	cb.AddVenue(core.ExchangeBinance)
	cb.AddVenue(core.ExchangeKraken)
	cb.UpdateVenueBid(core.ExchangeBinance, 50_000*core.PricePrecision, core.QtyPrecision)
	cb.UpdateVenueAsk(core.ExchangeBinance, 50_010*core.PricePrecision, core.QtyPrecision)
	cb.UpdateVenueBid(core.ExchangeKraken, 49_990*core.PricePrecision, core.QtyPrecision/2)
	cb.UpdateVenueAsk(core.ExchangeKraken, 50_005*core.PricePrecision, core.QtyPrecision/2)
	router := srv.Router()

	w, body := doJSON(t, router, http.MethodGet, "/book/BTCUSDT?depth=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	nbbo := body["nbbo"].(map[string]any)
	assert.Equal(t, "50000", nbbo["bid"])
	assert.Equal(t, "50005", nbbo["ask"])
	assert.Equal(t, "BINANCE", nbbo["bid_exchange"])
	assert.Equal(t, "KRAKEN", nbbo["ask_exchange"])

	bids := body["bids"].([]any)
	require.NotEmpty(t, bids)
	top := bids[0].(map[string]any)
	assert.Equal(t, "50000", top["price"])

	w, _ = doJSON(t, router, http.MethodGet, "/book/ETHUSDT", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/book/BTCUSDT?depth=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/book/BTCUSDT?depth=999", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKillSwitchRoundTrip(t *testing.T) {
	srv, gate, _, _ := newTestServer(t)
	router := srv.Router()

	w, body := doJSON(t, router, http.MethodPost, "/killswitch", `{"active":true,"reason":"drill"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["kill_switch"])
	assert.True(t, gate.KillSwitchActive())

	w, body = doJSON(t, router, http.MethodPost, "/killswitch", `{"active":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["kill_switch"])
	assert.False(t, gate.KillSwitchActive())

	w, _ = doJSON(t, router, http.MethodPost, "/killswitch", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStrategyToggle(t *testing.T) {
	srv, _, _, ctrl := newTestServer(t)
	router := srv.Router()

	w, body := doJSON(t, router, http.MethodPost, "/strategy/disable", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["running"])
	assert.False(t, ctrl.running)

	w, body = doJSON(t, router, http.MethodPost, "/strategy/enable", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["running"])

	w, _ = doJSON(t, router, http.MethodPost, "/strategy/selfdestruct", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigDumpMasksSecrets(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	venue := srv.cfg.Exchanges["binance"]
	venue.APIKey = "super-secret-key"
	venue.APISecret = "super-secret-secret"
	srv.cfg.Exchanges["binance"] = venue

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "super-secret-key")
	assert.NotContains(t, w.Body.String(), "super-secret-secret")
	assert.Contains(t, w.Body.String(), "[redacted]")
	assert.Contains(t, w.Body.String(), "BTCUSDT")
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "quantara_quotes_generated_total")
}

func TestStartAndShutdown(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	srv.cfg.Admin.Addr = "127.0.0.1:0"

	require.NoError(t, srv.Start())
	require.NoError(t, srv.Shutdown(t.Context()))
}

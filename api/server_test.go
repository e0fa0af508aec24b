package api

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsim/mt5sim/market"
	"github.com/marketsim/mt5sim/notify"
	"github.com/marketsim/mt5sim/sim"
	"github.com/marketsim/mt5sim/store"
)

type testEnv struct {
	server *Server
	ts     *httptest.Server
	bus    *notify.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	bus := notify.NewBus()
	engine := sim.NewEngine(sim.NewPriceModel(rand.NewSource(1)), bus, sim.Params{
		Leverage:       100,
		SwapRateBuy:    -0.0001,
		SwapRateSell:   0.00005,
		CommissionRate: 0.0001,
	})

	var accounts []*sim.Account
	for _, name := range []string{"VIP", "DEMO"} {
		st, err := store.NewSQLite(filepath.Join(t.TempDir(), "trades_"+name+".db"))
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		accounts = append(accounts, sim.NewAccount(name, 10000, market.Defaults(), st))
	}

	server, err := NewServer(engine, accounts, bus, Options{
		JWTSecret:      "test-secret",
		Timezone:       "UTC",
		DefaultBalance: 10000,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return &testEnv{server: server, ts: ts, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestTokenIssuesSignedJWT(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bearer", body["token_type"])

	raw, _ := body["access_token"].(string)
	require.NotEmpty(t, raw)
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return []byte("test-secret"), nil })
	require.NoError(t, err)
	assert.True(t, tok.Valid)
}

func TestAccountListAndSwitch(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/accounts/list", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "VIP", body["current_account"])
	accounts := body["accounts"].(map[string]any)
	assert.Len(t, accounts, 2)
	vip := accounts["VIP"].(map[string]any)
	assert.Equal(t, 10000.0, vip["balance"])

	resp, body = env.do(t, http.MethodPost, "/api/switch-account", map[string]string{"account_type": "DEMO"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "VIP", body["old_account"])
	assert.Equal(t, "DEMO", body["new_account"])

	resp, _ = env.do(t, http.MethodPost, "/api/switch-account", map[string]string{"account_type": "NOPE"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/api/users/info", nil)
	assert.Equal(t, "DEMO", body["current_account"])
}

func TestInitializeAccounts(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/accounts/initialize", map[string]any{
		"accounts": map[string]float64{"VIP": 25000, "UNKNOWN": 1},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body := env.do(t, http.MethodGet, "/api/account-metrics", nil)
	assert.Equal(t, 25000.0, body["balance"])
}

func TestCurrencyPairs(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/currency-pairs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pairs := body["data"].(map[string]any)
	assert.Len(t, pairs, 8)

	cfg := market.Defaults()["EURUSD"]
	cfg.Volatility = 0.0002
	resp, _ = env.do(t, http.MethodPut, "/api/currency-pairs/EURUSD", cfg)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/api/currency-pairs", nil)
	updated := body["data"].(map[string]any)["EURUSD"].(map[string]any)
	assert.Equal(t, 0.0002, updated["volatility"])

	resp, _ = env.do(t, http.MethodPut, "/api/currency-pairs/XAUUSD", cfg)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cfg.Spread = -1
	resp, _ = env.do(t, http.MethodPut, "/api/currency-pairs/EURUSD", cfg)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBalanceDepositReset(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPut, "/api/account/balance", map[string]float64{"balance": 5000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5000.0, body["balance"])

	resp, _ = env.do(t, http.MethodPut, "/api/account/balance", map[string]float64{"balance": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/account/deposit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5300.0, body["new_balance"])

	resp, body = env.do(t, http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 10000.0, body["new_balance"])

	_, body = env.do(t, http.MethodGet, "/api/account-metrics", nil)
	assert.Equal(t, 10000.0, body["balance"])
}

func TestTradeLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/trades/start/EURUSD", map[string]any{
		"direction":     "BUY",
		"lot_size":      0.1,
		"target_type":   "PROFIT",
		"target_amount": 100,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	trade := body["trade"].(map[string]any)
	tradeID := trade["trade_id"].(string)
	require.Len(t, tradeID, 10)
	assert.Equal(t, 1.1727, trade["entry_price"])

	resp, _ = env.do(t, http.MethodPost, "/api/trades/start/EURUSD", map[string]any{"direction": "HOLD"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/api/trades/start/XAUUSD", map[string]any{"direction": "BUY"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/trades/active", nil)
	require.NoError(t, err)
	activeResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer activeResp.Body.Close()
	var active []map[string]any
	require.NoError(t, json.NewDecoder(activeResp.Body).Decode(&active))
	require.Len(t, active, 1)

	resp, _ = env.do(t, http.MethodPut, "/api/trades/"+tradeID+"/update-target", map[string]any{
		"target_type": "LOSS", "target_amount": 50,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/trades/"+tradeID+"/finish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Settled rows cannot be deleted while the trade is still active.
	resp, _ = env.do(t, http.MethodDelete, "/api/trades/"+tradeID, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/trades/"+tradeID+"/close", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	closed := body["trade"].(map[string]any)
	assert.Equal(t, "COMPLETED", closed["status"])

	resp, _ = env.do(t, http.MethodPost, "/api/trades/"+tradeID+"/close", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/api/trades/"+tradeID, nil)
	assert.Equal(t, "COMPLETED", body["status"])

	_, body = env.do(t, http.MethodGet, "/api/summary/trades", nil)
	summary := body["trades_summary"].(map[string]any)
	assert.Equal(t, 1.0, summary["total_trades"])
	assert.Equal(t, 1.0, summary["completed_trades"])
}

func TestHistoricalEditAndRecalculate(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodPost, "/api/trades/start/EURUSD", map[string]any{
		"direction": "BUY", "lot_size": 0.1, "target_type": "PROFIT", "target_amount": 100,
	})
	tradeID := body["trade"].(map[string]any)["trade_id"].(string)

	resp, _ := env.do(t, http.MethodPut, "/api/trades/"+tradeID+"/update", map[string]any{"lot_size": 0.2})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode) // still active

	_, _ = env.do(t, http.MethodPost, "/api/trades/"+tradeID+"/close", nil)

	// Move the closing price to the original target level, then rederive.
	resp, _ = env.do(t, http.MethodPut, "/api/trades/"+tradeID+"/update", map[string]any{"closing_price": 1.1827})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/trades/"+tradeID+"/recalculate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	// (1.1827-1.1727)*0.1*100000 minus the 0.1-lot commission of 1.
	assert.InDelta(t, 99.0, body["new_pnl"].(float64), 1e-6)

	resp, _ = env.do(t, http.MethodDelete, "/api/trades/"+tradeID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/trades/"+tradeID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTimezoneEndpoints(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodGet, "/api/timezone", nil)
	assert.Equal(t, "UTC", body["timezone"])
	assert.True(t, strings.HasSuffix(body["current_time"].(string), " UTC"))

	resp, body := env.do(t, http.MethodPut, "/api/timezone", map[string]string{"timezone": "Asia/Tokyo"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "UTC", body["old_timezone"])
	assert.True(t, strings.HasSuffix(body["current_time"].(string), " Asia/Tokyo"))

	resp, _ = env.do(t, http.MethodPut, "/api/timezone", map[string]string{"timezone": "Mars/Olympus"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/api/timezones/list", nil)
	assert.Equal(t, "Asia/Tokyo", body["current_timezone"])
}

func TestWebsocketDeliversEventsAndPong(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws/test-client"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connection_established", hello["type"])
	assert.Equal(t, "test-client", hello["client_id"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	evt := notify.NewEvent(notify.EventDeposit, "VIP")
	evt.Data = map[string]any{"amount": 300}
	env.bus.Publish(evt)

	// Pong and the published event both arrive; order between them is not
	// guaranteed.
	types := map[string]bool{}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 2; i++ {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		types[msg["type"].(string)] = true
	}
	assert.True(t, types["pong"])
	assert.True(t, types["deposit"])
}

// Package api is the thin HTTP layer over the simulation engine. Handlers
// decode, delegate to the engine or the account's store, and encode; no
// trading logic lives here. Times are formatted into the configured display
// timezone at this boundary only.
package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/marketsim/mt5sim/notify"
	"github.com/marketsim/mt5sim/observability"
	"github.com/marketsim/mt5sim/sim"
)

// depositAmount is the fixed credit applied by the deposit endpoint.
const depositAmount = 300.0

type Options struct {
	JWTSecret      string
	Timezone       string
	DefaultBalance float64
}

// Server multiplexes requests onto the shared account set. One account is
// "current" at a time and all account-scoped endpoints operate on it, so a
// switch applies to every subsequent request.
type Server struct {
	engine   *sim.Engine
	bus      *notify.Bus
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu       sync.Mutex
	accounts map[string]*sim.Account
	order    []string
	current  string
	tzName   string
	tz       *time.Location
}

func NewServer(engine *sim.Engine, accounts []*sim.Account, bus *notify.Bus, opts Options) (*Server, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("api: at least one account required")
	}

	tzName := opts.Timezone
	if tzName == "" {
		tzName = "UTC"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tzName, err)
	}

	s := &Server{
		engine:   engine,
		bus:      bus,
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      observability.NewLogger("api"),
		accounts: make(map[string]*sim.Account, len(accounts)),
		tzName:   tzName,
		tz:       tz,
	}
	for _, a := range accounts {
		s.accounts[a.Name()] = a
		s.order = append(s.order, a.Name())
	}
	s.current = accounts[0].Name()
	return s, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Post("/token", s.handleToken)
	r.Get("/ws/{client_id}", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/accounts/initialize", s.handleInitializeAccounts)
		r.Get("/accounts/list", s.handleListAccounts)
		r.Post("/switch-account", s.handleSwitchAccount)
		r.Get("/users/info", s.handleUserInfo)

		r.Get("/timezone", s.handleGetTimezone)
		r.Put("/timezone", s.handleSetTimezone)
		r.Get("/timezones/list", s.handleListTimezones)

		r.Get("/currency-pairs", s.handleGetCurrencyPairs)
		r.Put("/currency-pairs/{symbol}", s.handleUpdateCurrencyPair)

		r.Get("/account-metrics", s.handleAccountMetrics)
		r.Put("/account/balance", s.handleSetBalance)
		r.Post("/account/deposit", s.handleDeposit)
		r.Post("/reset", s.handleReset)

		r.Get("/summary/trades", s.handleTradesSummary)
		r.Get("/summary/account", s.handleAccountSummary)

		r.Route("/trades", func(r chi.Router) {
			r.Get("/active", s.handleActiveTrades)
			r.Get("/historical", s.handleHistoricalTrades)
			r.Post("/start/{symbol}", s.handleStartTrade)
			r.Get("/{trade_id}", s.handleGetTrade)
			r.Put("/{trade_id}/update-target", s.handleUpdateTarget)
			r.Post("/{trade_id}/finish", s.handleFinishTrade)
			r.Post("/{trade_id}/close", s.handleCloseTrade)
			r.Put("/{trade_id}/update", s.handleUpdateHistorical)
			r.Post("/{trade_id}/recalculate", s.handleRecalculate)
			r.Delete("/{trade_id}", s.handleDeleteTrade)
		})
	})

	return r
}

// currentAccount resolves the account all scoped endpoints act on.
func (s *Server) currentAccount() *sim.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[s.current]
}

func (s *Server) currentName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// formatTime renders an instant in the display timezone with the zone name
// suffix. Storage and the engine stay zone-free; only responses and event
// timestamps pass through here.
func (s *Server) formatTime(t time.Time) string {
	s.mu.Lock()
	tz, name := s.tz, s.tzName
	s.mu.Unlock()
	return t.In(tz).Format("2006-01-02 15:04:05") + " " + name
}

func (s *Server) now() string {
	return s.formatTime(time.Now().UTC())
}

// Package api provides the HTTP API for observing and playing a session.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token and are rate limited per client.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/tradewinds/internal/engine"
	"github.com/talgya/tradewinds/internal/metrics"
	"github.com/talgya/tradewinds/internal/persistence"
)

const (
	maxSSEConns   = 4
	maxAdvance    = 52
	subscriberBuf = 16
)

// Server serves the session over HTTP.
type Server struct {
	Sim         *engine.Simulation
	Eng         *engine.Engine
	DB          *persistence.DB
	Metrics     *metrics.Registry
	Port        int
	AdminKey    string // Bearer token for POST endpoints. Empty = POST disabled.
	CORSOrigins []string

	// Requests per minute per client on POST endpoints. 0 = 60.
	RateLimit int

	sseConns int32

	subMu   sync.Mutex
	nextSub int
	subs    map[int]chan engine.WeekReport
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	rate := s.RateLimit
	if rate <= 0 {
		rate = 60
	}
	limiter := NewRateLimiter(rate, time.Minute)
	post := func(h http.HandlerFunc) http.HandlerFunc {
		return RateLimitMiddleware(limiter, s.adminOnly(h))
	}

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/prices", s.handlePrices)
	mux.HandleFunc("/api/v1/prices/history", s.handlePriceHistory)
	mux.HandleFunc("/api/v1/location", s.handleLocation)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/pending", s.handlePending)
	mux.HandleFunc("/api/v1/modifiers", s.handleModifiers)
	mux.HandleFunc("/api/v1/runtime", s.handleRuntime)
	mux.HandleFunc("/api/v1/stream", s.handleStream)
	mux.Handle("/metrics", s.Metrics.Handler())

	// Admin endpoints.
	mux.HandleFunc("/api/v1/engine", post(s.handleEngine))
	mux.HandleFunc("/api/v1/advance", post(s.handleAdvance))
	mux.HandleFunc("/api/v1/travel", post(s.handleTravel))
	mux.HandleFunc("/api/v1/resolve", post(s.handleResolve))
	mux.HandleFunc("/api/v1/buy", post(s.handleTrade(s.Sim.Buy)))
	mux.HandleFunc("/api/v1/sell", post(s.handleTrade(s.Sim.Sell)))
	mux.HandleFunc("/api/v1/snapshot", post(s.handleSnapshot))

	return corsMiddleware(s.CORSOrigins, mux)
}

// Start begins serving the HTTP API in a goroutine. The returned server can
// be shut down by the caller.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires POST with a valid bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no TRADESIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.State()
	status := map[string]any{
		"name":       "Tradewinds",
		"game_id":    s.Sim.ID,
		"week":       st.Week,
		"max_weeks":  st.MaxWeeks,
		"stage":      st.Stage(),
		"difficulty": st.Difficulty,
		"location":   st.LocationID(),
		"money":      st.Player.Money,
		"debt":       st.Player.Debt,
		"deposit":    st.Player.Deposit,
		"capacity":   st.Player.Capacity,
		"used":       st.Player.InventoryUsed(st.Market.Products),
		"net_worth":  st.Player.NetWorth(st.Market),
		"inventory":  st.Player.Inventory,
		"attributes": st.Player.Attributes,
		"outcome":    s.Sim.Outcome(),
	}
	if s.Eng != nil {
		status["engine"] = s.Eng.Status()
	}
	if def, ok := s.Sim.Pending(); ok {
		status["pending_event"] = def.ID
	}
	writeJSON(w, status)
}

// handlePrices returns the listing at the current location, or the
// canonical market prices with ?canonical=true.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	if canonical, _ := strconv.ParseBool(r.URL.Query().Get("canonical")); canonical {
		writeJSON(w, s.Sim.Prices())
		return
	}
	writeJSON(w, s.Sim.Listing())
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	product := r.URL.Query().Get("product")
	if product == "" {
		http.Error(w, "product is required", http.StatusBadRequest)
		return
	}
	rows, err := s.DB.PriceHistory(s.Sim.ID, product)
	if err != nil {
		slog.Error("price history query failed", "product", product, "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, rows)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.State()
	current, _ := st.Market.CurrentLocation()
	writeJSON(w, map[string]any{
		"current":   current,
		"locations": st.Market.Locations,
		"visited":   s.Sim.Visited(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	log := s.Sim.Log(limit)
	if len(log) < limit && s.DB != nil {
		// Entries dropped from memory are still in the saved game log.
		before := s.Sim.OldestLogSeq()
		if before > 1 {
			older, err := s.DB.RecentLog(s.Sim.ID, before, limit-len(log))
			if err != nil {
				slog.Warn("stored game log unavailable", "error", err)
			}
			merged := make([]engine.Event, 0, len(older)+len(log))
			for i := len(older) - 1; i >= 0; i-- {
				merged = append(merged, older[i])
			}
			log = append(merged, log...)
		}
	}

	// Optional category filter.
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := make([]engine.Event, 0, len(log))
		for _, e := range log {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		log = filtered
	}
	writeJSON(w, log)
}

// handlePending returns the event awaiting a choice and the indices of the
// options the player may pick.
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	def, ok := s.Sim.Pending()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, map[string]any{
		"event":     def,
		"available": def.AvailableOptions(s.Sim.State()),
	})
}

func (s *Server) handleModifiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"week":      s.Sim.Week(),
		"modifiers": s.Sim.ActiveModifiers(),
		"effects":   s.Sim.ActiveEffects(),
	})
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.EventRuntime())
}

func (s *Server) handleEngine(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	var err error
	switch req.Action {
	case "start":
		err = s.Eng.Start()
	case "pause":
		err = s.Eng.Pause()
	case "resume":
		err = s.Eng.Resume()
	default:
		http.Error(w, "action must be start, pause, or resume", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]any{"status": s.Eng.Status()})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
		return
	}
	req := struct {
		Weeks int `json:"weeks"`
	}{Weeks: 1}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	if req.Weeks < 1 || req.Weeks > maxAdvance {
		http.Error(w, fmt.Sprintf("weeks must be 1-%d", maxAdvance), http.StatusBadRequest)
		return
	}

	reports := make([]engine.WeekReport, 0, req.Weeks)
	for i := 0; i < req.Weeks; i++ {
		report, err := s.Eng.AdvanceWeek(r.Context())
		if err != nil {
			if len(reports) == 0 {
				writeError(w, err)
				return
			}
			break
		}
		reports = append(reports, report)
		if report.Outcome != engine.OutcomeNone || report.Event != nil {
			break
		}
	}
	writeJSON(w, reports)
}

func (s *Server) handleTravel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Location == "" {
		http.Error(w, "location is required", http.StatusBadRequest)
		return
	}
	report, err := s.Sim.ChangeLocation(req.Location)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, report)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Option *int `json:"option"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Option == nil {
		http.Error(w, "option is required", http.StatusBadRequest)
		return
	}
	res, err := s.Sim.ResolveEvent(*req.Option)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleTrade(trade func(string, int) (engine.TradeReceipt, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Product  string `json:"product"`
			Quantity int    `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Product == "" {
			http.Error(w, "product and quantity are required", http.StatusBadRequest)
			return
		}
		receipt, err := trade(req.Product, req.Quantity)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, receipt)
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	snap := s.Sim.Snapshot()
	if err := s.DB.SaveSnapshot(snap); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"game_id": snap.GameID,
		"week":    snap.Week,
		"message": "snapshot saved",
	})
}

// Broadcast sends a week report to every stream subscriber. Slow
// subscribers miss reports rather than block the clock.
func (s *Server) Broadcast(report engine.WeekReport) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- report:
		default:
			slog.Warn("stream subscriber lagging, report dropped", "sub_id", id, "week", report.Week)
		}
	}
}

func (s *Server) subscribe() (int, <-chan engine.WeekReport) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]chan engine.WeekReport)
	}
	s.nextSub++
	ch := make(chan engine.WeekReport, subscriberBuf)
	s.subs[s.nextSub] = ch
	return s.nextSub, ch
}

func (s *Server) unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.subs, id)
}

// handleStream streams week reports as server-sent events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	// Connection limit.
	current := atomic.AddInt32(&s.sseConns, 1)
	if current > maxSSEConns {
		atomic.AddInt32(&s.sseConns, -1)
		http.Error(w, "too many SSE connections", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.sseConns, -1)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	subID, ch := s.subscribe()
	defer s.unsubscribe(subID)

	// Catch-up: the last few log entries.
	for _, e := range s.Sim.Log(20) {
		writeSSE(w, "log", e)
	}
	flusher.Flush()
	slog.Info("SSE client connected", "sub_id", subID)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case report := <-ch:
			writeSSE(w, "week", report)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			slog.Info("SSE client disconnected", "sub_id", subID)
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// writeError maps simulation errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnknownLocation), errors.Is(err, engine.ErrUnknownProduct):
		code = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidOption), errors.Is(err, engine.ErrTrade):
		code = http.StatusBadRequest
	case errors.Is(err, engine.ErrGameOver), errors.Is(err, engine.ErrNotRunning),
		errors.Is(err, engine.ErrNoPendingEvent):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

package monitor

import (
	"context"
	_ "embed"
	"encoding/json"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/logger"
	"codeberg.org/mutker/smartinfra/internal/metrics"
	"codeberg.org/mutker/smartinfra/internal/system"
	"github.com/gorilla/websocket"
)

const (
	ServiceName = "System Monitor"

	writeWait       = 5 * time.Second
	shutdownTimeout = 5 * time.Second
	refreshTimeout  = 10 * time.Second
)

//go:embed templates/dashboard.html
var dashboardHTML string

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Dashboard serves the poller's snapshots over HTTP and a websocket feed.
type Dashboard struct {
	poller  *Poller
	history metrics.Collector
	host    func() system.HostInfo
	logger  logger.Logger
	mux     *http.ServeMux
	tmpl    *template.Template

	clientsMu sync.Mutex
	clients   map[*client]struct{}
}

// client serializes writes to one websocket connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

type DashboardOption func(*Dashboard)

// WithHostInfo replaces the host details source used by /api/system.
func WithHostInfo(fn func() system.HostInfo) DashboardOption {
	return func(d *Dashboard) { d.host = fn }
}

func NewDashboard(poller *Poller, history metrics.Collector, log logger.Logger, opts ...DashboardOption) *Dashboard {
	if history == nil {
		history = metrics.Noop()
	}

	funcMap := template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "never"
			}
			return t.Local().Format("15:04:05")
		},
		"toJSON": toJSON,
	}

	d := &Dashboard{
		poller:  poller,
		history: history,
		host:    system.ReadHostInfo,
		logger:  log,
		mux:     http.NewServeMux(),
		tmpl:    template.Must(template.New("dashboard").Funcs(funcMap).Parse(dashboardHTML)),
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.routes()
	return d
}

func (d *Dashboard) routes() {
	d.mux.HandleFunc("GET /{$}", d.handlePage)
	d.mux.HandleFunc("GET /healthz", d.handleHealthz)
	d.mux.HandleFunc("GET /ws", d.handleWebSocket)
	d.mux.HandleFunc("GET /api/snapshot", d.handleSnapshot)
	d.mux.HandleFunc("POST /api/refresh", d.handleRefresh)
	d.mux.HandleFunc("POST /api/auto-refresh", d.handleAutoRefresh)
	d.mux.HandleFunc("GET /api/system", d.handleSystem)
	d.mux.HandleFunc("GET /api/history", d.handleHistory)
}

func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mux.ServeHTTP(w, r)
}

// Run serves on addr and pushes every new snapshot to websocket clients
// until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.New().Wrap(errors.ErrServeFailed, err)
	}
	return d.Serve(ctx, ln)
}

func (d *Dashboard) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           d,
		ReadHeaderTimeout: 10 * time.Second,
	}

	updates, unsubscribe := d.poller.Subscribe()
	defer unsubscribe()

	broadcastDone := make(chan struct{})
	go func() {
		defer close(broadcastDone)
		d.broadcastLoop(ctx, updates)
	}()

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info().Str("addr", ln.Addr().String()).Msgf("%s listening", ServiceName)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.New().Wrap(errors.ErrServeFailed, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not closed by Shutdown.
	d.closeClients()
	err := srv.Shutdown(shutdownCtx)
	<-broadcastDone
	if err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	d.logger.Info().Msgf("%s stopped", ServiceName)
	return nil
}

func (d *Dashboard) broadcastLoop(ctx context.Context, updates <-chan Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-updates:
			d.broadcast(Message{Type: "update", Data: snap})
		}
	}
}

func (d *Dashboard) broadcast(msg Message) {
	d.clientsMu.Lock()
	clients := make([]*client, 0, len(d.clients))
	for c := range d.clients {
		clients = append(clients, c)
	}
	d.clientsMu.Unlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			d.logger.Debug().Err(err).Msg("Dropping websocket client")
			d.removeClient(c)
		}
	}
}

func (d *Dashboard) addClient(c *client) {
	d.clientsMu.Lock()
	d.clients[c] = struct{}{}
	d.clientsMu.Unlock()
}

func (d *Dashboard) removeClient(c *client) {
	d.clientsMu.Lock()
	_, ok := d.clients[c]
	delete(d.clients, c)
	d.clientsMu.Unlock()
	if ok {
		c.conn.Close()
	}
}

func (d *Dashboard) closeClients() {
	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()
	for c := range d.clients {
		c.conn.Close()
		delete(d.clients, c)
	}
}

// ClientCount reports connected websocket clients.
func (d *Dashboard) ClientCount() int {
	d.clientsMu.Lock()
	defer d.clientsMu.Unlock()
	return len(d.clients)
}

func (d *Dashboard) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	snap, err := d.current(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	defer d.removeClient(c)

	// Hold the write lock so no update overtakes the init message.
	c.mu.Lock()
	d.addClient(c)
	err = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err == nil {
		err = conn.WriteJSON(Message{Type: "init", Data: snap})
	}
	c.mu.Unlock()
	if err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// current returns the latest snapshot, collecting one if none exists yet.
func (d *Dashboard) current(ctx context.Context) (Snapshot, error) {
	if snap, ok := d.poller.Latest(); ok {
		return snap, nil
	}
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	return d.poller.Refresh(ctx)
}

func (d *Dashboard) handlePage(w http.ResponseWriter, r *http.Request) {
	snap, err := d.current(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	data := map[string]any{
		"Title":       ServiceName,
		"Snapshot":    snap,
		"AutoRefresh": d.poller.AutoRefresh(),
		"Interval":    d.poller.Interval().Seconds(),
		"LastRefresh": d.poller.LastRefresh(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := d.tmpl.Execute(w, data); err != nil {
		d.logger.Error().Err(err).Msg("Render failed")
	}
}

func (d *Dashboard) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":       "ok",
		"auto_refresh": d.poller.AutoRefresh(),
		"clients":      d.ClientCount(),
	}
	if last := d.poller.LastRefresh(); !last.IsZero() {
		resp["last_refresh"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (d *Dashboard) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := d.current(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (d *Dashboard) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()

	snap, err := d.poller.Refresh(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (d *Dashboard) handleAutoRefresh(w http.ResponseWriter, r *http.Request) {
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "enabled must be a boolean")
		return
	}
	d.poller.SetAutoRefresh(enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"auto_refresh": enabled})
}

func (d *Dashboard) handleSystem(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, d.host())
}

func (d *Dashboard) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := metrics.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}

	history, err := d.history.Recent(r.Context(), limit)
	if err != nil {
		d.logger.Error().Err(err).Msg("History query failed")
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": history})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func toJSON(v any) template.JS {
	b, _ := json.Marshal(v)
	return template.JS(b)
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guidoenr/fantasia/internal/config"
	"github.com/guidoenr/fantasia/internal/override"
	"github.com/guidoenr/fantasia/internal/params"
	"github.com/guidoenr/fantasia/internal/remote"
	"github.com/guidoenr/fantasia/internal/schedule"
)

const (
	commandTimeout = 2 * time.Second
	statusInterval = 500 * time.Millisecond
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
)

// TableSource exposes the live meeting table.
type TableSource interface {
	Table() config.Table
}

// Options configures the server.
type Options struct {
	SavePath string
	Log      *log.Logger
	Now      func() time.Time
}

type Server struct {
	mu        sync.RWMutex
	board     *remote.Board
	tables    TableSource
	cmds      chan<- remote.Command
	opts      Options
	clients   map[*websocketClient]bool
	broadcast chan []byte
	upgrader  websocket.Upgrader
}

type websocketClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// ConfigEntry is one row of /api/configs.
type ConfigEntry struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Type      config.MeetingType `json:"type"`
	Forceable bool               `json:"forceable"`
	Active    bool               `json:"active"`
	NextStart *time.Time         `json:"nextStart,omitempty"`
}

// ForceRequest is the body of POST /api/force.
type ForceRequest struct {
	ID      string  `json:"id"`
	Minutes float64 `json:"minutes"`
}

// EffectsRequest is a partial update of the effects settings.
type EffectsRequest struct {
	Enabled   *bool    `json:"enabled,omitempty"`
	Intensity *float64 `json:"intensity,omitempty"`
}

type VolumeRequest struct {
	Volume *float64 `json:"volume"`
}

type MessageRequest struct {
	Text string `json:"text"`
}

// SavedSettings is what /api/save writes and LoadSettings reads back.
type SavedSettings struct {
	Volume  float64        `json:"volume"`
	Effects params.Effects `json:"effects"`
}

func NewServer(board *remote.Board, tables TableSource, cmds chan<- remote.Command, opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SavePath == "" {
		opts.SavePath = DefaultSavePath()
	}
	return &Server{
		board:     board,
		tables:    tables,
		cmds:      cmds,
		opts:      opts,
		clients:   make(map[*websocketClient]bool),
		broadcast: make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/configs", s.handleConfigs)
	mux.HandleFunc("/api/force", s.handleForce)
	mux.HandleFunc("/api/effects", s.handleEffects)
	mux.HandleFunc("/api/volume", s.handleVolume)
	mux.HandleFunc("/api/message", s.handleMessage)
	mux.HandleFunc("/api/save", s.handleSave)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start serves on port until ctx is done.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	s.logf("[web] server starting on http://0.0.0.0%s", addr)

	go s.broadcastLoop(ctx)
	go s.statusUpdateLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// submit hands cmd to the frame loop and waits for it to be applied.
func (s *Server) submit(ctx context.Context, cmd remote.Command) error {
	cmd.Reply = make(chan error, 1)
	timer := time.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case s.cmds <- cmd:
	case <-timer.C:
		return errBusy
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.Reply:
		return err
	case <-timer.C:
		return errBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

var errBusy = errors.New("frame loop did not answer in time")

func commandStatus(err error) int {
	switch {
	case errors.Is(err, errBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, override.ErrNotForceable), errors.Is(err, override.ErrInvalidDuration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.board.Get())
}

func (s *Server) handleConfigs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	now := s.opts.Now()
	table := s.tables.Table()
	entries := make([]ConfigEntry, 0, len(table))
	for _, m := range table {
		e := ConfigEntry{
			ID:        m.ID,
			Name:      m.Name,
			Type:      m.Type,
			Forceable: m.Type != config.TypeDaily,
			Active:    schedule.IsInTimeSlot(m.Schedule, now),
		}
		if next, ok := schedule.NextStart(m.Schedule, now); ok {
			e.NextStart = &next
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleForce(w http.ResponseWriter, r *http.Request) {
	var cmd remote.Command
	switch r.Method {
	case http.MethodPost:
		var req ForceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.ID == "" {
			writeError(w, http.StatusBadRequest, errors.New("id is required"))
			return
		}
		d := override.DefaultDuration
		if req.Minutes > 0 {
			d = time.Duration(req.Minutes * float64(time.Minute))
		}
		cmd = remote.Command{Kind: remote.CmdForce, ID: req.ID, Duration: d}
	case http.MethodDelete:
		cmd = remote.Command{Kind: remote.CmdClear}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.submit(r.Context(), cmd); err != nil {
		writeError(w, commandStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEffects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.board.Get().Effects)
		return
	case http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EffectsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// partial update over the current state
	current := s.board.Get().Effects
	cmd := remote.Command{Kind: remote.CmdEffects, Enabled: current.Enabled, Intensity: current.Intensity}
	if req.Enabled != nil {
		cmd.Enabled = *req.Enabled
	}
	if req.Intensity != nil {
		cmd.Intensity = *req.Intensity
	}
	if err := s.submit(r.Context(), cmd); err != nil {
		writeError(w, commandStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req VolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Volume == nil {
		writeError(w, http.StatusBadRequest, errors.New("volume is required"))
		return
	}
	if err := s.submit(r.Context(), remote.Command{Kind: remote.CmdVolume, Volume: *req.Volume}); err != nil {
		writeError(w, commandStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var cmd remote.Command
	switch r.Method {
	case http.MethodPost:
		var req MessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cmd = remote.Command{Kind: remote.CmdMessage, Text: req.Text}
	case http.MethodDelete:
		cmd = remote.Command{Kind: remote.CmdMessage}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.submit(r.Context(), cmd); err != nil {
		writeError(w, commandStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.board.Get()
	saved := SavedSettings{Volume: st.Volume, Effects: st.Effects}
	if err := SaveSettings(s.opts.SavePath, saved); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to save settings: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved", "path": s.opts.SavePath})
}

// DefaultSavePath returns where /api/save writes settings.
func DefaultSavePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "fantasia", "settings.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fantasia-settings.json")
}

// SaveSettings writes s as indented JSON, creating the parent directory.
func SaveSettings(path string, s SavedSettings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSettings reads settings written by SaveSettings.
func LoadSettings(path string) (*SavedSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s SavedSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &s, nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("[web] websocket upgrade error: %v", err)
		return
	}

	client := &websocketClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	if data, err := json.Marshal(s.board.Get()); err == nil {
		client.send <- data
	}

	go client.writePump()
	go client.readPump()
}

func (s *Server) removeClient(c *websocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.broadcast:
			s.mu.Lock()
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(s.clients, client)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Server) statusUpdateLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		data, err := json.Marshal(s.board.Get())
		if err != nil {
			continue
		}
		select {
		case s.broadcast <- data:
		default:
			// drop if channel full
		}
	}
}

func (c *websocketClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *websocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.opts.Log != nil {
		s.opts.Log.Printf(format, args...)
	}
}

package trainer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/yogguru/trainer/internal/catalog"
	"github.com/yogguru/trainer/internal/detector"
	"github.com/yogguru/trainer/internal/domain"
	"github.com/yogguru/trainer/internal/feedback"
	"github.com/yogguru/trainer/internal/identity"
	"github.com/yogguru/trainer/internal/posture"
	"github.com/yogguru/trainer/internal/session"
	"github.com/yogguru/trainer/internal/speech"
	"github.com/yogguru/trainer/internal/store"
)

const (
	outboxSize   = 64
	writeTimeout = 5 * time.Second
	readLimit    = 64 << 10
)

// Client message types.
const (
	msgStart      = "start"
	msgPause      = "pause"
	msgResume     = "resume"
	msgStop       = "stop"
	msgSelectPose = "select_pose"
	msgLanguage   = "language"
	msgMute       = "mute"
	msgLandmarks  = "landmarks"
	msgAngles     = "angles"
	msgPing       = "ping"
)

// Server message types.
const (
	msgState   = "state"
	msgVerdict = "verdict"
	msgSpeech  = "speech"
	msgError   = "error"
	msgPong    = "pong"
)

// Metrics receives connection and gate events.
type Metrics interface {
	session.Metrics
	ConnectionOpened()
	ConnectionClosed()
}

// SpeakerFactory builds an extra speaker for a user, such as a studio
// smart speaker. It may return nil.
type SpeakerFactory func(userID string) speech.Speaker

// Config holds per-connection gate settings.
type Config struct {
	Cooldown       time.Duration
	RequestTimeout time.Duration
}

// wsMessage is a message from the browser.
type wsMessage struct {
	Type      string             `json:"type"`
	PoseID    string             `json:"pose_id,omitempty"`
	Language  domain.Language    `json:"language,omitempty"`
	Muted     bool               `json:"muted,omitempty"`
	Landmarks domain.LandmarkSet `json:"landmarks,omitempty"`
	Angles    domain.AngleMap    `json:"angles,omitempty"`
}

// verdictMessage is the verdict payload sent to the browser.
type verdictMessage struct {
	domain.Verdict
	RunID    string `json:"run_id"`
	PoseID   string `json:"pose_id"`
	Fallback bool   `json:"fallback"`
}

// serverMessage is a message to the browser.
type serverMessage struct {
	Type    string            `json:"type"`
	State   *session.Snapshot `json:"state,omitempty"`
	Verdict *verdictMessage   `json:"verdict,omitempty"`
	Speech  *speech.Command   `json:"speech,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// WebSocketHandler serves live trainer sessions.
type WebSocketHandler struct {
	repo          store.Repository
	catalog       *catalog.Catalog
	feedback      feedback.Service
	sm            *SessionManager
	cfg           Config
	metrics       Metrics
	speakers      SpeakerFactory
	allowedOrigin string
	isDev         bool
	logger        *slog.Logger
}

// NewWebSocketHandler creates a new trainer websocket handler.
func NewWebSocketHandler(repo store.Repository, cat *catalog.Catalog, svc feedback.Service, sm *SessionManager, cfg Config, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		repo:          repo,
		catalog:       cat,
		feedback:      svc,
		sm:            sm,
		cfg:           cfg,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		logger:        slog.Default(),
	}
}

// SetMetrics sets the metrics sink.
func (h *WebSocketHandler) SetMetrics(m Metrics) {
	h.metrics = m
}

// SetSpeakerFactory adds a per-user speaker alongside the browser voice.
func (h *WebSocketHandler) SetSpeakerFactory(f SpeakerFactory) {
	h.speakers = f
}

// SetLogger sets the handler logger.
func (h *WebSocketHandler) SetLogger(l *slog.Logger) {
	if l != nil {
		h.logger = l
	}
}

// connection is the state of one trainer websocket.
type connection struct {
	userID string
	ws     *websocket.Conn
	outbox chan serverMessage
	logger *slog.Logger
}

// send queues a message for the browser without blocking. Messages are
// dropped when the browser does not keep up.
func (c *connection) send(msg serverMessage) {
	select {
	case c.outbox <- msg:
	default:
		c.logger.Warn("[TRAINER] Outbox full, dropping message", "type", msg.Type, "user_id", c.userID)
	}
}

func (c *connection) sendError(err error) {
	c.send(serverMessage{Type: msgError, Error: err.Error()})
}

func (c *connection) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.outbox:
			if err := c.write(ctx, msg); err != nil {
				if ctx.Err() == nil {
					c.logger.Debug("WebSocket write error", "error", err, "user_id", c.userID)
				}
				return
			}
		}
	}
}

func (c *connection) write(ctx context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(writeCtx, websocket.MessageText, data)
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	logger := h.logger.With("user_id", userID)
	logger.Info("Trainer connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error("Failed to accept WebSocket", "error", err)
		return
	}
	ws.SetReadLimit(readLimit)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	h.sm.Register(userID, ws)
	defer h.sm.Unregister(userID, ws)

	if h.metrics != nil {
		h.metrics.ConnectionOpened()
		defer h.metrics.ConnectionClosed()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn := &connection{
		userID: userID,
		ws:     ws,
		outbox: make(chan serverMessage, outboxSize),
		logger: logger,
	}

	history := NewHistoryWriter(h.repo, userID, logger)
	defer history.Close()

	gate, err := h.newGate(conn, history, logger)
	if err != nil {
		logger.Error("Failed to create session gate", "error", err)
		_ = conn.write(ctx, serverMessage{Type: msgError, Error: err.Error()})
		return
	}

	det := detector.NewRemote()
	det.OnFrame(func(set domain.LandmarkSet) {
		angles, ok := posture.ComputeAngles(set)
		if !ok {
			return
		}
		gate.Submit(angles)
	})
	if err := det.Initialize(ctx); err != nil {
		logger.Error("Failed to initialize detector", "error", err)
		gate.Close()
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		conn.writeLoop(ctx)
	}()

	if snap, err := gate.Snapshot(); err == nil {
		conn.send(serverMessage{Type: msgState, State: &snap})
	}

	h.readLoop(ctx, conn, gate, det)

	// Stopping an active run persists its summary before the history writer flushes.
	_ = det.Dispose()
	gate.Close()
	cancel()
	wg.Wait()
	logger.Info("Trainer session ended")
}

func (h *WebSocketHandler) newGate(conn *connection, history *HistoryWriter, logger *slog.Logger) (*session.Gate, error) {
	var speaker session.Speaker = speech.NewPush(func(cmd speech.Command) {
		conn.send(serverMessage{Type: msgSpeech, Speech: &cmd})
	})
	if h.speakers != nil {
		if extra := h.speakers(conn.userID); extra != nil {
			speaker = speech.Fanout{speaker, extra}
		}
	}

	observers := session.Observers{
		OnStart: history.RunStarted,
		OnState: func(snap session.Snapshot) {
			conn.send(serverMessage{Type: msgState, State: &snap})
		},
		OnVerdict: func(ev session.VerdictEvent) {
			history.VerdictApplied(ev)
			conn.send(serverMessage{Type: msgVerdict, Verdict: &verdictMessage{
				Verdict:  ev.Verdict,
				RunID:    ev.RunID,
				PoseID:   ev.PoseID,
				Fallback: ev.Fallback,
			}})
		},
		OnStop: history.RunStopped,
	}

	opts := []session.Option{
		session.WithObservers(observers),
		session.WithLogger(logger),
	}
	if h.metrics != nil {
		opts = append(opts, session.WithMetrics(h.metrics))
	}

	cfg := session.Config{
		UserID:         conn.userID,
		Cooldown:       h.cfg.Cooldown,
		RequestTimeout: h.cfg.RequestTimeout,
	}
	return session.NewGate(cfg, h.catalog.Default(), h.feedback, speaker, opts...)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

//nolint:gocognit // Message dispatch maps every client message onto the gate.
func (h *WebSocketHandler) readLoop(ctx context.Context, conn *connection, gate *session.Gate, det *detector.Remote) {
	var lastSeen time.Time
	for {
		_, data, err := conn.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				conn.logger.Debug("WebSocket closed", "error", err)
			} else {
				conn.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.send(serverMessage{Type: msgError, Error: "invalid message"})
			continue
		}

		if time.Since(lastSeen) > time.Minute {
			lastSeen = time.Now()
			h.touch(conn.userID, conn.logger)
		}

		switch msg.Type {
		case msgLandmarks:
			det.Push(msg.Landmarks)
			continue
		case msgAngles:
			if !validAngles(msg.Angles) {
				conn.send(serverMessage{Type: msgError, Error: "angles must include shoulder, hip and knee in [0, 180]"})
				continue
			}
			gate.Submit(msg.Angles)
			continue
		case msgPing:
			conn.send(serverMessage{Type: msgPong})
			continue
		}

		if err := h.dispatch(conn, gate, msg); err != nil {
			if errors.Is(err, session.ErrClosed) {
				return
			}
			conn.sendError(err)
		}
	}
}

func (h *WebSocketHandler) dispatch(conn *connection, gate *session.Gate, msg wsMessage) error {
	switch msg.Type {
	case msgStart:
		return gate.Start()
	case msgPause:
		return gate.Pause()
	case msgResume:
		return gate.Resume()
	case msgStop:
		return gate.Stop()
	case msgSelectPose:
		pose, err := h.catalog.Get(msg.PoseID)
		if err != nil {
			return err
		}
		conn.logger.Info("Pose selected", "pose_id", pose.ID)
		return gate.SelectPose(pose)
	case msgLanguage:
		return gate.SetLanguage(msg.Language)
	case msgMute:
		return gate.SetMuted(msg.Muted)
	default:
		return errors.New("unknown message type: " + msg.Type)
	}
}

// touch updates last seen asynchronously with timeout.
func (h *WebSocketHandler) touch(userID string, logger *slog.Logger) {
	go func() {
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.repo.UpdateLastSeen(updateCtx, userID, time.Now()); err != nil {
			logger.Warn("Failed to update last seen", "error", err)
		}
	}()
}

func validAngles(angles domain.AngleMap) bool {
	for _, j := range domain.Joints {
		v, ok := angles[j]
		if !ok || v < 0 || v > 180 {
			return false
		}
	}
	return true
}

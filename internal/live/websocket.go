package live

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/for-the-record/internal/agent"
	"github.com/ashureev/for-the-record/internal/domain"
	"github.com/ashureev/for-the-record/internal/identity"
	"github.com/ashureev/for-the-record/internal/session"
	"github.com/ashureev/for-the-record/internal/speech"
)

const writeTimeout = 10 * time.Second

// Metrics is what the live bridge reports to.
type Metrics interface {
	session.Metrics
	speech.FallbackRecorder
}

// LastSeenUpdater records user activity.
type LastSeenUpdater interface {
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error
}

// HandlerConfig configures the live session endpoint.
type HandlerConfig struct {
	AllowedOrigin   string
	IsDev           bool
	ConverseTimeout time.Duration
	PlaybackTimeout time.Duration
}

// WebSocketHandler serves GET /ws/session. Each connection owns one session.Machine.
type WebSocketHandler struct {
	stories   session.StoryStore
	users     LastSeenUpdater
	sm        *Manager
	converser session.Converser
	synth     speech.Synthesizer
	metrics   Metrics
	convLog   agent.ConversationLogger
	cfg       HandlerConfig
	logger    *slog.Logger
}

// NewWebSocketHandler creates the live session handler. synth, metrics and
// convLog may be nil.
func NewWebSocketHandler(stories session.StoryStore, users LastSeenUpdater, sm *Manager, converser session.Converser,
	synth speech.Synthesizer, metrics Metrics, convLog agent.ConversationLogger, cfg HandlerConfig, logger *slog.Logger,
) *WebSocketHandler {
	if convLog == nil {
		convLog = agent.NoopConversationLogger()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		stories:   stories,
		users:     users,
		sm:        sm,
		converser: converser,
		synth:     synth,
		metrics:   metrics,
		convLog:   convLog,
		cfg:       cfg,
		logger:    logger,
	}
}

// connection is one accepted WebSocket.
type connection struct {
	ws *websocket.Conn

	closeOnce sync.Once

	// latest holds the newest unsent snapshot; wake signals the writer.
	mu     sync.Mutex
	latest *session.Snapshot
	wake   chan struct{}
}

func newConnection(ws *websocket.Conn) *connection {
	return &connection{ws: ws, wake: make(chan struct{}, 1)}
}

// SendJSON writes a text frame.
func (c *connection) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// SendBinary writes a binary frame.
func (c *connection) SendBinary(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageBinary, data)
}

// Close closes the socket once.
func (c *connection) Close(reason string) {
	c.closeOnce.Do(func() {
		_ = c.ws.Close(websocket.StatusNormalClosure, reason)
	})
}

// publish replaces the pending snapshot. It never blocks, so it is safe to
// call from the machine's observer.
func (c *connection) publish(s session.Snapshot) {
	c.mu.Lock()
	c.latest = &s
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *connection) takeLatest() *session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.latest
	c.latest = nil
	return s
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
		return
	}
	h.logger.Info("live connection request", "user_id", userID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept websocket", "error", err, "user_id", userID)
		return
	}
	conn := newConnection(ws)
	defer conn.Close("session ended")

	h.sm.Register(userID, sessionID, conn)
	defer h.sm.Unregister(userID, sessionID, conn)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	device := NewDevice(conn, h.synth, h.logger)
	var metrics session.Metrics
	var recorder speech.FallbackRecorder
	if h.metrics != nil {
		metrics, recorder = h.metrics, h.metrics
	}
	machine, err := session.New(session.Config{
		UserID:          userID,
		Converser:       h.converser,
		Capture:         device,
		Playback:        device.Playback(recorder),
		Store:           h.stories,
		Observer:        conn.publish,
		Metrics:         metrics,
		Logger:          h.logger.With("session_id", sessionID),
		ConverseTimeout: h.cfg.ConverseTimeout,
		PlaybackTimeout: h.cfg.PlaybackTimeout,
	})
	if err != nil {
		h.logger.Error("failed to create session machine", "error", err, "user_id", userID)
		return
	}
	defer func() {
		device.close()
		machine.Close()
	}()

	conn.publish(machine.Snapshot())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		h.stateLoop(ctx, conn, userID, sessionID)
	}()

	h.inputLoop(ctx, conn, device, machine, userID)
	cancel()
	wg.Wait()
	h.logger.Info("live session ended", "user_id", userID, "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "*" || origin == h.cfg.AllowedOrigin {
		return true
	}
	h.logger.Warn("websocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}

// stateLoop pushes session snapshots to the browser and logs new turns.
func (h *WebSocketHandler) stateLoop(ctx context.Context, conn *connection, userID, sessionID string) {
	var epoch uint64
	logged := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.wake:
		}
		snap := conn.takeLatest()
		if snap == nil {
			continue
		}

		if snap.Epoch != epoch {
			epoch, logged = snap.Epoch, 0
		}
		for ; logged < len(snap.Turns); logged++ {
			h.logTurn(userID, sessionID, epoch, snap.Turns[logged])
		}

		if err := conn.SendJSON(ctx, outbound{Type: msgState, Session: snap}); err != nil {
			if ctx.Err() == nil {
				h.logger.Debug("failed to send session state", "error", err, "user_id", userID)
			}
			return
		}
	}
}

func (h *WebSocketHandler) logTurn(userID, sessionID string, epoch uint64, turn domain.Turn) {
	eventType, direction := "georgia_turn", "outbound"
	if turn.Role == domain.SpeakerUser {
		eventType, direction = "user_turn", "inbound"
	}
	h.convLog.Log(agent.ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "live_ws",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: turn.Content,
		Meta:       map[string]any{"epoch": epoch},
	})
}

// inputLoop dispatches browser messages until the socket closes.
func (h *WebSocketHandler) inputLoop(ctx context.Context, conn *connection, device *Device, machine *session.Machine, userID string) {
	for {
		typ, data, err := conn.ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				h.logger.Debug("websocket closed", "user_id", userID)
			} else {
				h.logger.Warn("websocket read error", "error", err, "user_id", userID)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(ctx, conn, "invalid message")
			continue
		}

		switch msg.Type {
		case msgBegin:
			h.reportTransition(ctx, conn, machine.Begin())
		case msgDoneTalking:
			h.reportTransition(ctx, conn, machine.DoneTalking())
		case msgEndNow:
			h.reportTransition(ctx, conn, machine.EndNow())
		case msgReset:
			machine.Reset()
		case msgSave:
			go h.save(context.WithoutCancel(ctx), conn, machine, userID)
		case msgPartial:
			device.handlePartial(msg.Text)
		case msgFinal:
			device.handleFinal(msg.Text)
		case msgCaptureError:
			device.handleCaptureError(msg.Error)
		case msgPlaybackStarted:
			h.logger.Debug("playback started", "user_id", userID, "id", msg.ID)
		case msgPlaybackEnded:
			device.endPlayback(msg.ID, nil)
		case msgPlaybackError:
			reason := msg.Error
			if reason == "" {
				reason = "playback failed"
			}
			device.endPlayback(msg.ID, errors.New(reason))
		case msgPing:
			if err := conn.SendJSON(ctx, outbound{Type: msgPong}); err != nil {
				h.logger.Debug("failed to send pong", "error", err)
			}
		default:
			h.sendError(ctx, conn, "unknown message type")
		}

		if h.users != nil {
			go h.touch(userID)
		}
	}
}

func (h *WebSocketHandler) save(ctx context.Context, conn *connection, machine *session.Machine, userID string) {
	id, err := machine.ConfirmSave(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNothingToSave) {
			h.logger.Error("failed to save story", "user_id", userID, "error", err)
		}
		h.sendError(ctx, conn, err.Error())
		return
	}
	if err := conn.SendJSON(ctx, outbound{Type: msgSaved, StoryID: id}); err != nil {
		h.logger.Debug("failed to send saved", "error", err)
	}
}

func (h *WebSocketHandler) reportTransition(ctx context.Context, conn *connection, err error) {
	if err != nil {
		h.sendError(ctx, conn, err.Error())
	}
}

func (h *WebSocketHandler) sendError(ctx context.Context, conn *connection, message string) {
	if err := conn.SendJSON(ctx, outbound{Type: msgError, Error: message}); err != nil {
		h.logger.Debug("failed to send error", "error", err)
	}
}

func (h *WebSocketHandler) touch(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.users.UpdateLastSeen(ctx, userID, time.Now()); err != nil {
		h.logger.Warn("failed to update last seen", "error", err)
	}
}

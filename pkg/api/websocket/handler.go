package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/capo/pkg/domain"
	"github.com/aescanero/capo/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventTypeSnapshot is sent first on every stream with the current record
const EventTypeSnapshot domain.EventType = "execution.snapshot"

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusGetter looks up execution records
type StatusGetter interface {
	GetStatus(ctx context.Context, executionID string) (*domain.ExecutionRecord, error)
}

// Handler handles WebSocket connections
type Handler struct {
	eventBus ports.EventBus
	status   StatusGetter
	logger   *zap.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(eventBus ports.EventBus, status StatusGetter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		eventBus: eventBus,
		status:   status,
		logger:   logger,
	}
}

// HandleExecutionStream streams lifecycle events of one execution. The
// stream starts with a snapshot and closes after the terminal event.
func (h *Handler) HandleExecutionStream(c *gin.Context) {
	executionID := c.Param("id")

	if _, err := h.status.GetStatus(c.Request.Context(), executionID); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, domain.ErrExecutionNotFound) {
			code = http.StatusNotFound
		}
		c.AbortWithStatusJSON(code, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": err.Error()}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("WebSocket connection established",
		zap.String("execution_id", executionID),
		zap.String("client", c.ClientIP()))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribe before the snapshot so no transition is missed
	events := make(chan domain.Event, eventBuffer)
	if err := h.eventBus.Subscribe(ctx, domain.EventsTopic, h.forward(executionID, events)); err != nil {
		h.logger.Error("failed to subscribe to events",
			zap.String("execution_id", executionID),
			zap.Error(err))
		h.closeWith(conn, websocket.CloseInternalServerErr, "subscription failed")
		return
	}

	go h.readPump(conn, cancel)

	record, err := h.status.GetStatus(ctx, executionID)
	if err != nil {
		h.closeWith(conn, websocket.CloseInternalServerErr, "status unavailable")
		return
	}
	if err := h.write(conn, snapshot(record)); err != nil {
		return
	}
	if record.Status.IsTerminal() {
		h.closeWith(conn, websocket.CloseNormalClosure, string(record.Status))
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case event := <-events:
			if err := h.write(conn, event); err != nil {
				h.logger.Debug("failed to write message",
					zap.String("execution_id", executionID),
					zap.Error(err))
				return
			}
			if event.Type.IsTerminal() {
				h.closeWith(conn, websocket.CloseNormalClosure, string(event.Type))
				return
			}
		}
	}
}

// forward passes this execution's events to ch without blocking the bus
func (h *Handler) forward(executionID string, ch chan<- domain.Event) ports.EventHandler {
	return func(ctx context.Context, event domain.Event) error {
		if event.ExecutionID != executionID {
			return nil
		}
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		default:
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)))
		}
		return nil
	}
}

// readPump discards client messages and cancels the stream when the client
// goes away.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, event domain.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(event)
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

func snapshot(record *domain.ExecutionRecord) domain.Event {
	return domain.Event{
		Type:        EventTypeSnapshot,
		ExecutionID: record.ExecutionID,
		Timestamp:   time.Now(),
		Data: map[string]interface{}{
			"execution": record,
		},
	}
}

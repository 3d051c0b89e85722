package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/soa-checker/backend/internal/compliance"
	"github.com/soa-checker/backend/internal/jobs"
	"go.uber.org/zap"
)

// WebSocket message types for the interactive check protocol
const (
	// Client -> Server messages
	MsgTypeCheck    = "check"
	MsgTypeJobWatch = "job:watch"
	MsgTypePing     = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeResult    = "result"
	MsgTypeProgress  = "progress"
	MsgTypeComplete  = "complete"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WSMessage is the envelope of every frame in both directions
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// JobWatchPayload selects the job to follow
type JobWatchPayload struct {
	JobID string `json:"jobId"`
}

// WSErrorResponse is the payload of an error frame
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler serves single checks and job progress over one connection
type WebSocketHandler struct {
	checker      *compliance.Checker
	jobs         *jobs.Manager
	upgrader     websocket.Upgrader
	pollInterval time.Duration
	log          *zap.Logger
}

// NewWebSocketHandler creates a new WebSocket handler. jobs may be nil, which disables job:watch.
func NewWebSocketHandler(checker *compliance.Checker, mgr *jobs.Manager, log *zap.Logger) *WebSocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketHandler{
		checker: checker,
		jobs:    mgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		pollInterval: 200 * time.Millisecond,
		log:          log,
	}
}

// HandleWebSocket upgrades the connection and answers messages until the client leaves
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	wsh.log.Debug("websocket client connected", zap.String("remote", c.RealIP()))
	wsh.sendMessage(ws, WSMessage{Type: MsgTypeConnected, Timestamp: time.Now().UnixMilli()})

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsh.log.Warn("websocket connection error", zap.Error(err))
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			wsh.sendMessage(ws, WSMessage{Type: MsgTypePong, ID: msg.ID, Timestamp: time.Now().UnixMilli()})
		case MsgTypeCheck:
			wsh.handleCheck(ws, msg)
		case MsgTypeJobWatch:
			wsh.handleJobWatch(ws, msg)
		default:
			wsh.sendError(ws, msg.ID, "unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	wsh.log.Debug("websocket client disconnected")
	return nil
}

func (wsh *WebSocketHandler) handleCheck(ws *websocket.Conn, msg WSMessage) {
	var req checkRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		wsh.sendError(ws, msg.ID, "invalid check payload", "BAD_REQUEST")
		return
	}
	if err := req.validate(); err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			apiErr = NewBadRequestError("invalid check payload", err)
		}
		wsh.sendAPIError(ws, msg.ID, apiErr)
		return
	}

	values, err := compliance.CoerceScenario(req.Values)
	if err != nil {
		wsh.sendAPIError(ws, msg.ID, mapDomainError(err))
		return
	}
	result, err := wsh.checker.Check(req.Device, values)
	if err != nil {
		wsh.sendAPIError(ws, msg.ID, mapDomainError(err))
		return
	}

	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeResult,
		ID:        msg.ID,
		Payload:   mustJSON(result),
		Timestamp: time.Now().UnixMilli(),
	})
}

// handleJobWatch streams job snapshots until the job finishes. It blocks the read loop.
func (wsh *WebSocketHandler) handleJobWatch(ws *websocket.Conn, msg WSMessage) {
	if wsh.jobs == nil {
		wsh.sendError(ws, msg.ID, "jobs are not enabled", "SERVICE_UNAVAILABLE")
		return
	}
	var payload JobWatchPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.JobID == "" {
		wsh.sendError(ws, msg.ID, "jobId is required", "VALIDATION_ERROR")
		return
	}

	ticker := time.NewTicker(wsh.pollInterval)
	defer ticker.Stop()

	var last jobs.Status
	for {
		job, ok := wsh.jobs.GetJob(payload.JobID)
		if !ok {
			wsh.sendError(ws, msg.ID, "job not found: "+payload.JobID, "NOT_FOUND")
			return
		}
		if job.Status == jobs.StatusComplete || job.Status == jobs.StatusError {
			wsh.sendMessage(ws, WSMessage{
				Type:      MsgTypeComplete,
				ID:        msg.ID,
				Payload:   mustJSON(job),
				Timestamp: time.Now().UnixMilli(),
			})
			return
		}
		if job.Status != last {
			last = job.Status
			wsh.sendMessage(ws, WSMessage{
				Type:      MsgTypeProgress,
				ID:        msg.ID,
				Payload:   mustJSON(job),
				Timestamp: time.Now().UnixMilli(),
			})
		}
		<-ticker.C
	}
}

// Helper methods

func (wsh *WebSocketHandler) sendMessage(ws *websocket.Conn, msg WSMessage) {
	if err := ws.WriteJSON(msg); err != nil {
		wsh.log.Warn("websocket send failed", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, id, message, code string) {
	wsh.sendMessage(ws, WSMessage{
		Type:      MsgTypeError,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Payload: mustJSON(WSErrorResponse{
			Message: message,
			Code:    code,
		}),
	})
}

func (wsh *WebSocketHandler) sendAPIError(ws *websocket.Conn, id string, apiErr *APIError) {
	msg := apiErr.Message
	if apiErr.Details != "" {
		msg += ": " + apiErr.Details
	}
	wsh.sendError(ws, id, msg, apiErr.Code)
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}

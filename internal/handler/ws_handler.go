package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/apperror"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/proctor"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/session"
	"github.com/stemsi/exstem-cbt/internal/validator"
	ws "github.com/stemsi/exstem-cbt/internal/websocket"
)

// actionBacklog bounds queued actions per connection.
const actionBacklog = 32

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the live exam stream.
type WSHandler struct {
	sessionService *service.ExamSessionService
	dataService    *service.ExamDataService
	ackTimeout     time.Duration
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.ExamSessionService, dataService *service.ExamDataService, ackTimeout time.Duration, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		dataService:    dataService,
		ackTimeout:     ackTimeout,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Runs one attempt: the client sends actions and browser signals, the server
// pushes state, ticks, anomalies and fullscreen/lockdown commands.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	userID := claims.UserID
	wsLog := h.log.With().
		Int("user_id", userID).
		Str("exam_id", examID.String()).
		Logger()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stream := newStreamSession(conn, h.ackTimeout, wsLog)
	defer stream.close()
	hub := proctor.NewHub()

	ctrl, err := h.sessionService.Open(ctx, userID, examID, service.Binding{
		Host:     stream,
		Signals:  hub,
		Lockdown: stream,
		Observer: stream,
	})
	if err != nil {
		h.refuse(ctx, conn, wsLog, userID, examID, err)
		return
	}
	defer h.sessionService.Close(ctrl)

	wsLog.Info().Msg("Student connected")
	stream.PhaseChanged(ctrl.State())

	actions := make(chan []byte, actionBacklog)
	processed := make(chan struct{})
	go func() {
		defer close(processed)
		for msg := range actions {
			h.dispatch(ctx, conn, ctrl, msg)
		}
	}()

	h.readLoop(conn, stream, hub, actions, wsLog)

	// Unblock any command waiting on an acknowledgement, then let the
	// processor drain.
	stream.close()
	cancel()
	close(actions)
	<-processed
	wsLog.Info().Str("phase", string(ctrl.Phase())).Msg("Student disconnected")
}

// refuse explains why a stream could not be opened. A finished attempt also
// gets its stored result.
func (h *WSHandler) refuse(ctx context.Context, conn *ws.Conn, log zerolog.Logger, userID int, examID uuid.UUID, err error) {
	_, code := classifyError(err)
	log.Debug().Err(err).Str("code", string(code)).Msg("Exam stream refused")
	_ = conn.WriteError(string(code), response.GetMessage(code), apperror.Retryable(err))

	if code == response.ErrAlreadyCompleted {
		if res, err := h.dataService.FetchResult(ctx, userID, examID); err == nil {
			_ = conn.WriteTyped(ws.CompletedResponse{Event: ws.EventCompleted, Result: *res})
		}
	}
}

// readLoop handles acknowledgements, browser signals and pings inline so
// they are never stuck behind a slow action, and queues everything else.
func (h *WSHandler) readLoop(conn *ws.Conn, stream *streamSession, hub *proctor.Hub, actions chan<- []byte, log zerolog.Logger) {
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedClose(err) {
				log.Warn().Err(err).Msg("Unexpected close")
			} else {
				log.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			_ = conn.WriteError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload), false)
			continue
		}

		switch env.Action {
		case ws.ActionFullscreenResult:
			var req ws.FullscreenResultRequest
			if !decode(conn, msg, &req) {
				continue
			}
			stream.resolve(req.CommandID, req.OK, req.Error)

		case ws.ActionSignal:
			var req ws.SignalRequest
			if !decode(conn, msg, &req) {
				continue
			}
			hub.Publish(proctor.Signal{
				Type:       proctor.SignalType(req.Type),
				Hidden:     req.Hidden,
				Fullscreen: req.Fullscreen,
				At:         time.Now(),
			})

		case ws.ActionPing:
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong, At: time.Now()})

		default:
			select {
			case actions <- msg:
			default:
				log.Warn().Str("action", string(env.Action)).Msg("Action backlog full, dropping")
				_ = conn.WriteError(string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded), true)
			}
		}
	}
}

// dispatch runs one queued action against the controller.
func (h *WSHandler) dispatch(ctx context.Context, conn *ws.Conn, ctrl *session.Controller, msg []byte) {
	var env ws.RequestEnvelope
	_ = json.Unmarshal(msg, &env)

	var err error
	pushState := false

	switch env.Action {
	case ws.ActionStart:
		err = ctrl.Start(ctx)

	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if !decode(conn, msg, &req) {
			return
		}
		err = ctrl.SelectAnswer(ctx, uuid.MustParse(req.QuestionID), model.OptionLabel(req.Label))
		pushState = true

	case ws.ActionFlag:
		var req ws.FlagRequest
		if !decode(conn, msg, &req) {
			return
		}
		_, err = ctrl.ToggleFlag(ctx, uuid.MustParse(req.QuestionID))
		pushState = true

	case ws.ActionNavigate:
		var req ws.NavigateRequest
		if !decode(conn, msg, &req) {
			return
		}
		_, err = ctrl.NavigateTo(*req.Index)
		pushState = true

	case ws.ActionRequestFinish:
		var preview session.Preview
		preview, err = ctrl.RequestFinish()
		if err == nil {
			_ = conn.WriteTyped(ws.PreviewResponse{Event: ws.EventPreview, Preview: preview})
		}

	case ws.ActionCancelFinish:
		ctrl.CancelFinish()
		pushState = true

	case ws.ActionConfirmFinish:
		_, err = ctrl.ConfirmFinish(ctx)

	case ws.ActionRetrySubmit:
		_, err = ctrl.RetrySubmit(ctx)

	case ws.ActionReenterFullscreen:
		err = ctrl.ReenterFullscreen(ctx)

	default:
		_ = conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(env.Action), false)
		return
	}

	if err != nil {
		_, code := classifyError(err)
		_ = conn.WriteError(string(code), err.Error(), apperror.Retryable(err))
		return
	}
	if pushState {
		_ = conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: ctrl.State()})
	}
}

// decode parses and validates a typed request, reporting failures to the
// client.
func decode(conn *ws.Conn, msg []byte, dst interface{}) bool {
	if err := json.Unmarshal(msg, dst); err != nil {
		_ = conn.WriteError(string(response.ErrInvalidPayload), response.GetMessage(response.ErrInvalidPayload), false)
		return false
	}
	if fields := validator.Struct(dst); fields != nil {
		_ = conn.WriteFieldErrors(string(response.ErrValidation), response.GetMessage(response.ErrValidation), fields)
		return false
	}
	return true
}

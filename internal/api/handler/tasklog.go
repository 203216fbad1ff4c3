package handler

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/miniforge/internal/api/request"
	"github.com/edvin/miniforge/internal/api/response"
	"github.com/edvin/miniforge/internal/tasklog"
)

// subscribeBuffer bounds the entries queued for one slow client.
const subscribeBuffer = 1024

type subscribedFrame struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id"`
}

type TaskLog struct {
	hub            *tasklog.Hub
	originPatterns []string
}

// NewTaskLog streams from hub. Browsers may connect from the request's own
// host or from a host matching one of originPatterns.
func NewTaskLog(hub *tasklog.Hub, originPatterns []string) *TaskLog {
	return &TaskLog{hub: hub, originPatterns: originPatterns}
}

// Stream upgrades to a WebSocket and forwards the task's log entries as
// JSON text frames. The first frame acknowledges the subscription; the
// stream closes after the finish entry.
func (h *TaskLog) Stream(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger := zerolog.Ctx(r.Context()).With().Str("task_id", id).Logger()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.CloseNow()

	// Subscribing releases a pipeline waiting for its first listener;
	// everything it emits from then on is queued for this client.
	entries, unsubscribe := h.hub.Channel(id, subscribeBuffer)
	defer unsubscribe()

	ctx := ws.CloseRead(r.Context())
	if err := wsjson.Write(ctx, ws, subscribedFrame{Type: "subscribed", TaskID: id}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-entries:
			if err := wsjson.Write(ctx, ws, e); err != nil {
				logger.Debug().Err(err).Msg("log stream write failed")
				return
			}
			if e.Type == tasklog.Finish {
				ws.Close(websocket.StatusNormalClosure, "task finished")
				return
			}
		}
	}
}

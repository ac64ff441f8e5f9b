// pkg/api/websocket.go
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voiceboost/pkg/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const pollInterval = 500 * time.Millisecond

type WebSocketMessage struct {
	Type  string       `json:"type"`
	Job   *jobResponse `json:"job,omitempty"`
	Error string       `json:"error,omitempty"`
}

// WebSocketHandler streams status updates for ?job=<id> until the job
// reaches a terminal state or the client goes away.
func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job")
	if jobID == "" {
		http.Error(w, "job is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.monitorJob(conn, jobID, closed)
}

func (h *Handlers) monitorJob(conn *websocket.Conn, jobID string, closed <-chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last models.Progress
	var lastState models.State
	for {
		job, err := h.jobs.Job(jobID)
		if err != nil {
			h.sendMessage(conn, WebSocketMessage{Type: "error", Error: "Job not found or expired"})
			return
		}

		if job.State != lastState || job.Progress != last {
			resp := newJobResponse(job)
			h.sendMessage(conn, WebSocketMessage{Type: "status_update", Job: &resp})
			last, lastState = job.Progress, job.State
		}

		switch job.State {
		case models.StatePresented:
			resp := newJobResponse(job)
			h.sendMessage(conn, WebSocketMessage{Type: "processing_complete", Job: &resp})
			return
		case models.StateAborted:
			resp := newJobResponse(job)
			h.sendMessage(conn, WebSocketMessage{Type: "processing_failed", Job: &resp, Error: job.Error})
			return
		}

		select {
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}

func (h *Handlers) sendMessage(conn *websocket.Conn, msg WebSocketMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
	}
}

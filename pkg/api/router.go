package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the handlers and the metrics endpoint for gatherer.
func NewRouter(h *Handlers, gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", h.IndexHandler).Methods("GET")
	router.HandleFunc("/api/enhance", h.UploadHandler).Methods("POST")
	router.HandleFunc("/api/jobs/{id}", h.GetJobHandler).Methods("GET")
	router.HandleFunc("/api/jobs/{id}/original", h.OriginalHandler).Methods("GET", "HEAD")
	router.HandleFunc("/api/jobs/{id}/download", h.DownloadHandler).Methods("GET", "HEAD")
	router.HandleFunc("/api/history", h.HistoryHandler).Methods("GET")
	router.HandleFunc("/ws", h.WebSocketHandler)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	if gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return router
}

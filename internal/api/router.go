package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)
	mux.HandleFunc("GET /v1/status", h.SystemStatus)

	mux.HandleFunc("POST /v1/campaigns", h.CreateCampaign)
	mux.HandleFunc("POST /v1/campaigns/csv", h.CreateCampaignCSV)
	mux.HandleFunc("GET /v1/campaigns/{id}", h.CampaignStatus)

	mux.HandleFunc("POST /v1/messages", h.EnqueueMessage)

	mux.HandleFunc("GET /v1/worker/status", h.WorkerStatus)
	mux.HandleFunc("POST /v1/worker/start", h.WorkerStart)
	mux.HandleFunc("POST /v1/worker/stop", h.WorkerStop)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("campaign-messaging"))
	})

	return mux
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/campaign-messaging/internal/credentials"
	"github.com/LeventeLantos/campaign-messaging/internal/model"
	"github.com/LeventeLantos/campaign-messaging/internal/store"
	"github.com/LeventeLantos/campaign-messaging/internal/worker"
)

const defaultLanguage = "es"

// CredentialChecker validates a mailbox at submission time, bypassing
// the worker's cache so a bad record is caught before anything is
// enqueued.
type CredentialChecker interface {
	Resolve(ctx context.Context, mailboxID string) (*model.Credentials, error)
}

// Limits bound what a single submission may carry.
type Limits struct {
	MaxMessagesPerCampaign int
	MaxCSVBytes            int64
}

type Handler struct {
	store    store.CampaignStore
	resolver CredentialChecker
	worker   *worker.Worker
	limits   Limits
	started  time.Time
}

func NewHandler(s store.CampaignStore, r CredentialChecker, w *worker.Worker, limits Limits) *Handler {
	return &Handler{
		store:    s,
		resolver: r,
		worker:   w,
		limits:   limits,
		started:  time.Now().UTC(),
	}
}

type createCampaignRequest struct {
	CampaignID string          `json:"campaign_id"`
	Template   string          `json:"template"`
	Mailbox    string          `json:"mailbox"`
	Language   string          `json:"language"`
	Messages   []model.Message `json:"messages"`
}

type createCampaignResponse struct {
	CampaignID    string    `json:"campaign_id"`
	TotalMessages int       `json:"total_messages"`
	State         string    `json:"state"`
	Timestamp     time.Time `json:"timestamp"`
}

// CreateCampaign accepts a JSON campaign submission.
func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}

	if req.Language == "" {
		req.Language = defaultLanguage
	}
	if msg := h.validateSubmission(req.CampaignID, req.Template, req.Mailbox, req.Messages); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	h.enqueueCampaign(w, r, req.CampaignID, req.Template, req.Mailbox, req.Language, req.Messages)
}

// CreateCampaignCSV accepts a multipart form with campaign fields and a
// CSV file of messages.
func (h *Handler) CreateCampaignCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxCSVBytes)
	if err := r.ParseMultipartForm(h.limits.MaxCSVBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	campaignID := r.FormValue("campaign_id")
	template := r.FormValue("template")
	mailbox := r.FormValue("mailbox")
	language := r.FormValue("language")
	if language == "" {
		language = defaultLanguage
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "a csv file is required")
		return
	}
	defer file.Close()

	msgs, err := parseMessagesCSV(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid csv: %v", err))
		return
	}

	if msg := h.validateSubmission(campaignID, template, mailbox, msgs); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	h.enqueueCampaign(w, r, campaignID, template, mailbox, language, msgs)
}

func (h *Handler) validateSubmission(campaignID, template, mailbox string, msgs []model.Message) string {
	switch {
	case campaignID == "":
		return "campaign_id is required"
	case template == "":
		return "template is required"
	case mailbox == "":
		return "mailbox is required"
	case len(msgs) == 0:
		return "at least one message is required"
	case len(msgs) > h.limits.MaxMessagesPerCampaign:
		return fmt.Sprintf("a campaign may hold at most %d messages", h.limits.MaxMessagesPerCampaign)
	}
	for i := range msgs {
		if msgs[i].Phone == "" {
			return fmt.Sprintf("message %d has no phone number", i)
		}
	}
	return ""
}

func (h *Handler) enqueueCampaign(w http.ResponseWriter, r *http.Request, campaignID, template, mailbox, language string, msgs []model.Message) {
	ctx := r.Context()

	// Reject unknown or misconfigured mailboxes before enqueueing
	// anything; the worker would otherwise fail every message.
	if _, err := h.resolver.Resolve(ctx, mailbox); err != nil {
		if errors.Is(err, credentials.ErrNotFound) || errors.Is(err, credentials.ErrMalformed) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, fmt.Sprintf("credential backend: %v", err))
		return
	}

	for i := range msgs {
		msgs[i].Template = template
		msgs[i].MailboxID = mailbox
		msgs[i].Language = language
		msgs[i].Token = ""
		msgs[i].PhoneID = ""
	}

	meta := model.Metadata{
		Template:  template,
		MailboxID: mailbox,
		Language:  language,
		CreatedAt: time.Now().UTC(),
	}

	count, err := h.store.Enqueue(ctx, campaignID, msgs, meta)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, createCampaignResponse{
		CampaignID:    campaignID,
		TotalMessages: count,
		State:         string(model.StateQueued),
		Timestamp:     time.Now().UTC(),
	})
}

type enqueueMessageRequest struct {
	Token      string   `json:"token"`
	PhoneID    string   `json:"phone_id"`
	Phone      string   `json:"phone"`
	Template   string   `json:"template"`
	Language   string   `json:"language"`
	Variables  []string `json:"variables"`
	ImageURL   string   `json:"image_url"`
	CampaignID string   `json:"campaign_id"`
}

type enqueueMessageResponse struct {
	Success         bool   `json:"success"`
	CampaignID      string `json:"campaign_id"`
	PositionInQueue int64  `json:"position_in_queue"`
}

// EnqueueMessage accepts a single message carrying direct credentials.
// The campaign id comes from the x-campaignid header, then the body,
// and is auto-generated otherwise, so a frontend can group messages
// into one campaign by pinning the header.
func (h *Handler) EnqueueMessage(w http.ResponseWriter, r *http.Request) {
	var req enqueueMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return
	}

	switch {
	case req.Token == "" || req.PhoneID == "":
		writeError(w, http.StatusBadRequest, "token and phone_id are required")
		return
	case req.Phone == "":
		writeError(w, http.StatusBadRequest, "phone is required")
		return
	case req.Template == "":
		writeError(w, http.StatusBadRequest, "template is required")
		return
	}

	if req.Language == "" {
		req.Language = defaultLanguage
	}

	campaignID := r.Header.Get("x-campaignid")
	if campaignID == "" {
		campaignID = req.CampaignID
	}
	if campaignID == "" {
		campaignID = generateCampaignID()
	}

	msg := model.Message{
		Phone:    req.Phone,
		Template: req.Template,
		Language: req.Language,
		ImageURL: req.ImageURL,
		Token:    req.Token,
		PhoneID:  req.PhoneID,
	}
	for i, v := range req.Variables {
		msg.SetVariable(i+1, v)
	}

	meta := model.Metadata{
		Template:  req.Template,
		Language:  req.Language,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := h.store.Enqueue(r.Context(), campaignID, []model.Message{msg}, meta); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	position := int64(1)
	if stats, err := h.store.Stats(r.Context(), campaignID); err == nil {
		position = stats.Pending
	}

	writeJSON(w, http.StatusCreated, enqueueMessageResponse{
		Success:         true,
		CampaignID:      campaignID,
		PositionInQueue: position,
	})
}

func generateCampaignID() string {
	return fmt.Sprintf("auto_%s_%s",
		time.Now().UTC().Format("20060102_150405"),
		uuid.NewString()[:8],
	)
}

// CampaignStatus reports one campaign's progress.
func (h *Handler) CampaignStatus(w http.ResponseWriter, r *http.Request) {
	campaignID := r.PathValue("id")

	stats, err := h.store.Stats(r.Context(), campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("campaign %q not found", campaignID))
			return
		}
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

type systemStatusResponse struct {
	State           string `json:"state"`
	ActiveCampaigns int    `json:"active_campaigns"`
	PendingMessages int64  `json:"pending_messages"`
	StoreConnected  bool   `json:"store_connected"`
	WorkerRunning   bool   `json:"worker_running"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// SystemStatus reports overall queue and worker health.
func (h *Handler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	storeOK := h.store.Ping(ctx) == nil

	var active []string
	var pending int64
	if storeOK {
		active, _ = h.store.ListActiveCampaigns(ctx)
		pending, _ = h.store.TotalPending(ctx)
	}

	state := "healthy"
	if !storeOK || !h.worker.IsRunning() {
		state = "degraded"
	}

	writeJSON(w, http.StatusOK, systemStatusResponse{
		State:           state,
		ActiveCampaigns: len(active),
		PendingMessages: pending,
		StoreConnected:  storeOK,
		WorkerRunning:   h.worker.IsRunning(),
		UptimeSeconds:   int64(time.Since(h.started).Seconds()),
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) WorkerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.worker.IsRunning()})
}

func (h *Handler) WorkerStart(w http.ResponseWriter, r *http.Request) {
	h.worker.Start()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.worker.IsRunning()})
}

func (h *Handler) WorkerStop(w http.ResponseWriter, r *http.Request) {
	h.worker.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.worker.IsRunning()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

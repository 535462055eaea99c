package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LeventeLantos/campaign-messaging/internal/model"
)

// maxErrorBody caps how much of an unparsable error response is kept
// as the failure reason.
const maxErrorBody = 200

// WhatsAppClient sends template messages through the external delivery
// API. It never retries; every outcome is normalized into a SendResult
// and the caller decides what to record.
type WhatsAppClient struct {
	url    string
	client *http.Client
}

func NewWhatsAppClient(url string) *WhatsAppClient {
	return &WhatsAppClient{
		url: strings.TrimRight(url, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// sendRequest is the delivery API wire format.
type sendRequest struct {
	Token        string   `json:"token"`
	PhoneID      string   `json:"phone_id"`
	Numero       string   `json:"numero"`
	TemplateName string   `json:"template_name"`
	Idioma       string   `json:"idioma"`
	Variables    []string `json:"variables,omitempty"`
	URLImagen    string   `json:"url_imagen,omitempty"`
}

type sendResponse struct {
	ID        string `json:"id"`
	Wamid     string `json:"wamid"`
	Error     string `json:"error"`
	MetaError string `json:"meta_error"`
}

// Send dispatches one message. A 2xx response is a success carrying the
// provider message id ("id", falling back to "wamid"); anything else is
// a failure with a short reason. Transport faults (timeout, refused
// connection) are ordinary failures too.
func (c *WhatsAppClient) Send(ctx context.Context, creds *model.Credentials, msg *model.Message) model.SendResult {
	payload := sendRequest{
		Token:        creds.Token,
		PhoneID:      creds.PhoneID,
		Numero:       msg.Phone,
		TemplateName: msg.Template,
		Idioma:       msg.Language,
		Variables:    msg.TemplateVariables(),
		URLImagen:    strings.TrimSpace(msg.ImageURL),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return model.SendResult{ErrorText: fmt.Sprintf("encoding delivery request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return model.SendResult{ErrorText: fmt.Sprintf("building delivery request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.SendResult{ErrorText: transportError(err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var sr sendResponse
		_ = json.Unmarshal(raw, &sr)

		id := sr.ID
		if id == "" {
			id = sr.Wamid
		}
		return model.SendResult{Success: true, MessageID: id}
	}

	return model.SendResult{ErrorText: errorText(resp.StatusCode, raw)}
}

func transportError(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return "timeout contacting the delivery API"
	}
	return "could not connect to the delivery API"
}

// errorText pulls a short reason out of a non-2xx response: the JSON
// "error" or "meta_error" field when present, otherwise the truncated
// raw body, otherwise just the status code.
func errorText(status int, body []byte) string {
	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err == nil {
		if sr.Error != "" {
			return sr.Error
		}
		if sr.MetaError != "" {
			return sr.MetaError
		}
	}

	if s := strings.TrimSpace(string(body)); s != "" {
		if len(s) > maxErrorBody {
			s = s[:maxErrorBody]
		}
		return s
	}
	return fmt.Sprintf("HTTP %d", status)
}

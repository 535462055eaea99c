package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/LeventeLantos/campaign-messaging/internal/model"
)

var testCreds = &model.Credentials{Token: "tok-1", PhoneID: "phone-1"}

func TestSend_Success(t *testing.T) {
	t.Parallel()

	var captured []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"wamid.123"}`))
	}))
	defer srv.Close()

	c := NewWhatsAppClient(srv.URL)

	msg := &model.Message{
		Phone:     "584121234567",
		Template:  "welcome",
		Language:  "es",
		Variable1: "Ana",
		Variable2: "Friday",
		ImageURL:  "https://example.com/banner.png",
	}

	res := c.Send(context.Background(), testCreds, msg)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.MessageID != "wamid.123" {
		t.Fatalf("expected message id %q, got %q", "wamid.123", res.MessageID)
	}

	var req sendRequest
	if err := json.Unmarshal(captured, &req); err != nil {
		t.Fatalf("failed to decode request json: %v body=%q", err, string(captured))
	}

	want := sendRequest{
		Token:        "tok-1",
		PhoneID:      "phone-1",
		Numero:       "584121234567",
		TemplateName: "welcome",
		Idioma:       "es",
		Variables:    []string{"Ana", "Friday"},
		URLImagen:    "https://example.com/banner.png",
	}
	if !reflect.DeepEqual(req, want) {
		t.Fatalf("unexpected payload:\n got %+v\nwant %+v", req, want)
	}
}

func TestSend_WamidFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"wamid":"fallback-id"}`))
	}))
	defer srv.Close()

	c := NewWhatsAppClient(srv.URL)

	res := c.Send(context.Background(), testCreds, &model.Message{Phone: "1", Template: "t", Language: "es"})
	if !res.Success || res.MessageID != "fallback-id" {
		t.Fatalf("expected wamid fallback, got %+v", res)
	}
}

func TestSend_OmitsEmptyVariablesAndImage(t *testing.T) {
	t.Parallel()

	var captured []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"id":"x"}`))
	}))
	defer srv.Close()

	c := NewWhatsAppClient(srv.URL)

	res := c.Send(context.Background(), testCreds, &model.Message{Phone: "1", Template: "t", Language: "es"})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	body := string(captured)
	if strings.Contains(body, "variables") {
		t.Fatalf("expected variables to be omitted, body=%q", body)
	}
	if strings.Contains(body, "url_imagen") {
		t.Fatalf("expected url_imagen to be omitted, body=%q", body)
	}
}

func TestSend_VariableHoleTruncatesPayload(t *testing.T) {
	t.Parallel()

	var captured []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"id":"x"}`))
	}))
	defer srv.Close()

	c := NewWhatsAppClient(srv.URL)

	msg := &model.Message{
		Phone:     "1",
		Template:  "t",
		Language:  "es",
		Variable1: "a",
		Variable2: "b",
		Variable4: "d", // variable3 is empty: d is never sent
	}
	c.Send(context.Background(), testCreds, msg)

	var req sendRequest
	if err := json.Unmarshal(captured, &req); err != nil {
		t.Fatalf("failed to decode request json: %v", err)
	}
	if !reflect.DeepEqual(req.Variables, []string{"a", "b"}) {
		t.Fatalf("expected variables [a b], got %v", req.Variables)
	}
}

func TestSend_RejectedWithJSONError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"error field", `{"error":"template not approved"}`, "template not approved"},
		{"meta_error fallback", `{"meta_error":"rate limited"}`, "rate limited"},
		{"raw text body", "gateway exploded", "gateway exploded"},
		{"empty body", "", "HTTP 500"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewWhatsAppClient(srv.URL)

			res := c.Send(context.Background(), testCreds, &model.Message{Phone: "1", Template: "t", Language: "es"})
			if res.Success {
				t.Fatalf("expected failure, got %+v", res)
			}
			if res.ErrorText != tc.want {
				t.Fatalf("expected error text %q, got %q", tc.want, res.ErrorText)
			}
		})
	}
}

func TestSend_TruncatesLongErrorBody(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 5000)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(long))
	}))
	defer srv.Close()

	c := NewWhatsAppClient(srv.URL)

	res := c.Send(context.Background(), testCreds, &model.Message{Phone: "1", Template: "t", Language: "es"})
	if res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
	if len(res.ErrorText) != maxErrorBody {
		t.Fatalf("expected error text truncated to %d chars, got %d", maxErrorBody, len(res.ErrorText))
	}
}

func TestSend_Timeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"id":"late"}`))
	}))
	defer srv.Close()

	c := NewWhatsAppClient(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := c.Send(ctx, testCreds, &model.Message{Phone: "1", Template: "t", Language: "es"})
	if res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
	if !strings.Contains(res.ErrorText, "timeout") {
		t.Fatalf("expected a timeout reason, got %q", res.ErrorText)
	}
}

func TestSend_ConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewWhatsAppClient(url)

	res := c.Send(context.Background(), testCreds, &model.Message{Phone: "1", Template: "t", Language: "es"})
	if res.Success {
		t.Fatalf("expected failure, got %+v", res)
	}
	if !strings.Contains(res.ErrorText, "could not connect") {
		t.Fatalf("expected a connect failure reason, got %q", res.ErrorText)
	}
}

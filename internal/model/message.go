package model

import (
	"strings"
	"time"
)

// Message is one outbound template message waiting in a campaign queue.
// Exactly one credential mode applies when it is dispatched: either the
// message carries its own Token+PhoneID, or MailboxID is resolved
// against the credential backend.
type Message struct {
	Phone    string `json:"phone"`
	Template string `json:"template"`
	Language string `json:"language"`

	Variable1  string `json:"variable1,omitempty"`
	Variable2  string `json:"variable2,omitempty"`
	Variable3  string `json:"variable3,omitempty"`
	Variable4  string `json:"variable4,omitempty"`
	Variable5  string `json:"variable5,omitempty"`
	Variable6  string `json:"variable6,omitempty"`
	Variable7  string `json:"variable7,omitempty"`
	Variable8  string `json:"variable8,omitempty"`
	Variable9  string `json:"variable9,omitempty"`
	Variable10 string `json:"variable10,omitempty"`

	ImageURL string `json:"image_url,omitempty"`

	Token   string `json:"token,omitempty"`
	PhoneID string `json:"phone_id,omitempty"`

	MailboxID string `json:"mailbox,omitempty"`
}

// TemplateVariables returns the contiguous prefix of filled variable
// slots, in order. Extraction stops at the first empty slot; slots
// after a gap are never read. Template rendering on the provider side
// is positional, so a hole truncates the list.
func (m *Message) TemplateVariables() []string {
	slots := [...]string{
		m.Variable1, m.Variable2, m.Variable3, m.Variable4, m.Variable5,
		m.Variable6, m.Variable7, m.Variable8, m.Variable9, m.Variable10,
	}

	var vars []string
	for _, v := range slots {
		v = strings.TrimSpace(v)
		if v == "" {
			break
		}
		vars = append(vars, v)
	}
	return vars
}

// SetVariable assigns slot i (1-based, 1..10). Out-of-range slots are
// ignored.
func (m *Message) SetVariable(i int, v string) {
	switch i {
	case 1:
		m.Variable1 = v
	case 2:
		m.Variable2 = v
	case 3:
		m.Variable3 = v
	case 4:
		m.Variable4 = v
	case 5:
		m.Variable5 = v
	case 6:
		m.Variable6 = v
	case 7:
		m.Variable7 = v
	case 8:
		m.Variable8 = v
	case 9:
		m.Variable9 = v
	case 10:
		m.Variable10 = v
	}
}

func (m *Message) HasDirectCredentials() bool {
	return m.Token != "" && m.PhoneID != ""
}

// Credentials authorize sends through the delivery API. The resolver's
// cache owns the canonical copy for mailbox-routed messages; callers
// must not mutate it.
type Credentials struct {
	Token   string
	PhoneID string
	WabaID  string
}

// SendResult is the dispatcher's normalized outcome for one message.
type SendResult struct {
	Success   bool
	MessageID string
	ErrorText string
}

// Metadata describes a campaign as submitted.
type Metadata struct {
	Template  string    `json:"template"`
	MailboxID string    `json:"mailbox,omitempty"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
}

type CampaignState string

const (
	StateQueued     CampaignState = "queued"
	StateProcessing CampaignState = "processing"
	StateCompleted  CampaignState = "completed"
)

// Stats is the progress projection for one campaign.
type Stats struct {
	CampaignID string        `json:"campaign_id"`
	Total      int64         `json:"total"`
	Pending    int64         `json:"pending"`
	Sent       int64         `json:"sent"`
	Failed     int64         `json:"failed"`
	State      CampaignState `json:"state"`
	Progress   float64       `json:"progress_percent"`
	LastSentAt *time.Time    `json:"last_sent_at,omitempty"`
}

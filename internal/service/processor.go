package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/LeventeLantos/campaign-messaging/internal/model"
)

// Counters is the slice of the campaign store the processor mutates.
type Counters interface {
	IncrementSent(ctx context.Context, campaignID string) error
	IncrementFailed(ctx context.Context, campaignID string) error
}

// CredentialResolver resolves a mailbox id through the process-wide
// credential cache.
type CredentialResolver interface {
	ResolveCached(ctx context.Context, mailboxID string) (*model.Credentials, error)
}

// Dispatcher sends one message through the delivery API.
type Dispatcher interface {
	Send(ctx context.Context, creds *model.Credentials, msg *model.Message) model.SendResult
}

// Processor fans a campaign batch out to the dispatcher concurrently
// and records every terminal outcome in the store counters exactly
// once. A fault in one message never aborts its siblings.
type Processor struct {
	store      Counters
	resolver   CredentialResolver
	dispatcher Dispatcher
}

func NewProcessor(store Counters, resolver CredentialResolver, dispatcher Dispatcher) *Processor {
	return &Processor{
		store:      store,
		resolver:   resolver,
		dispatcher: dispatcher,
	}
}

// ProcessBatch dispatches all messages concurrently and waits for every
// one to finish before returning.
func (p *Processor) ProcessBatch(ctx context.Context, campaignID string, msgs []model.Message) (sent, failed int) {
	if len(msgs) == 0 {
		return 0, 0
	}

	slog.Info("processing batch", "campaign", campaignID, "size", len(msgs))

	var sentN, failedN atomic.Int64
	var wg sync.WaitGroup

	for i := range msgs {
		wg.Add(1)
		go func(m *model.Message) {
			defer wg.Done()
			if p.processOne(ctx, campaignID, m) {
				sentN.Add(1)
			} else {
				failedN.Add(1)
			}
		}(&msgs[i])
	}
	wg.Wait()

	sent, failed = int(sentN.Load()), int(failedN.Load())
	slog.Info("batch completed", "campaign", campaignID, "sent", sent, "failed", failed)
	return sent, failed
}

func (p *Processor) processOne(ctx context.Context, campaignID string, m *model.Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("message dispatch panicked",
				"campaign", campaignID, "phone", m.Phone, "panic", r)
			_ = p.store.IncrementFailed(ctx, campaignID)
			ok = false
		}
	}()

	creds, reason := p.credentialsFor(ctx, m)
	if creds == nil {
		_ = p.store.IncrementFailed(ctx, campaignID)
		slog.Warn("message failed", "campaign", campaignID, "phone", m.Phone, "error", reason)
		return false
	}

	res := p.dispatcher.Send(ctx, creds, m)
	if !res.Success {
		_ = p.store.IncrementFailed(ctx, campaignID)
		slog.Warn("message failed", "campaign", campaignID, "phone", m.Phone, "error", res.ErrorText)
		return false
	}

	_ = p.store.IncrementSent(ctx, campaignID)
	slog.Info("message sent", "campaign", campaignID, "phone", m.Phone, "message_id", res.MessageID)
	return true
}

// credentialsFor picks the credential mode: direct token+phone id on
// the message wins, then the mailbox route, otherwise the message fails
// without touching the network.
func (p *Processor) credentialsFor(ctx context.Context, m *model.Message) (*model.Credentials, string) {
	switch {
	case m.HasDirectCredentials():
		return &model.Credentials{Token: m.Token, PhoneID: m.PhoneID}, ""
	case m.MailboxID != "":
		creds, err := p.resolver.ResolveCached(ctx, m.MailboxID)
		if err != nil {
			return nil, err.Error()
		}
		return creds, ""
	default:
		return nil, "message carries neither direct credentials nor a mailbox id"
	}
}

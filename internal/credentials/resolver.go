package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/LeventeLantos/campaign-messaging/internal/model"
)

// ErrNotFound is returned when the backend has no record for a mailbox
// id. A missing mailbox is an expected outcome, not an infrastructure
// fault.
var ErrNotFound = errors.New("mailbox not found")

// ErrMalformed is returned when a credential record parses to fewer
// than two parts.
var ErrMalformed = errors.New("malformed credential record")

// Source looks up the raw delimited credential record
// ("token,phoneId,wabaId") for a mailbox id.
type Source interface {
	Lookup(ctx context.Context, mailboxID string) (string, error)
}

// Resolver turns mailbox ids into delivery credentials.
//
// ResolveCached keeps every successful resolution in an in-process map
// for the lifetime of the process; entries are never invalidated or
// expired. Rotating credentials upstream therefore takes effect only
// after a restart. This is an accepted operational constraint.
type Resolver struct {
	source Source

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]*model.Credentials
}

func NewResolver(source Source) *Resolver {
	return &Resolver{
		source: source,
		cache:  make(map[string]*model.Credentials),
	}
}

// Resolve fetches and parses the credential record, bypassing the
// cache.
func (r *Resolver) Resolve(ctx context.Context, mailboxID string) (*model.Credentials, error) {
	raw, err := r.source.Lookup(ctx, mailboxID)
	if err != nil {
		return nil, err
	}
	return parse(mailboxID, raw)
}

// ResolveCached resolves via the in-process cache, hitting the backend
// at most once per mailbox id even under concurrent callers. Failed
// lookups are not cached.
func (r *Resolver) ResolveCached(ctx context.Context, mailboxID string) (*model.Credentials, error) {
	r.mu.RLock()
	creds, ok := r.cache[mailboxID]
	r.mu.RUnlock()
	if ok {
		return creds, nil
	}

	v, err, _ := r.group.Do(mailboxID, func() (any, error) {
		creds, err := r.Resolve(ctx, mailboxID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[mailboxID] = creds
		r.mu.Unlock()

		slog.Info("credentials cached", "mailbox", mailboxID)
		return creds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Credentials), nil
}

func parse(mailboxID, raw string) (*model.Credentials, error) {
	parts := strings.Split(raw, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: mailbox %q", ErrMalformed, mailboxID)
	}

	creds := &model.Credentials{
		Token:   strings.TrimSpace(parts[0]),
		PhoneID: strings.TrimSpace(parts[1]),
	}
	if len(parts) > 2 {
		creds.WabaID = strings.TrimSpace(parts[2])
	}

	if creds.Token == "" || creds.PhoneID == "" {
		return nil, fmt.Errorf("%w: mailbox %q", ErrMalformed, mailboxID)
	}
	return creds, nil
}

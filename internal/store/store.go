package store

import (
	"context"
	"errors"

	"github.com/LeventeLantos/campaign-messaging/internal/model"
)

// ErrUnavailable wraps failures to reach the backing store.
var ErrUnavailable = errors.New("campaign store unavailable")

// ErrNotFound is returned when no stats or metadata exist for a
// campaign id.
var ErrNotFound = errors.New("campaign not found")

// CampaignStore is the durable per-campaign FIFO queue plus its stats
// and metadata records. Every call round-trips to the backing store;
// there is no in-process caching here.
type CampaignStore interface {
	// Enqueue appends messages to the campaign's queue tail, rewrites
	// the metadata record and accumulates the total counter. Returns
	// the number of messages enqueued by this call.
	Enqueue(ctx context.Context, campaignID string, msgs []model.Message, meta model.Metadata) (int, error)

	// DequeueOne pops the queue head, or returns (nil, nil) when the
	// queue is empty. Atomic per call.
	DequeueOne(ctx context.Context, campaignID string) (*model.Message, error)

	Stats(ctx context.Context, campaignID string) (*model.Stats, error)
	Metadata(ctx context.Context, campaignID string) (*model.Metadata, error)

	IncrementSent(ctx context.Context, campaignID string) error
	IncrementFailed(ctx context.Context, campaignID string) error

	// ListActiveCampaigns returns the ids of campaigns whose queue
	// currently holds at least one message.
	ListActiveCampaigns(ctx context.Context) ([]string, error)

	// TotalPending sums the queue lengths of every campaign.
	TotalPending(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
}

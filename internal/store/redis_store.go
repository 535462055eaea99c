package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/campaign-messaging/internal/model"
)

// RedisStore keeps each campaign in three keys:
//
//	campaign:{id}           list of JSON-encoded messages (FIFO)
//	campaign:{id}:stats     hash: total, sent, failed, created_at, last_sent_at
//	campaign:{id}:metadata  hash: template, mailbox, language, created_at
//
// total accumulates across repeated Enqueue calls for the same id, so
// sent+failed never exceeds it. All counter mutations rely on Redis
// per-key atomicity; the store takes no locks of its own.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore wires a client and the campaign TTL. A zero ttl
// disables expiry.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

var _ CampaignStore = (*RedisStore)(nil)

func queueKey(id string) string    { return "campaign:" + id }
func statsKey(id string) string    { return "campaign:" + id + ":stats" }
func metadataKey(id string) string { return "campaign:" + id + ":metadata" }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *RedisStore) Enqueue(ctx context.Context, campaignID string, msgs []model.Message, meta model.Metadata) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	payloads := make([]any, 0, len(msgs))
	for i := range msgs {
		b, err := json.Marshal(&msgs[i])
		if err != nil {
			return 0, fmt.Errorf("encoding message %d: %w", i, err)
		}
		payloads = append(payloads, b)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, queueKey(campaignID), payloads...)

		pipe.HSet(ctx, metadataKey(campaignID), map[string]any{
			"template":   meta.Template,
			"mailbox":    meta.MailboxID,
			"language":   meta.Language,
			"created_at": createdAt.Format(time.RFC3339Nano),
		})

		pipe.HIncrBy(ctx, statsKey(campaignID), "total", int64(len(msgs)))
		pipe.HSetNX(ctx, statsKey(campaignID), "sent", 0)
		pipe.HSetNX(ctx, statsKey(campaignID), "failed", 0)
		pipe.HSetNX(ctx, statsKey(campaignID), "created_at", now)

		if s.ttl > 0 {
			pipe.Expire(ctx, queueKey(campaignID), s.ttl)
			pipe.Expire(ctx, statsKey(campaignID), s.ttl)
			pipe.Expire(ctx, metadataKey(campaignID), s.ttl)
		}
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}

	return len(msgs), nil
}

func (s *RedisStore) DequeueOne(ctx context.Context, campaignID string) (*model.Message, error) {
	raw, err := s.rdb.LPop(ctx, queueKey(campaignID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}

	var msg model.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("decoding queued message for %q: %w", campaignID, err)
	}
	return &msg, nil
}

func (s *RedisStore) Stats(ctx context.Context, campaignID string) (*model.Stats, error) {
	fields, err := s.rdb.HGetAll(ctx, statsKey(campaignID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, campaignID)
	}

	pending, err := s.rdb.LLen(ctx, queueKey(campaignID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	st := &model.Stats{
		CampaignID: campaignID,
		Total:      parseCounter(fields["total"]),
		Sent:       parseCounter(fields["sent"]),
		Failed:     parseCounter(fields["failed"]),
		Pending:    pending,
	}

	if st.Total > 0 {
		pct := float64(st.Sent+st.Failed) / float64(st.Total) * 100
		st.Progress = math.Round(pct*100) / 100
	}

	st.State = model.StateQueued
	if st.Sent > 0 || st.Failed > 0 {
		st.State = model.StateProcessing
	}
	if st.Pending == 0 && st.Total > 0 {
		st.State = model.StateCompleted
	}

	if raw := fields["last_sent_at"]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			st.LastSentAt = &ts
		}
	}

	return st, nil
}

func (s *RedisStore) Metadata(ctx context.Context, campaignID string) (*model.Metadata, error) {
	fields, err := s.rdb.HGetAll(ctx, metadataKey(campaignID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, campaignID)
	}

	meta := &model.Metadata{
		Template:  fields["template"],
		MailboxID: fields["mailbox"],
		Language:  fields["language"],
	}
	if raw := fields["created_at"]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			meta.CreatedAt = ts
		}
	}
	return meta, nil
}

func (s *RedisStore) IncrementSent(ctx context.Context, campaignID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, statsKey(campaignID), "sent", 1)
		pipe.HSet(ctx, statsKey(campaignID), "last_sent_at", now)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) IncrementFailed(ctx context.Context, campaignID string) error {
	if err := s.rdb.HIncrBy(ctx, statsKey(campaignID), "failed", 1).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) ListActiveCampaigns(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.eachQueueKey(ctx, func(key string, length int64) {
		if length > 0 {
			ids = append(ids, strings.TrimPrefix(key, "campaign:"))
		}
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *RedisStore) TotalPending(ctx context.Context) (int64, error) {
	var total int64
	err := s.eachQueueKey(ctx, func(_ string, length int64) {
		total += length
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// eachQueueKey scans campaign:* and visits every queue key (stats and
// metadata keys are skipped) with its current length.
func (s *RedisStore) eachQueueKey(ctx context.Context, visit func(key string, length int64)) error {
	iter := s.rdb.Scan(ctx, 0, "campaign:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, ":stats") || strings.HasSuffix(key, ":metadata") {
			continue
		}
		length, err := s.rdb.LLen(ctx, key).Result()
		if err != nil {
			return unavailable(err)
		}
		visit(key, length)
	}
	if err := iter.Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func parseCounter(raw string) int64 {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

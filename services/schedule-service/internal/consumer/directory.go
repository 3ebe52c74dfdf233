package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/carebook/carebook/libs/db"
	"github.com/carebook/carebook/libs/kafkax"
	"github.com/carebook/carebook/services/schedule-service/internal/inbox"
	"github.com/carebook/carebook/services/schedule-service/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
)

// errPoison marks messages that can never succeed; they are logged and skipped.
var errPoison = errors.New("undecodable message")

func decodeProvider(msg kafka.Message) (storage.Provider, error) {
	var p storage.Provider
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return storage.Provider{}, fmt.Errorf("%w: %v", errPoison, err)
	}
	if p.ID == "" {
		return storage.Provider{}, fmt.Errorf("%w: %v", errPoison, storage.ErrProviderIDRequired)
	}
	return p, nil
}

// DirectoryStore applies one provider event exactly once. Apply reports false
// when eventID was already seen.
type DirectoryStore interface {
	Apply(ctx context.Context, meta kafkax.EventMeta, p storage.Provider) (bool, error)
}

type pgDirectoryStore struct {
	pool      *db.Pool
	inbox     *inbox.Repository
	providers *storage.ProviderRepository
}

// NewDirectoryStore records the inbox row and upserts the provider in one
// transaction.
func NewDirectoryStore(pool *db.Pool, inboxRepo *inbox.Repository, providers *storage.ProviderRepository) DirectoryStore {
	return &pgDirectoryStore{pool: pool, inbox: inboxRepo, providers: providers}
}

func (s *pgDirectoryStore) Apply(ctx context.Context, meta kafkax.EventMeta, p storage.Provider) (bool, error) {
	var fresh bool
	err := s.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		if fresh, err = s.inbox.Record(ctx, tx, meta.EventID, meta.EventType); err != nil || !fresh {
			return err
		}
		return s.providers.Upsert(ctx, tx, p)
	})
	return fresh, err
}

// DirectoryHandler keeps the local providers table in sync with
// accounts.provider.upserted.v1.
func DirectoryHandler(store DirectoryStore, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		p, err := decodeProvider(msg)
		if err != nil {
			logger.Warn("skipping provider event", "err", err, "offset", msg.Offset)
			return nil
		}
		meta := kafkax.ExtractEventMeta(msg)
		if meta.EventID == "" {
			logger.Warn("skipping provider event", "err", errPoison, "reason", "no event id", "offset", msg.Offset)
			return nil
		}
		fresh, err := store.Apply(ctx, meta, p)
		if err != nil {
			return err
		}
		if !fresh {
			logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		}
		return nil
	}
}

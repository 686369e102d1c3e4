package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/osmi-labs/cardlink/core"
	"github.com/uptrace/bun"
)

// SubscriberStore persists the local subscriber mirror keyed by the
// directory-assigned uuid. The bonus flag is the single source of truth for
// whether the one-time subscription bonus has been disbursed.
type SubscriberStore struct {
	db   *bun.DB
	repo repository.Repository[*subscriberRecord]
}

func NewSubscriberStore(db *bun.DB) (*SubscriberStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriberRecord](db, subscriberHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscriber repository wiring: %w", err)
		}
	}
	return &SubscriberStore{db: db, repo: repo}, nil
}

// UpsertIdentity inserts the subscriber row if the uuid is unseen. An
// existing row keeps its bonus flag: re-ingesting a card event must never
// reset an already-granted bonus. Only the uuid is mandatory; rows mirrored
// from the directory listing may carry no email.
func (s *SubscriberStore) UpsertIdentity(ctx context.Context, sub core.Subscriber) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: subscriber store is not configured")
	}
	subUUID := strings.TrimSpace(sub.UUID)
	if subUUID == "" {
		return fmt.Errorf("sqlstore: subscriber uuid is required")
	}
	now := time.Now().UTC()
	createdAt := sub.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	record := &subscriberRecord{
		ID:           uuid.NewString(),
		UUID:         subUUID,
		Email:        strings.TrimSpace(sub.Email),
		Phone:        strings.TrimSpace(sub.Phone),
		BonusGranted: sub.BonusGranted,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (uuid) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *SubscriberStore) Get(ctx context.Context, subUUID string) (core.Subscriber, error) {
	if s == nil || s.db == nil {
		return core.Subscriber{}, fmt.Errorf("sqlstore: subscriber store is not configured")
	}
	subUUID = strings.TrimSpace(subUUID)
	if subUUID == "" {
		return core.Subscriber{}, fmt.Errorf("sqlstore: subscriber uuid is required")
	}
	record := &subscriberRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("uuid = ?", subUUID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Subscriber{}, core.ErrSubscriberNotFound
	}
	if err != nil {
		return core.Subscriber{}, err
	}
	return subscriberRecordToDomain(record), nil
}

func (s *SubscriberStore) BonusGranted(ctx context.Context, subUUID string) (bool, error) {
	sub, err := s.Get(ctx, subUUID)
	if errors.Is(err, core.ErrSubscriberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return sub.BonusGranted, nil
}

// ClaimBonus flips the flag with a conditional update. It reports true only
// when this caller transitioned false -> true, so concurrent reconciliation
// passes cannot both win.
func (s *SubscriberStore) ClaimBonus(ctx context.Context, subUUID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: subscriber store is not configured")
	}
	subUUID = strings.TrimSpace(subUUID)
	if subUUID == "" {
		return false, fmt.Errorf("sqlstore: subscriber uuid is required")
	}
	result, err := s.db.NewUpdate().
		Model((*subscriberRecord)(nil)).
		Set("bonus_granted = ?", true).
		Set("updated_at = ?", time.Now().UTC()).
		Where("uuid = ?", subUUID).
		Where("bonus_granted = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (s *SubscriberStore) ReleaseBonus(ctx context.Context, subUUID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: subscriber store is not configured")
	}
	subUUID = strings.TrimSpace(subUUID)
	if subUUID == "" {
		return fmt.Errorf("sqlstore: subscriber uuid is required")
	}
	_, err := s.db.NewUpdate().
		Model((*subscriberRecord)(nil)).
		Set("bonus_granted = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("uuid = ?", subUUID).
		Exec(ctx)
	return err
}

func subscriberRecordToDomain(record *subscriberRecord) core.Subscriber {
	if record == nil {
		return core.Subscriber{}
	}
	return core.Subscriber{
		UUID:         record.UUID,
		Email:        record.Email,
		Phone:        record.Phone,
		BonusGranted: record.BonusGranted,
		CreatedAt:    record.CreatedAt,
	}
}

var _ core.SubscriberStore = (*SubscriberStore)(nil)

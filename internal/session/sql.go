package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/packfinderz-storefront/pkg/errors"
	"github.com/angelmondragon/packfinderz-storefront/pkg/security"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is the sqlite row holding one slot's sealed session.
type Record struct {
	Slot      string `gorm:"primaryKey"`
	Payload   string `gorm:"not null"`
	UpdatedAt time.Time
}

func (Record) TableName() string {
	return "sessions"
}

// SQLStore persists the session as a single row keyed by slot.
type SQLStore struct {
	db     *gorm.DB
	slot   string
	sealer *security.Sealer
}

// NewSQLStore expects the Record table to be migrated already.
func NewSQLStore(db *gorm.DB, slot string, sealer *security.Sealer) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if slot == "" {
		return nil, fmt.Errorf("slot is required")
	}
	return &SQLStore{db: db, slot: slot, sealer: sealer}, nil
}

func (s *SQLStore) Get(ctx context.Context) (Session, bool, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("slot = ?", s.slot).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read session")
	}
	sess, err := decodeSession(s.sealer, rec.Payload)
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

func (s *SQLStore) Set(ctx context.Context, sess Session) error {
	payload, err := encodeSession(s.sealer, sess)
	if err != nil {
		return err
	}
	rec := Record{Slot: s.slot, Payload: payload, UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write session")
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("slot = ?", s.slot).Delete(&Record{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear session")
	}
	return nil
}

package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gridpick_backend/internal/model"
)

type ProfileStore struct {
	db *gorm.DB
}

func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) SetMembership(ctx context.Context, userID, membership string) error {
	profile := &model.Profile{
		UserID:     userID,
		Membership: membership,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"membership", "updated_at"}),
	}).Create(profile).Error
}

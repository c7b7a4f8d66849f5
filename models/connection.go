package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
	"gorm.io/gorm"
)

// ConnectionRecord stores OAuth-style credentials for the accounting provider.
// Records are written by the OAuth grant flow (external) and removed on
// disconnect; the newest row per owner is authoritative. ExpiresAt is kept as
// the provider returned it (RFC3339 text) and parsed at health-check time so a
// mangled value degrades to needs_reauth instead of poisoning reads.
type ConnectionRecord struct {
	ID           int       `gorm:"primary_key" json:"id"`
	OwnerId      string    `gorm:"index;not null" json:"owner_id"`
	Provider     string    `gorm:"size:50;not null;default:qbo" json:"provider"`
	ExpiresAt    string    `gorm:"size:64" json:"expires_at"`
	RefreshToken string    `gorm:"type:text" json:"refresh_token"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GetLatestConnectionRecord returns the newest record for the owner, or
// (nil, nil) when the owner has never connected.
func GetLatestConnectionRecord(ctx context.Context, ownerId string) (*ConnectionRecord, error) {
	var rec ConnectionRecord
	err := config.GetDB().WithContext(ctx).
		Where("owner_id = ?", ownerId).
		Order("created_at DESC, id DESC").
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// DeleteConnectionRecords invalidates the owner's credentials (disconnect).
func DeleteConnectionRecords(ctx context.Context, ownerId string) error {
	return config.GetDB().WithContext(ctx).
		Where("owner_id = ?", ownerId).
		Delete(&ConnectionRecord{}).Error
}

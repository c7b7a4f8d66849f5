package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
)

// SyncRecord tracks one attempt to push one local entity to the remote
// accounting provider. Rows are append-only history: a retry creates a new
// pending row, it never rewrites an old one. Status is advanced by the push
// mechanism (pending -> processing -> success|error); this engine only ever
// inserts pending rows and reads snapshots.
type SyncRecord struct {
	ID           int        `gorm:"primary_key" json:"id"`
	CompanyId    string     `gorm:"index:idx_sync_records_entity,priority:1;not null" json:"company_id"`
	EntityType   EntityType `gorm:"index:idx_sync_records_entity,priority:2;size:20;not null" json:"entity_type"`
	EntityId     int        `gorm:"index:idx_sync_records_entity,priority:3;not null" json:"entity_id"`
	Provider     string     `gorm:"index:idx_sync_records_entity,priority:4;size:50;not null" json:"provider"`
	Status       SyncStatus `gorm:"size:20;not null;default:pending" json:"status"`
	ErrorMessage *string    `gorm:"type:text" json:"error_message"`
	// OpenKey is "<entity_type>:<entity_id>:<provider>:<company_id>" while the
	// row is non-terminal and NULL once it reaches success/error. The unique
	// index on it rejects a second open attempt for the same entity (MySQL
	// permits any number of NULLs).
	OpenKey      *string    `gorm:"uniqueIndex;size:255" json:"-"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func openKeyFor(companyId string, entityType EntityType, entityId int, provider string) string {
	return fmt.Sprintf("%s:%d:%s:%s", entityType, entityId, provider, companyId)
}

// CreateSyncRecord inserts a pending attempt for the entity. The open-key
// unique index makes a duplicate insert fail with a duplicate-key error, which
// callers treat as "already queued".
func CreateSyncRecord(ctx context.Context, companyId string, entityType EntityType, entityId int, provider string) (*SyncRecord, error) {
	key := openKeyFor(companyId, entityType, entityId, provider)
	rec := SyncRecord{
		CompanyId:  companyId,
		EntityType: entityType,
		EntityId:   entityId,
		Provider:   provider,
		Status:     SyncStatusPending,
		OpenKey:    &key,
	}
	if err := config.GetDB().WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// HasOpenSyncRecord reports whether a pending/processing attempt already
// exists for the entity.
func HasOpenSyncRecord(ctx context.Context, companyId string, entityType EntityType, entityId int, provider string) (bool, error) {
	var count int64
	err := config.GetDB().WithContext(ctx).
		Model(&SyncRecord{}).
		Where("company_id = ? AND entity_type = ? AND entity_id = ? AND provider = ?", companyId, entityType, entityId, provider).
		Where("status IN ?", []SyncStatus{SyncStatusPending, SyncStatusProcessing}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MarkSyncRecordStatus is the write path the push mechanism uses to advance a
// row. Terminal transitions clear the open key so the entity becomes eligible
// for a new attempt.
func MarkSyncRecordStatus(ctx context.Context, recordId int, status SyncStatus, errorMessage *string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
	}
	if status.IsTerminal() {
		now := time.Now()
		updates["open_key"] = nil
		updates["last_synced_at"] = &now
	}
	return config.GetDB().WithContext(ctx).
		Model(&SyncRecord{}).
		Where("id = ?", recordId).
		Updates(updates).Error
}

// ListSyncRecords returns the full attempt history for a company, newest last.
// Statistics are computed over this snapshot in memory.
func ListSyncRecords(ctx context.Context, companyId string) ([]SyncRecord, error) {
	var records []SyncRecord
	err := config.GetDB().WithContext(ctx).
		Where("company_id = ?", companyId).
		Order("id ASC").
		Find(&records).Error
	return records, err
}

// LatestSyncRecords returns the newest row per (entity_type, entity_id,
// provider): the "current status" view of the append-only history.
func LatestSyncRecords(ctx context.Context, companyId string) ([]SyncRecord, error) {
	db := config.GetDB().WithContext(ctx)
	sub := db.Model(&SyncRecord{}).
		Select("MAX(id)").
		Where("company_id = ?", companyId).
		Group("entity_type, entity_id, provider")

	var records []SyncRecord
	err := db.Where("id IN (?)", sub).Order("id ASC").Find(&records).Error
	return records, err
}

// CountOpenSyncRecords counts rows that have not reached a terminal status.
func CountOpenSyncRecords(ctx context.Context, companyId string) (int64, error) {
	var count int64
	err := config.GetDB().WithContext(ctx).
		Model(&SyncRecord{}).
		Where("company_id = ?", companyId).
		Where("status IN ?", []SyncStatus{SyncStatusPending, SyncStatusProcessing}).
		Count(&count).Error
	return count, err
}

package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
)

// TriggerAuditLog records every manual sync trigger. Append-only; nothing in
// this engine reads it back.
type TriggerAuditLog struct {
	ID           int       `gorm:"primary_key" json:"id"`
	OwnerId      string    `gorm:"index;not null" json:"owner_id"`
	FunctionName string    `gorm:"size:100;not null" json:"function_name"`
	PayloadJSON  []byte    `gorm:"type:json" json:"payload"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func CreateTriggerAuditLog(ctx context.Context, ownerId string, functionName string, payload any) error {
	payloadJSON, _ := json.Marshal(payload)
	row := TriggerAuditLog{
		OwnerId:      ownerId,
		FunctionName: functionName,
		PayloadJSON:  payloadJSON,
	}
	return config.GetDB().WithContext(ctx).Create(&row).Error
}

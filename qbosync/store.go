package qbosync

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
)

// gormEntitySource reads the per-entity-type source tables. One query shape
// for all six types: id rows scoped to the company with a NULL qbo_id.
type gormEntitySource struct{}

var sourceTables = map[models.EntityType]string{
	models.EntityTypeVendor:  "vendors",
	models.EntityTypeClient:  "clients",
	models.EntityTypeProject: "projects",
	models.EntityTypeBill:    "bills",
	models.EntityTypeInvoice: "invoices",
	models.EntityTypePayment: "payments",
}

func (gormEntitySource) SelectUnlinked(ctx context.Context, companyId string, entityType models.EntityType, limit int) ([]int, error) {
	table, ok := sourceTables[entityType]
	if !ok {
		return nil, fmt.Errorf("no source table for entity type %q", entityType)
	}

	var ids []int
	err := config.GetDB().WithContext(ctx).
		Table(table).
		Select("id").
		Where("company_id = ? AND qbo_id IS NULL", companyId).
		Order("id ASC").
		Limit(limit).
		Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

type gormRecordStore struct{}

func (gormRecordStore) HasOpen(ctx context.Context, companyId string, entityType models.EntityType, entityId int, provider string) (bool, error) {
	return models.HasOpenSyncRecord(ctx, companyId, entityType, entityId, provider)
}

func (gormRecordStore) CreatePending(ctx context.Context, companyId string, entityType models.EntityType, entityId int, provider string) error {
	_, err := models.CreateSyncRecord(ctx, companyId, entityType, entityId, provider)
	if isDuplicateKeyErr(err) {
		return ErrAlreadyQueued
	}
	return err
}

func (gormRecordStore) CountOpen(ctx context.Context, companyId string) (int64, error) {
	return models.CountOpenSyncRecords(ctx, companyId)
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

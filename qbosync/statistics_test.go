package qbosync

import (
	"testing"

	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
	"github.com/stretchr/testify/assert"
)

func rec(entityType models.EntityType, status models.SyncStatus) models.SyncRecord {
	return models.SyncRecord{EntityType: entityType, Status: status}
}

func TestComputeTotalsEmptySnapshot(t *testing.T) {
	counts := ComputeTotals(nil)
	assert.Equal(t, StatusCounts{}, counts)
	assert.Equal(t, 0, SuccessRate(counts.Success, counts.Total))
}

func TestComputeTotalsCountsEveryStatus(t *testing.T) {
	records := []models.SyncRecord{
		rec(models.EntityTypeVendor, models.SyncStatusSuccess),
		rec(models.EntityTypeVendor, models.SyncStatusSuccess),
		rec(models.EntityTypeBill, models.SyncStatusError),
		rec(models.EntityTypeBill, models.SyncStatusPending),
		rec(models.EntityTypeInvoice, models.SyncStatusProcessing),
	}

	counts := ComputeTotals(records)
	assert.Equal(t, StatusCounts{Total: 5, Success: 2, Error: 1, Pending: 1, Processing: 1}, counts)
}

func TestComputeByEntityTypeGroups(t *testing.T) {
	records := []models.SyncRecord{
		rec(models.EntityTypeVendor, models.SyncStatusSuccess),
		rec(models.EntityTypeVendor, models.SyncStatusError),
		rec(models.EntityTypeBill, models.SyncStatusSuccess),
	}

	byType := ComputeByEntityType(records)
	assert.Len(t, byType, 2)
	assert.Equal(t, StatusCounts{Total: 2, Success: 1, Error: 1}, byType[models.EntityTypeVendor])
	assert.Equal(t, StatusCounts{Total: 1, Success: 1}, byType[models.EntityTypeBill])
}

func TestComputeByEntityTypeSumsToTotals(t *testing.T) {
	records := []models.SyncRecord{
		rec(models.EntityTypeVendor, models.SyncStatusSuccess),
		rec(models.EntityTypeVendor, models.SyncStatusError),
		rec(models.EntityTypeClient, models.SyncStatusPending),
		rec(models.EntityTypeProject, models.SyncStatusProcessing),
		rec(models.EntityTypeBill, models.SyncStatusSuccess),
		rec(models.EntityTypeBill, models.SyncStatusError),
		rec(models.EntityTypeInvoice, models.SyncStatusSuccess),
		rec(models.EntityTypePayment, models.SyncStatusPending),
	}

	var summed StatusCounts
	for _, counts := range ComputeByEntityType(records) {
		summed.Total += counts.Total
		summed.Success += counts.Success
		summed.Error += counts.Error
		summed.Pending += counts.Pending
		summed.Processing += counts.Processing
	}
	assert.Equal(t, ComputeTotals(records), summed)
}

func TestSuccessRateRounding(t *testing.T) {
	assert.Equal(t, 0, SuccessRate(0, 0))
	assert.Equal(t, 75, SuccessRate(3, 4))
	assert.Equal(t, 33, SuccessRate(1, 3))
	assert.Equal(t, 67, SuccessRate(2, 3))
	assert.Equal(t, 100, SuccessRate(5, 5))
}

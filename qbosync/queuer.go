package qbosync

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
	"github.com/sirupsen/logrus"
)

const DefaultBatchSize = 50

// ErrAlreadyQueued is returned by a RecordStore when an open attempt for the
// same entity exists (duplicate open key).
var ErrAlreadyQueued = errors.New("sync attempt already queued")

// EntitySource lists source rows of one entity type that have no remote
// linkage id yet.
type EntitySource interface {
	SelectUnlinked(ctx context.Context, companyId string, entityType models.EntityType, limit int) ([]int, error)
}

// RecordStore is the sync-attempt side of the queuer: insert pending rows and
// answer open-attempt questions.
type RecordStore interface {
	HasOpen(ctx context.Context, companyId string, entityType models.EntityType, entityId int, provider string) (bool, error)
	CreatePending(ctx context.Context, companyId string, entityType models.EntityType, entityId int, provider string) error
	CountOpen(ctx context.Context, companyId string) (int64, error)
}

// Queuer selects unlinked source entities and inserts pending sync records,
// bounded by a batch size. Failures are reported as result strings, never
// panics, so the bulk trigger can isolate them per entity type.
type Queuer struct {
	Source   EntitySource
	Records  RecordStore
	Provider string
	Logger   *logrus.Logger
}

func NewQueuer(logger *logrus.Logger) *Queuer {
	return &Queuer{
		Source:   gormEntitySource{},
		Records:  gormRecordStore{},
		Provider: models.ProviderQBO,
		Logger:   logger,
	}
}

// Enqueue queues up to batchSize unlinked entities of one type. Entities that
// already have an open (pending/processing) attempt are skipped rather than
// queued twice; a duplicate-key race on insert is treated the same way.
func (q *Queuer) Enqueue(ctx context.Context, companyId string, entityType models.EntityType, batchSize int) EnqueueResult {
	result := EnqueueResult{EntityType: entityType}
	if !models.IsValidEntityType(entityType) {
		result.Error = "unknown entity type: " + string(entityType)
		return result
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	ids, err := q.Source.SelectUnlinked(ctx, companyId, entityType, batchSize)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	dedupe := config.StrictSyncDedupe()
	for _, entityId := range ids {
		if dedupe {
			open, err := q.Records.HasOpen(ctx, companyId, entityType, entityId, q.Provider)
			if err != nil {
				result.Error = err.Error()
				return result
			}
			if open {
				continue
			}
		}

		err := q.Records.CreatePending(ctx, companyId, entityType, entityId, q.Provider)
		if errors.Is(err, ErrAlreadyQueued) {
			continue
		}
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.Queued++
	}
	return result
}

// TriggerBulkSync queues every entity type in the fixed dependency order:
// vendor, client, project, bill, invoice, payment. One type's failure is
// collected and the remaining types are still attempted. The order only
// sequences queuing; it does not wait for upstream remote creation, and an
// upstream error does not halt downstream types.
func (q *Queuer) TriggerBulkSync(ctx context.Context, companyId string, batchSize int) BulkSyncResult {
	bulk := BulkSyncResult{Results: make([]EnqueueResult, 0, len(models.EntityTypeSyncOrder))}
	for _, entityType := range models.EntityTypeSyncOrder {
		result := q.Enqueue(ctx, companyId, entityType, batchSize)
		if result.Error != "" && q.Logger != nil {
			q.Logger.WithFields(logrus.Fields{
				"module":     "qbosync",
				"company_id": companyId,
				"entityType": entityType,
			}).Error("bulk sync queuing failed for entity type: " + result.Error)
		}
		bulk.Results = append(bulk.Results, result)
		bulk.TotalQueued += result.Queued
	}
	return bulk
}

package qbosync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEntitySource struct {
	// unlinked ids per entity type
	unlinked map[models.EntityType][]int
	failFor  map[models.EntityType]error
	calls    []models.EntityType
}

func (s *fakeEntitySource) SelectUnlinked(ctx context.Context, companyId string, entityType models.EntityType, limit int) ([]int, error) {
	s.calls = append(s.calls, entityType)
	if err := s.failFor[entityType]; err != nil {
		return nil, err
	}
	ids := s.unlinked[entityType]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type fakeRecordStore struct {
	open    map[string]bool
	created []string
	dupOn   map[string]bool
}

func storeKey(entityType models.EntityType, entityId int) string {
	return fmt.Sprintf("%s:%d", entityType, entityId)
}

func (s *fakeRecordStore) HasOpen(ctx context.Context, companyId string, entityType models.EntityType, entityId int, provider string) (bool, error) {
	return s.open[storeKey(entityType, entityId)], nil
}

func (s *fakeRecordStore) CreatePending(ctx context.Context, companyId string, entityType models.EntityType, entityId int, provider string) error {
	key := storeKey(entityType, entityId)
	if s.dupOn[key] {
		return ErrAlreadyQueued
	}
	s.created = append(s.created, key)
	return nil
}

func (s *fakeRecordStore) CountOpen(ctx context.Context, companyId string) (int64, error) {
	var n int64
	for _, isOpen := range s.open {
		if isOpen {
			n++
		}
	}
	return n, nil
}

func newTestQueuer(source *fakeEntitySource, store *fakeRecordStore) *Queuer {
	return &Queuer{Source: source, Records: store, Provider: models.ProviderQBO}
}

func TestEnqueueRespectsBatchSize(t *testing.T) {
	ids := make([]int, 120)
	for i := range ids {
		ids[i] = i + 1
	}
	source := &fakeEntitySource{unlinked: map[models.EntityType][]int{models.EntityTypeBill: ids}}
	store := &fakeRecordStore{}

	result := newTestQueuer(source, store).Enqueue(context.Background(), "co-1", models.EntityTypeBill, 50)

	require.Empty(t, result.Error)
	assert.Equal(t, 50, result.Queued)
	assert.Len(t, store.created, 50)
}

func TestEnqueueOnlyQueuesUnlinkedEntities(t *testing.T) {
	// 10 bills exist, 6 already carry a remote id: the source only surfaces
	// the 4 unlinked ones.
	source := &fakeEntitySource{unlinked: map[models.EntityType][]int{
		models.EntityTypeBill: {2, 5, 7, 9},
	}}
	store := &fakeRecordStore{}

	result := newTestQueuer(source, store).Enqueue(context.Background(), "co-1", models.EntityTypeBill, 50)

	require.Empty(t, result.Error)
	assert.Equal(t, 4, result.Queued)
	assert.ElementsMatch(t, []string{"bill:2", "bill:5", "bill:7", "bill:9"}, store.created)
}

func TestEnqueueSkipsOpenAttempts(t *testing.T) {
	source := &fakeEntitySource{unlinked: map[models.EntityType][]int{
		models.EntityTypeVendor: {1, 2, 3},
	}}
	store := &fakeRecordStore{open: map[string]bool{"vendor:2": true}}

	result := newTestQueuer(source, store).Enqueue(context.Background(), "co-1", models.EntityTypeVendor, 50)

	require.Empty(t, result.Error)
	assert.Equal(t, 2, result.Queued)
	assert.NotContains(t, store.created, "vendor:2")
}

func TestEnqueueTreatsDuplicateInsertAsQueued(t *testing.T) {
	source := &fakeEntitySource{unlinked: map[models.EntityType][]int{
		models.EntityTypeVendor: {1, 2},
	}}
	store := &fakeRecordStore{dupOn: map[string]bool{"vendor:1": true}}

	result := newTestQueuer(source, store).Enqueue(context.Background(), "co-1", models.EntityTypeVendor, 50)

	require.Empty(t, result.Error)
	assert.Equal(t, 1, result.Queued)
}

func TestEnqueueRejectsUnknownEntityType(t *testing.T) {
	result := newTestQueuer(&fakeEntitySource{}, &fakeRecordStore{}).
		Enqueue(context.Background(), "co-1", models.EntityType("ledger"), 10)

	assert.Zero(t, result.Queued)
	assert.Contains(t, result.Error, "unknown entity type")
}

func TestTriggerBulkSyncQueuesInDependencyOrder(t *testing.T) {
	source := &fakeEntitySource{unlinked: map[models.EntityType][]int{
		models.EntityTypeVendor:  {1},
		models.EntityTypeClient:  {2},
		models.EntityTypeProject: {3},
		models.EntityTypeBill:    {4},
		models.EntityTypeInvoice: {5},
		models.EntityTypePayment: {6},
	}}
	store := &fakeRecordStore{}

	bulk := newTestQueuer(source, store).TriggerBulkSync(context.Background(), "co-1", 50)

	assert.Equal(t, []models.EntityType{
		models.EntityTypeVendor,
		models.EntityTypeClient,
		models.EntityTypeProject,
		models.EntityTypeBill,
		models.EntityTypeInvoice,
		models.EntityTypePayment,
	}, source.calls)
	assert.Equal(t, 6, bulk.TotalQueued)
	require.Len(t, bulk.Results, 6)
	for _, result := range bulk.Results {
		assert.Empty(t, result.Error)
		assert.Equal(t, 1, result.Queued)
	}
}

func TestTriggerBulkSyncContinuesPastFailedType(t *testing.T) {
	source := &fakeEntitySource{
		unlinked: map[models.EntityType][]int{
			models.EntityTypeVendor:  {1},
			models.EntityTypeInvoice: {5},
		},
		failFor: map[models.EntityType]error{
			models.EntityTypeClient: errors.New("source table unavailable"),
		},
	}
	store := &fakeRecordStore{}

	bulk := newTestQueuer(source, store).TriggerBulkSync(context.Background(), "co-1", 50)

	// All six types were still attempted.
	assert.Len(t, source.calls, 6)
	require.Len(t, bulk.Results, 6)
	assert.Equal(t, "source table unavailable", bulk.Results[1].Error)
	assert.Empty(t, bulk.Results[0].Error)
	assert.Equal(t, 2, bulk.TotalQueued)
}

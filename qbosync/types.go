package qbosync

import "bitbucket.org/mmdatafocus/bizmanage_backend/models"

// EntityTypeAll is accepted by the trigger endpoint to mean "bulk sync every
// entity type in dependency order".
const EntityTypeAll = "all"

type TriggerSyncRequest struct {
	CompanyId  string `json:"companyId" validate:"required"`
	EntityType string `json:"entityType" validate:"required,oneof=vendor client project bill invoice payment all"`
	BatchSize  int    `json:"batchSize" validate:"omitempty,gt=0,lte=500"`
}

type RetryRequest struct {
	EntityType string `json:"entityType" validate:"omitempty,oneof=vendor bill invoice payment"`
}

// SyncCallbackRequest is posted by the push functions to advance a sync
// record. Terminal statuses release the entity for future attempts.
type SyncCallbackRequest struct {
	RecordId     int     `json:"recordId" validate:"required,gt=0"`
	Status       string  `json:"status" validate:"required,oneof=processing success error"`
	ErrorMessage *string `json:"errorMessage"`
}

// EnqueueResult is one entity type's queuing outcome. Error carries a message
// instead of failing the whole call so sibling types keep going.
type EnqueueResult struct {
	EntityType models.EntityType `json:"entityType"`
	Queued     int               `json:"queued"`
	Error      string            `json:"error,omitempty"`
}

type BulkSyncResult struct {
	Results     []EnqueueResult `json:"results"`
	TotalQueued int             `json:"totalQueued"`
}

// StatusCounts is the aggregate shape shared by the totals and per-entity-type
// statistics read models.
type StatusCounts struct {
	Total      int `json:"total"`
	Success    int `json:"success"`
	Error      int `json:"error"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
}

type StatisticsResponse struct {
	Totals       StatusCounts                       `json:"totals"`
	ByEntityType map[models.EntityType]StatusCounts `json:"byEntityType"`
	SuccessRate  int                                `json:"successRate"`
}

type ConnectionStatusResponse struct {
	IsConnected bool                    `json:"isConnected"`
	Status      models.ConnectionStatus `json:"status"`
}

type DispatchResult struct {
	EntityType models.EntityType `json:"entityType"`
	Dispatched bool              `json:"dispatched"`
	Error      string            `json:"error,omitempty"`
}

package models

// EntityType is one of the locally-owned record kinds eligible for remote
// synchronization against the accounting provider.
type EntityType string

const (
	EntityTypeVendor  EntityType = "vendor"
	EntityTypeClient  EntityType = "client"
	EntityTypeProject EntityType = "project"
	EntityTypeBill    EntityType = "bill"
	EntityTypeInvoice EntityType = "invoice"
	EntityTypePayment EntityType = "payment"
)

// EntityTypeSyncOrder is the fixed queuing order. Dependents (bills, invoices,
// payments) reference remotely-created vendors/clients/projects, so upstream
// types are queued first. The order approximates the dependency graph; it is
// not a coordinated wait on remote creation.
var EntityTypeSyncOrder = []EntityType{
	EntityTypeVendor,
	EntityTypeClient,
	EntityTypeProject,
	EntityTypeBill,
	EntityTypeInvoice,
	EntityTypePayment,
}

func IsValidEntityType(t EntityType) bool {
	for _, known := range EntityTypeSyncOrder {
		if t == known {
			return true
		}
	}
	return false
}

const ProviderQBO = "qbo"

type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusProcessing SyncStatus = "processing"
	SyncStatusSuccess    SyncStatus = "success"
	SyncStatusError      SyncStatus = "error"
)

// IsTerminal reports whether the status can no longer advance. Error rows are
// retried by queuing new attempts, never by mutating the old row.
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusSuccess || s == SyncStatusError
}

type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusNeedsReauth  ConnectionStatus = "needs_reauth"
	ConnectionStatusNotConnected ConnectionStatus = "not_connected"
)

type MilestoneDueType string

const (
	MilestoneDueTypeTime  MilestoneDueType = "time"
	MilestoneDueTypeEvent MilestoneDueType = "event"
)

type MilestoneStatus string

const (
	MilestoneStatusPending   MilestoneStatus = "pending"
	MilestoneStatusCompleted MilestoneStatus = "completed"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusSent  InvoiceStatus = "sent"
	InvoiceStatusPaid  InvoiceStatus = "paid"
	InvoiceStatusVoid  InvoiceStatus = "void"
)

const (
	MilestoneLogActionAutoInvoiced = "auto_invoiced"

	AutoReasonDueDateReached  = "due_date_reached"
	AutoReasonStatusCompleted = "status_completed"
)

const (
	UserRoleAdmin  = "admin"
	UserRoleMember = "member"
)

package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
	"bitbucket.org/mmdatafocus/bizmanage_backend/utils"
	"github.com/go-sql-driver/mysql"
)

// gorm-backed defaults wired by NewMilestoneScheduler. Tests swap these for
// in-memory fakes.

type gormMilestoneStore struct{}

func (s *gormMilestoneStore) DueMilestones(ctx context.Context, asOf time.Time) ([]models.Milestone, error) {
	return models.DueMilestones(ctx, asOf)
}

func (s *gormMilestoneStore) Claim(ctx context.Context, milestoneId int, now time.Time, staleBefore time.Time) (bool, error) {
	return models.ClaimMilestone(ctx, milestoneId, now, staleBefore)
}

func (s *gormMilestoneStore) Release(ctx context.Context, milestoneId int) error {
	return models.ReleaseMilestoneClaim(ctx, milestoneId)
}

func (s *gormMilestoneStore) Complete(ctx context.Context, milestoneId int, now time.Time) error {
	return models.CompleteMilestone(ctx, milestoneId, now)
}

func (s *gormMilestoneStore) Log(ctx context.Context, milestoneId int, invoiceId int, autoReason string) error {
	return models.CreateMilestoneLog(ctx, milestoneId, invoiceId, autoReason)
}

type gormProjectStore struct{}

func (s *gormProjectStore) GetProject(ctx context.Context, projectId int) (*models.Project, error) {
	return models.GetProjectById(ctx, projectId)
}

type gormInvoiceCreator struct{}

func (c *gormInvoiceCreator) CreateInvoice(ctx context.Context, input *models.NewInvoice) (*models.Invoice, error) {
	return models.CreateInvoice(ctx, input)
}

// syncRecordForwarder queues the new invoice for remote push by inserting a
// pending sync record, same as a manual trigger would. An attempt already
// open for the invoice counts as forwarded.
type syncRecordForwarder struct{}

func (f *syncRecordForwarder) ForwardInvoice(ctx context.Context, companyId string, invoiceId int) error {
	ctx = utils.SetCompanyIdInContext(ctx, companyId)

	open, err := models.HasOpenSyncRecord(ctx, companyId, models.EntityTypeInvoice, invoiceId, models.ProviderQBO)
	if err != nil {
		return err
	}
	if open {
		return nil
	}
	if _, err := models.CreateSyncRecord(ctx, companyId, models.EntityTypeInvoice, invoiceId, models.ProviderQBO); err != nil {
		if isDuplicateKeyErr(err) {
			return nil
		}
		return err
	}
	return nil
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// pubsubNotifier tells the project owner an invoice was generated on their
// behalf.
type pubsubNotifier struct{}

func (n *pubsubNotifier) NotifyInvoiced(ctx context.Context, ownerId string, milestone *models.Milestone, invoice *models.Invoice) error {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	_, err := config.PublishNotification(ctx, config.NotificationMessage{
		OwnerId:       ownerId,
		Kind:          "milestone_auto_invoiced",
		ReferenceId:   invoice.ID,
		ReferenceType: "invoice",
		Body:          fmt.Sprintf("Invoice %s was generated for milestone %q", invoice.InvoiceNumber, milestone.Name),
		OccurredAt:    time.Now().UTC(),
		CorrelationId: correlationId,
	})
	return err
}

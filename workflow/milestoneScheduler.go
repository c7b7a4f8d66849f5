package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
	"bitbucket.org/mmdatafocus/bizmanage_backend/qbosync"
	"bitbucket.org/mmdatafocus/bizmanage_backend/utils"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// MilestoneStore is the milestone persistence surface the scheduler needs.
type MilestoneStore interface {
	DueMilestones(ctx context.Context, asOf time.Time) ([]models.Milestone, error)
	Claim(ctx context.Context, milestoneId int, now time.Time, staleBefore time.Time) (bool, error)
	Release(ctx context.Context, milestoneId int) error
	Complete(ctx context.Context, milestoneId int, now time.Time) error
	Log(ctx context.Context, milestoneId int, invoiceId int, autoReason string) error
}

type ProjectStore interface {
	GetProject(ctx context.Context, projectId int) (*models.Project, error)
}

type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, input *models.NewInvoice) (*models.Invoice, error)
}

// SyncForwarder queues a freshly created invoice for remote push. Forwarding
// is best-effort: a failure here must not roll back the milestone.
type SyncForwarder interface {
	ForwardInvoice(ctx context.Context, companyId string, invoiceId int) error
}

// ConnectionChecker gates forwarding: an invoice is only queued for push when
// the owning company has a usable provider connection.
type ConnectionChecker interface {
	IsUsable(ctx context.Context, ownerId string) (bool, error)
}

type Notifier interface {
	NotifyInvoiced(ctx context.Context, ownerId string, milestone *models.Milestone, invoice *models.Invoice) error
}

// RunResult summarizes one scheduler pass. Processed counts milestones that
// made it all the way through completion; in dry-run mode it counts the
// milestones that would have been processed.
type RunResult struct {
	Processed int       `json:"processed"`
	DryRun    bool      `json:"dry_run"`
	Errors    []string  `json:"errors"`
	RanAt     time.Time `json:"ran_at"`
}

// MilestoneScheduler turns due milestones into draft invoices. Each milestone
// is processed independently: a failure releases that milestone's claim,
// records an error string, and the loop moves on.
type MilestoneScheduler struct {
	Milestones  MilestoneStore
	Projects    ProjectStore
	Invoices    InvoiceCreator
	Forwarder   SyncForwarder
	Connections ConnectionChecker
	Notifier    Notifier

	Logger *logrus.Logger
	Locker *redislock.Client
	Now    func() time.Time

	// ClaimTTL bounds how long a claim blocks other runs; claims older than
	// this are treated as abandoned by a crashed run.
	ClaimTTL       time.Duration
	InvoiceDueDays int
}

const schedulerLockKey = "milestone-scheduler:run"

var ErrSchedulerBusy = errors.New("another milestone scheduler run is in progress")

func NewMilestoneScheduler(logger *logrus.Logger, locker *redislock.Client) *MilestoneScheduler {
	return &MilestoneScheduler{
		Milestones:     &gormMilestoneStore{},
		Projects:       &gormProjectStore{},
		Invoices:       &gormInvoiceCreator{},
		Forwarder:      &syncRecordForwarder{},
		Connections:    qbosync.NewConnectionHealthMonitor(),
		Notifier:       &pubsubNotifier{},
		Logger:         logger,
		Locker:         locker,
		Now:            time.Now,
		ClaimTTL:       10 * time.Minute,
		InvoiceDueDays: 30,
	}
}

// Run executes one scheduling pass. Only errors that prevent the pass from
// running at all (lock held, due-milestone query failure) are returned; per-
// milestone failures land in RunResult.Errors.
func (s *MilestoneScheduler) Run(ctx context.Context, dryRun bool) (*RunResult, error) {
	now := s.Now().UTC()
	result := &RunResult{DryRun: dryRun, Errors: []string{}, RanAt: now}

	if s.Locker != nil {
		lock, err := s.Locker.Obtain(ctx, schedulerLockKey, s.ClaimTTL, nil)
		if err != nil {
			if errors.Is(err, redislock.ErrNotObtained) {
				return nil, ErrSchedulerBusy
			}
			return nil, err
		}
		defer lock.Release(context.WithoutCancel(ctx))
	}

	// The pass spans every tenant; per-milestone work scopes itself by the
	// owning project's company.
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	due, err := s.Milestones.DueMilestones(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("select due milestones: %w", err)
	}

	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"module":   "workflow",
			"function": "MilestoneScheduler.Run",
			"due":      len(due),
			"dry_run":  dryRun,
		}).Info("milestone scheduler pass started")
	}

	if dryRun {
		result.Processed = len(due)
		return result, nil
	}

	for i := range due {
		milestone := due[i]
		notifyErr, err := s.processOne(ctx, &milestone, now)
		if err != nil {
			if errors.Is(err, errMilestoneClaimed) {
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("milestone %d: %v", milestone.ID, err))
			if s.Logger != nil {
				s.Logger.WithFields(logrus.Fields{
					"module":       "workflow",
					"function":     "MilestoneScheduler.processOne",
					"milestone_id": milestone.ID,
				}).WithError(err).Error("milestone processing failed")
			}
			continue
		}
		result.Processed++
		// The milestone is completed and invoiced by now; a notification
		// failure is reported without undoing any of that.
		if notifyErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("milestone %d: notify: %v", milestone.ID, notifyErr))
		}
	}

	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"module":    "workflow",
			"function":  "MilestoneScheduler.Run",
			"processed": result.Processed,
			"errors":    len(result.Errors),
		}).Info("milestone scheduler pass finished")
	}
	return result, nil
}

// errMilestoneClaimed marks a milestone already leased by another run; it is
// skipped silently rather than reported.
var errMilestoneClaimed = errors.New("milestone claimed by another run")

func (s *MilestoneScheduler) processOne(ctx context.Context, milestone *models.Milestone, now time.Time) (notifyErr error, err error) {
	staleBefore := now.Add(-s.ClaimTTL)
	claimed, err := s.Milestones.Claim(ctx, milestone.ID, now, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		return nil, errMilestoneClaimed
	}
	// The claim is released on any failure below so a later run can retry.
	defer func() {
		if err != nil && !errors.Is(err, errMilestoneClaimed) {
			if relErr := s.Milestones.Release(ctx, milestone.ID); relErr != nil && s.Logger != nil {
				s.Logger.WithField("milestone_id", milestone.ID).
					WithError(relErr).Warn("failed to release milestone claim")
			}
		}
	}()

	project, err := s.Projects.GetProject(ctx, milestone.ProjectId)
	if err != nil {
		return nil, fmt.Errorf("load project %d: %w", milestone.ProjectId, err)
	}

	dueDate := now.AddDate(0, 0, s.InvoiceDueDays)
	milestoneId := milestone.ID
	invoice, err := s.Invoices.CreateInvoice(ctx, &models.NewInvoice{
		CompanyId:         project.CompanyId,
		ProjectId:         project.ID,
		ClientName:        project.ClientName,
		ClientEmail:       project.ClientEmail,
		Amount:            milestone.Amount,
		DueDate:           &dueDate,
		SourceMilestoneId: &milestoneId,
	})
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	// Forward only when the company has a usable provider connection; with no
	// connection there is nothing to push to, so the invoice waits for the
	// next manual trigger after reconnect. Forwarding itself is best-effort.
	if s.Forwarder != nil && s.connectionUsable(ctx, milestone.ID, project.CompanyId) {
		if fwdErr := s.Forwarder.ForwardInvoice(ctx, project.CompanyId, invoice.ID); fwdErr != nil && s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{
				"milestone_id": milestone.ID,
				"invoice_id":   invoice.ID,
			}).WithError(fwdErr).Warn("invoice sync forwarding failed")
		}
	}

	if err := s.Milestones.Complete(ctx, milestone.ID, now); err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	if err := s.Milestones.Log(ctx, milestone.ID, invoice.ID, autoReasonFor(milestone)); err != nil {
		return nil, fmt.Errorf("write log: %w", err)
	}

	if s.Notifier != nil {
		if nErr := s.Notifier.NotifyInvoiced(ctx, project.OwnerId, milestone, invoice); nErr != nil {
			if s.Logger != nil {
				s.Logger.WithFields(logrus.Fields{
					"milestone_id": milestone.ID,
					"invoice_id":   invoice.ID,
				}).WithError(nErr).Warn("milestone notification failed")
			}
			return nErr, nil
		}
	}
	return nil, nil
}

func (s *MilestoneScheduler) connectionUsable(ctx context.Context, milestoneId int, companyId string) bool {
	if s.Connections == nil {
		return true
	}
	usable, err := s.Connections.IsUsable(ctx, companyId)
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{
				"milestone_id": milestoneId,
				"company_id":   companyId,
			}).WithError(err).Warn("connection check failed; skipping invoice forwarding")
		}
		return false
	}
	return usable
}

func autoReasonFor(milestone *models.Milestone) string {
	if milestone.DueType == models.MilestoneDueTypeEvent {
		return models.AutoReasonStatusCompleted
	}
	return models.AutoReasonDueDateReached
}

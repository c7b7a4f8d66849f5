package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMilestoneStore struct {
	due       []models.Milestone
	claimed   map[int]bool
	released  []int
	completed []int
	logs      map[int]string // milestoneId -> autoReason
	invoiceBy map[int]int    // milestoneId -> invoiceId logged

	denyClaim map[int]bool
}

func newFakeMilestoneStore(due ...models.Milestone) *fakeMilestoneStore {
	return &fakeMilestoneStore{
		due:       due,
		claimed:   map[int]bool{},
		logs:      map[int]string{},
		invoiceBy: map[int]int{},
		denyClaim: map[int]bool{},
	}
}

func (s *fakeMilestoneStore) DueMilestones(ctx context.Context, asOf time.Time) ([]models.Milestone, error) {
	return s.due, nil
}

func (s *fakeMilestoneStore) Claim(ctx context.Context, milestoneId int, now time.Time, staleBefore time.Time) (bool, error) {
	if s.denyClaim[milestoneId] {
		return false, nil
	}
	s.claimed[milestoneId] = true
	return true, nil
}

func (s *fakeMilestoneStore) Release(ctx context.Context, milestoneId int) error {
	s.claimed[milestoneId] = false
	s.released = append(s.released, milestoneId)
	return nil
}

func (s *fakeMilestoneStore) Complete(ctx context.Context, milestoneId int, now time.Time) error {
	s.completed = append(s.completed, milestoneId)
	return nil
}

func (s *fakeMilestoneStore) Log(ctx context.Context, milestoneId int, invoiceId int, autoReason string) error {
	s.logs[milestoneId] = autoReason
	s.invoiceBy[milestoneId] = invoiceId
	return nil
}

type fakeProjectStore struct {
	projects map[int]*models.Project
}

func (s *fakeProjectStore) GetProject(ctx context.Context, projectId int) (*models.Project, error) {
	if p, ok := s.projects[projectId]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("project %d not found", projectId)
}

type fakeInvoiceCreator struct {
	created []models.NewInvoice
	failOn  map[int]error // keyed by SourceMilestoneId
	nextId  int
}

func (c *fakeInvoiceCreator) CreateInvoice(ctx context.Context, input *models.NewInvoice) (*models.Invoice, error) {
	if input.SourceMilestoneId != nil {
		if err := c.failOn[*input.SourceMilestoneId]; err != nil {
			return nil, err
		}
	}
	c.created = append(c.created, *input)
	c.nextId++
	return &models.Invoice{
		ID:                c.nextId,
		CompanyId:         input.CompanyId,
		InvoiceNumber:     fmt.Sprintf("INV-TEST-%d", c.nextId),
		Amount:            input.Amount,
		SourceMilestoneId: input.SourceMilestoneId,
	}, nil
}

type fakeForwarder struct {
	forwarded []int
	err       error
}

func (f *fakeForwarder) ForwardInvoice(ctx context.Context, companyId string, invoiceId int) error {
	if f.err != nil {
		return f.err
	}
	f.forwarded = append(f.forwarded, invoiceId)
	return nil
}

type fakeConnChecker struct {
	usable bool
	err    error
	asked  []string // companyId per check
}

func (c *fakeConnChecker) IsUsable(ctx context.Context, ownerId string) (bool, error) {
	c.asked = append(c.asked, ownerId)
	return c.usable, c.err
}

type fakeNotifier struct {
	notified []string // ownerId per notification
	err      error
}

func (n *fakeNotifier) NotifyInvoiced(ctx context.Context, ownerId string, milestone *models.Milestone, invoice *models.Invoice) error {
	if n.err != nil {
		return n.err
	}
	n.notified = append(n.notified, ownerId)
	return nil
}

func timeMilestone(id int, projectId int, amount int64) models.Milestone {
	due := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	return models.Milestone{
		ID:        id,
		ProjectId: projectId,
		Name:      fmt.Sprintf("Milestone %d", id),
		DueType:   models.MilestoneDueTypeTime,
		DueDate:   &due,
		Amount:    decimal.NewFromInt(amount),
	}
}

func testScheduler(store *fakeMilestoneStore, projects *fakeProjectStore, invoices *fakeInvoiceCreator, forwarder *fakeForwarder, notifier *fakeNotifier) *MilestoneScheduler {
	return &MilestoneScheduler{
		Milestones:     store,
		Projects:       projects,
		Invoices:       invoices,
		Forwarder:      forwarder,
		Connections:    &fakeConnChecker{usable: true},
		Notifier:       notifier,
		Now:            func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) },
		ClaimTTL:       10 * time.Minute,
		InvoiceDueDays: 30,
	}
}

func singleProject() *fakeProjectStore {
	return &fakeProjectStore{projects: map[int]*models.Project{
		10: {ID: 10, CompanyId: "co-1", OwnerId: "owner-1", Name: "Site build", ClientName: "Acme", ClientEmail: "ap@acme.test"},
	}}
}

func TestRunDryRunCountsEligibleWithoutMutating(t *testing.T) {
	store := newFakeMilestoneStore(
		timeMilestone(1, 10, 100),
		timeMilestone(2, 10, 200),
		timeMilestone(3, 10, 300),
		timeMilestone(4, 10, 400),
		timeMilestone(5, 10, 500),
	)
	invoices := &fakeInvoiceCreator{}
	scheduler := testScheduler(store, singleProject(), invoices, &fakeForwarder{}, &fakeNotifier{})

	result, err := scheduler.Run(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Processed)
	assert.True(t, result.DryRun)
	assert.Empty(t, result.Errors)
	assert.Empty(t, store.claimed)
	assert.Empty(t, store.completed)
	assert.Empty(t, store.logs)
	assert.Empty(t, invoices.created)
}

func TestRunIsolatesPerMilestoneFailure(t *testing.T) {
	store := newFakeMilestoneStore(
		timeMilestone(1, 10, 100),
		timeMilestone(2, 10, 200),
		timeMilestone(3, 10, 300),
	)
	invoices := &fakeInvoiceCreator{failOn: map[int]error{2: errors.New("invoice ledger rejected amount")}}
	notifier := &fakeNotifier{}
	scheduler := testScheduler(store, singleProject(), invoices, &fakeForwarder{}, notifier)

	result, err := scheduler.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "milestone 2:")
	assert.Contains(t, result.Errors[0], "invoice ledger rejected amount")

	// #1 and #3 completed with audit rows; #2 untouched and unclaimed again.
	assert.Equal(t, []int{1, 3}, store.completed)
	assert.Contains(t, store.logs, 1)
	assert.Contains(t, store.logs, 3)
	assert.NotContains(t, store.logs, 2)
	assert.Equal(t, []int{2}, store.released)
	assert.False(t, store.claimed[2])
	assert.Len(t, notifier.notified, 2)
}

func TestRunCopiesProjectFieldsOntoInvoice(t *testing.T) {
	store := newFakeMilestoneStore(timeMilestone(1, 10, 2500))
	invoices := &fakeInvoiceCreator{}
	forwarder := &fakeForwarder{}
	scheduler := testScheduler(store, singleProject(), invoices, forwarder, &fakeNotifier{})

	result, err := scheduler.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	require.Len(t, invoices.created, 1)
	inv := invoices.created[0]
	assert.Equal(t, "co-1", inv.CompanyId)
	assert.Equal(t, 10, inv.ProjectId)
	assert.Equal(t, "Acme", inv.ClientName)
	assert.Equal(t, "ap@acme.test", inv.ClientEmail)
	assert.True(t, decimal.NewFromInt(2500).Equal(inv.Amount))
	require.NotNil(t, inv.SourceMilestoneId)
	assert.Equal(t, 1, *inv.SourceMilestoneId)
	require.NotNil(t, inv.DueDate)
	assert.Equal(t, time.Date(2026, 3, 31, 9, 0, 0, 0, time.UTC), *inv.DueDate)

	// The created invoice was queued for remote push.
	assert.Equal(t, []int{1}, forwarder.forwarded)
}

func TestRunSkipsMilestonesClaimedElsewhere(t *testing.T) {
	store := newFakeMilestoneStore(timeMilestone(1, 10, 100), timeMilestone(2, 10, 200))
	store.denyClaim[1] = true
	invoices := &fakeInvoiceCreator{}
	scheduler := testScheduler(store, singleProject(), invoices, &fakeForwarder{}, &fakeNotifier{})

	result, err := scheduler.Run(context.Background(), false)
	require.NoError(t, err)

	// The claimed milestone is neither processed nor an error.
	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []int{2}, store.completed)
}

func TestRunSkipsForwardingWithoutUsableConnection(t *testing.T) {
	store := newFakeMilestoneStore(timeMilestone(1, 10, 100))
	invoices := &fakeInvoiceCreator{}
	forwarder := &fakeForwarder{}
	checker := &fakeConnChecker{usable: false}
	scheduler := testScheduler(store, singleProject(), invoices, forwarder, &fakeNotifier{})
	scheduler.Connections = checker

	result, err := scheduler.Run(context.Background(), false)
	require.NoError(t, err)

	// The milestone still completes with its invoice; only the push queueing
	// is withheld.
	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, result.Errors)
	assert.Len(t, invoices.created, 1)
	assert.Empty(t, forwarder.forwarded)
	assert.Equal(t, []string{"co-1"}, checker.asked)
	assert.Equal(t, []int{1}, store.completed)
}

func TestRunConnectionCheckErrorSkipsForwarding(t *testing.T) {
	store := newFakeMilestoneStore(timeMilestone(1, 10, 100))
	forwarder := &fakeForwarder{}
	scheduler := testScheduler(store, singleProject(), &fakeInvoiceCreator{}, forwarder, &fakeNotifier{})
	scheduler.Connections = &fakeConnChecker{err: errors.New("credential store down")}

	result, err := scheduler.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, result.Errors)
	assert.Empty(t, forwarder.forwarded)
	assert.Equal(t, []int{1}, store.completed)
}

func TestRunNotifierFailureReportedButProcessed(t *testing.T) {
	store := newFakeMilestoneStore(timeMilestone(1, 10, 100))
	scheduler := testScheduler(store, singleProject(), &fakeInvoiceCreator{}, &fakeForwarder{},
		&fakeNotifier{err: errors.New("topic unavailable")})

	result, err := scheduler.Run(context.Background(), false)
	require.NoError(t, err)

	// Completion and the audit row already happened; the failure is reported
	// without rolling the milestone back.
	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "milestone 1: notify:")
	assert.Contains(t, result.Errors[0], "topic unavailable")
	assert.Equal(t, []int{1}, store.completed)
	assert.Contains(t, store.logs, 1)
	assert.Empty(t, store.released)
}

func TestRunForwarderFailureDoesNotFailMilestone(t *testing.T) {
	store := newFakeMilestoneStore(timeMilestone(1, 10, 100))
	scheduler := testScheduler(store, singleProject(), &fakeInvoiceCreator{},
		&fakeForwarder{err: errors.New("sync store down")}, &fakeNotifier{})

	result, err := scheduler.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []int{1}, store.completed)
}

func TestRunRecordsAutoReasonPerDueType(t *testing.T) {
	eventMilestone := models.Milestone{
		ID:        7,
		ProjectId: 10,
		Name:      "Client sign-off",
		DueType:   models.MilestoneDueTypeEvent,
		Status:    models.MilestoneStatusCompleted,
		Amount:    decimal.NewFromInt(900),
	}
	store := newFakeMilestoneStore(timeMilestone(1, 10, 100), eventMilestone)
	scheduler := testScheduler(store, singleProject(), &fakeInvoiceCreator{}, &fakeForwarder{}, &fakeNotifier{})

	result, err := scheduler.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)

	assert.Equal(t, models.AutoReasonDueDateReached, store.logs[1])
	assert.Equal(t, models.AutoReasonStatusCompleted, store.logs[7])
}

func TestRunProjectLookupFailureReleasesClaim(t *testing.T) {
	store := newFakeMilestoneStore(timeMilestone(1, 99, 100))
	scheduler := testScheduler(store, singleProject(), &fakeInvoiceCreator{}, &fakeForwarder{}, &fakeNotifier{})

	result, err := scheduler.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Zero(t, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "milestone 1:")
	assert.Equal(t, []int{1}, store.released)
}

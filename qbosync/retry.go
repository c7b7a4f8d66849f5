package qbosync

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
	"github.com/sirupsen/logrus"
)

// RetryableEntityTypes are the entity types with a provider-side retry
// trigger. Clients and projects are re-pushed through their parents and have
// no dedicated endpoint.
var RetryableEntityTypes = []models.EntityType{
	models.EntityTypeVendor,
	models.EntityTypeBill,
	models.EntityTypeInvoice,
	models.EntityTypePayment,
}

var retryPaths = map[models.EntityType]string{
	models.EntityTypeVendor:  "/retry-vendor-sync",
	models.EntityTypeBill:    "/retry-bill-sync",
	models.EntityTypeInvoice: "/retry-invoice-sync",
	models.EntityTypePayment: "/retry-payment-sync",
}

// RetryDispatcher fires the provider-specific retry triggers. Dispatch is
// fire-and-forget: a 2xx acknowledgment means the remote accepted the request,
// not that any entity finished syncing. Completion is observed by polling the
// record store (WaitForSettled), not by trusting a wall-clock delay.
type RetryDispatcher struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Logger  *logrus.Logger
}

func NewRetryDispatcher(logger *logrus.Logger) *RetryDispatcher {
	baseURL := strings.TrimSpace(os.Getenv("QBO_FUNCTIONS_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://qbo-functions.internal"
	}
	return &RetryDispatcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   strings.TrimSpace(os.Getenv("QBO_FUNCTIONS_TOKEN")),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Logger:  logger,
	}
}

// RetryFailedSyncs dispatches the retry trigger for one entity type, or for
// every retryable type when entityType is nil. A non-2xx response is logged
// and recorded in the result; remaining types are still attempted.
func (d *RetryDispatcher) RetryFailedSyncs(ctx context.Context, entityType *models.EntityType) []DispatchResult {
	scope := RetryableEntityTypes
	if entityType != nil {
		scope = []models.EntityType{*entityType}
	}

	results := make([]DispatchResult, 0, len(scope))
	for _, et := range scope {
		result := DispatchResult{EntityType: et}
		if err := d.dispatchOne(ctx, et); err != nil {
			result.Error = err.Error()
			if d.Logger != nil {
				d.Logger.WithFields(logrus.Fields{
					"module":     "qbosync",
					"entityType": et,
				}).Error("retry dispatch failed: " + err.Error())
			}
		} else {
			result.Dispatched = true
		}
		results = append(results, result)
	}
	return results
}

func (d *RetryDispatcher) dispatchOne(ctx context.Context, entityType models.EntityType) error {
	path, ok := retryPaths[entityType]
	if !ok {
		return &dispatchError{status: 0, body: "no retry endpoint for entity type " + string(entityType)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+path, bytes.NewBufferString("{}"))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &dispatchError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return nil
}

type dispatchError struct {
	status int
	body   string
}

func (e *dispatchError) Error() string {
	if e.status == 0 {
		return e.body
	}
	return "retry trigger returned " + http.StatusText(e.status) + ": " + e.body
}

// WaitForSettled polls the record store until no pending/processing rows
// remain for the company, the context is done, or maxWait elapses. Callers
// refresh statistics afterwards instead of guessing with a fixed delay.
func WaitForSettled(ctx context.Context, records RecordStore, companyId string, pollInterval time.Duration, maxWait time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	deadline := time.Now().Add(maxWait)
	for {
		open, err := records.CountOpen(ctx, companyId)
		if err != nil {
			return err
		}
		if open == 0 {
			return nil
		}
		if maxWait > 0 && time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

package qbosync

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monitorWith(rec *models.ConnectionRecord, fetchErr error, now time.Time) *ConnectionHealthMonitor {
	return &ConnectionHealthMonitor{
		FetchLatest: func(ctx context.Context, ownerId string) (*models.ConnectionRecord, error) {
			return rec, fetchErr
		},
		Now: func() time.Time { return now },
	}
}

func TestCheckConnectionNoRecord(t *testing.T) {
	m := monitorWith(nil, nil, time.Now())

	status, err := m.CheckConnection(context.Background(), "co-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusNotConnected, status)
}

func TestCheckConnectionExpiryInsideGraceWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := &models.ConnectionRecord{
		RefreshToken: "rt-1",
		ExpiresAt:    now.Add(2 * time.Minute).Format(time.RFC3339),
	}

	status, err := monitorWith(rec, nil, now).CheckConnection(context.Background(), "co-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusNeedsReauth, status)
}

func TestCheckConnectionExpiryBeyondGraceWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rec := &models.ConnectionRecord{
		RefreshToken: "rt-1",
		ExpiresAt:    now.Add(10 * time.Minute).Format(time.RFC3339),
	}

	status, err := monitorWith(rec, nil, now).CheckConnection(context.Background(), "co-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusConnected, status)
}

func TestCheckConnectionMissingRefreshToken(t *testing.T) {
	now := time.Now()
	rec := &models.ConnectionRecord{
		ExpiresAt: now.Add(time.Hour).Format(time.RFC3339),
	}

	status, err := monitorWith(rec, nil, now).CheckConnection(context.Background(), "co-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusNeedsReauth, status)
}

func TestCheckConnectionUnparsableExpiry(t *testing.T) {
	rec := &models.ConnectionRecord{RefreshToken: "rt-1", ExpiresAt: "not-a-timestamp"}

	status, err := monitorWith(rec, nil, time.Now()).CheckConnection(context.Background(), "co-1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStatusNeedsReauth, status)
}

func TestCheckConnectionStoreError(t *testing.T) {
	storeErr := errors.New("connection store down")

	_, err := monitorWith(nil, storeErr, time.Now()).CheckConnection(context.Background(), "co-1")
	assert.ErrorIs(t, err, storeErr)
}

func TestIsUsableOnlyWhenConnected(t *testing.T) {
	now := time.Now()
	connected := &models.ConnectionRecord{
		RefreshToken: "rt-1",
		ExpiresAt:    now.Add(time.Hour).Format(time.RFC3339),
	}

	usable, err := monitorWith(connected, nil, now).IsUsable(context.Background(), "co-1")
	require.NoError(t, err)
	assert.True(t, usable)

	usable, err = monitorWith(nil, nil, now).IsUsable(context.Background(), "co-1")
	require.NoError(t, err)
	assert.False(t, usable)
}

package qbosync

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
)

// ReauthGraceWindow is the early-refresh margin: credentials expiring within
// it are reported as needs_reauth even though they are technically still
// valid, so operators reauthorize before an in-flight push can fail.
const ReauthGraceWindow = 5 * time.Minute

// ConnectionHealthMonitor derives a connection status from the stored OAuth
// credentials. FetchLatest and Now are injectable for tests; NewConnectionHealthMonitor
// wires the gorm-backed defaults.
type ConnectionHealthMonitor struct {
	FetchLatest func(ctx context.Context, ownerId string) (*models.ConnectionRecord, error)
	Now         func() time.Time
}

func NewConnectionHealthMonitor() *ConnectionHealthMonitor {
	return &ConnectionHealthMonitor{
		FetchLatest: models.GetLatestConnectionRecord,
		Now:         time.Now,
	}
}

// CheckConnection classifies the owner's newest credential record:
// no record -> not_connected; missing refresh token or unparsable expiry ->
// needs_reauth; expiry beyond now+grace -> connected, otherwise needs_reauth.
// Store errors are returned as-is (infrastructure failure, not a status).
func (m *ConnectionHealthMonitor) CheckConnection(ctx context.Context, ownerId string) (models.ConnectionStatus, error) {
	rec, err := m.FetchLatest(ctx, ownerId)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return models.ConnectionStatusNotConnected, nil
	}
	if rec.RefreshToken == "" {
		return models.ConnectionStatusNeedsReauth, nil
	}

	expiresAt, err := time.Parse(time.RFC3339, rec.ExpiresAt)
	if err != nil {
		return models.ConnectionStatusNeedsReauth, nil
	}

	if expiresAt.After(m.Now().Add(ReauthGraceWindow)) {
		return models.ConnectionStatusConnected, nil
	}
	return models.ConnectionStatusNeedsReauth, nil
}

// IsUsable reports whether push attempts should be made at all.
func (m *ConnectionHealthMonitor) IsUsable(ctx context.Context, ownerId string) (bool, error) {
	status, err := m.CheckConnection(ctx, ownerId)
	if err != nil {
		return false, err
	}
	return status == models.ConnectionStatusConnected, nil
}

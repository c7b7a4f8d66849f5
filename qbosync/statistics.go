package qbosync

import (
	"math"

	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
)

// Statistics are a pure read model: a function from an immutable snapshot of
// sync records to aggregated counts, recomputed on each pull. No shared state.

// ComputeTotals sums counts by status across every record in the snapshot.
func ComputeTotals(records []models.SyncRecord) StatusCounts {
	var counts StatusCounts
	for _, rec := range records {
		counts.Total++
		switch rec.Status {
		case models.SyncStatusSuccess:
			counts.Success++
		case models.SyncStatusError:
			counts.Error++
		case models.SyncStatusPending:
			counts.Pending++
		case models.SyncStatusProcessing:
			counts.Processing++
		}
	}
	return counts
}

// ComputeByEntityType groups the same sums by entity type, providers merged.
func ComputeByEntityType(records []models.SyncRecord) map[models.EntityType]StatusCounts {
	byType := make(map[models.EntityType]StatusCounts)
	for _, rec := range records {
		counts := byType[rec.EntityType]
		counts.Total++
		switch rec.Status {
		case models.SyncStatusSuccess:
			counts.Success++
		case models.SyncStatusError:
			counts.Error++
		case models.SyncStatusPending:
			counts.Pending++
		case models.SyncStatusProcessing:
			counts.Processing++
		}
		byType[rec.EntityType] = counts
	}
	return byType
}

// SuccessRate returns success/total as a rounded percentage, 0 when the
// snapshot is empty.
func SuccessRate(success int, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(success) / float64(total) * 100))
}

package workflow

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
	"github.com/gin-gonic/gin"
)

// MilestoneJobHandler runs one scheduler pass on demand. Cloud Scheduler hits
// this endpoint; ?dry_run=true previews the eligible set without mutating
// anything.
func MilestoneJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.MilestoneSchedulerEnabled() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"message": "milestone scheduler is disabled",
			})
			return
		}

		dryRun, _ := strconv.ParseBool(c.Query("dry_run"))

		scheduler := NewMilestoneScheduler(config.GetLogger(), config.GetRedisLock())
		result, err := scheduler.Run(c.Request.Context(), dryRun)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrSchedulerBusy) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{
				"success":   false,
				"message":   err.Error(),
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			return
		}

		message := "milestone scheduler pass completed"
		if result.DryRun {
			message = "milestone scheduler dry run completed"
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   message,
			"processed": result.Processed,
			"dryRun":    result.DryRun,
			"errors":    result.Errors,
			"timestamp": result.RanAt.Format(time.RFC3339),
		})
	}
}

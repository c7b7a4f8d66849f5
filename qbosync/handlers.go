package qbosync

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bizmanage_backend/config"
	"bitbucket.org/mmdatafocus/bizmanage_backend/models"
	"bitbucket.org/mmdatafocus/bizmanage_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const connStatusCacheTTL = 30 * time.Second

// TriggerEntitySyncHandler queues sync attempts for one entity type, or for
// all of them in dependency order when entityType is "all". Gated on a usable
// connection; every call is written to the trigger audit log.
func TriggerEntitySyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, err := resolveCaller(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		ownerId, err := authorizeCompany(caller, req.CompanyId)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		req.CompanyId = ownerId
		if err := validate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.BatchSize == 0 {
			req.BatchSize = DefaultBatchSize
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), req.CompanyId)

		monitor := NewConnectionHealthMonitor()
		usable, err := monitor.IsUsable(ctx, req.CompanyId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !usable {
			c.JSON(http.StatusBadRequest, gin.H{"error": "QBO connection not found or disconnected"})
			return
		}

		_ = models.CreateTriggerAuditLog(ctx, ownerId, "triggerEntitySync", req)

		queuer := NewQueuer(config.GetLogger())
		if req.EntityType == EntityTypeAll {
			bulk := queuer.TriggerBulkSync(ctx, req.CompanyId, req.BatchSize)
			c.JSON(http.StatusOK, gin.H{
				"success":     true,
				"entityType":  EntityTypeAll,
				"results":     bulk.Results,
				"totalQueued": bulk.TotalQueued,
			})
			return
		}

		result := queuer.Enqueue(ctx, req.CompanyId, models.EntityType(req.EntityType), req.BatchSize)
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"entityType":  req.EntityType,
			"results":     []EnqueueResult{result},
			"totalQueued": result.Queued,
		})
	}
}

// RetryFailedSyncsHandler fires the provider retry triggers for one entity
// type or every retryable type. Dispatch acknowledgments say nothing about
// completion; clients poll statistics afterwards.
func RetryFailedSyncsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req RetryRequest
		// An empty body means "retry everything".
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), ownerId)
		_ = models.CreateTriggerAuditLog(ctx, ownerId, "retryFailedSyncs", req)

		dispatcher := NewRetryDispatcher(config.GetLogger())
		var scope *models.EntityType
		if req.EntityType != "" {
			et := models.EntityType(req.EntityType)
			scope = &et
		}
		results := dispatcher.RetryFailedSyncs(ctx, scope)

		// ?wait=true blocks until the open attempts settle (bounded), so the
		// caller's next statistics pull reflects the retry outcome.
		if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
			err := WaitForSettled(ctx, gormRecordStore{}, ownerId, 2*time.Second, 90*time.Second)
			c.JSON(http.StatusOK, gin.H{"success": true, "results": results, "settled": err == nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "results": results})
	}
}

// SyncCallbackHandler lets the push functions report progress on a sync
// record. It is the only write path for statuses other than pending.
func SyncCallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req SyncCallbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), ownerId)
		if err := models.MarkSyncRecordStatus(ctx, req.RecordId, models.SyncStatus(req.Status), req.ErrorMessage); err != nil {
			config.LogError(config.GetLogger(), "qbosync", "SyncCallbackHandler", "mark sync record", req, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// DisconnectHandler drops the stored provider credentials and the cached
// status read model. Sync records are kept; history survives a reconnect.
func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), ownerId)
		_ = models.CreateTriggerAuditLog(ctx, ownerId, "disconnect", nil)

		if err := models.DeleteConnectionRecords(ctx, ownerId); err != nil {
			config.LogError(config.GetLogger(), "qbosync", "DisconnectHandler", "delete connection records", ownerId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		_ = config.RemoveRedisKey("QboConnStatus:" + ownerId)

		c.JSON(http.StatusOK, gin.H{"success": true, "status": models.ConnectionStatusNotConnected})
	}
}

// SyncStatisticsHandler recomputes the statistics read model from the current
// sync-record snapshot.
func SyncStatisticsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)

		// ?latest=true aggregates only the newest attempt per entity instead of
		// the full append-only history.
		var records []models.SyncRecord
		if latest, _ := strconv.ParseBool(c.Query("latest")); latest {
			records, err = models.LatestSyncRecords(ctx, companyId)
		} else {
			records, err = models.ListSyncRecords(ctx, companyId)
		}
		if err != nil {
			config.LogError(config.GetLogger(), "qbosync", "SyncStatisticsHandler", "list sync records", companyId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		totals := ComputeTotals(records)
		c.JSON(http.StatusOK, StatisticsResponse{
			Totals:       totals,
			ByEntityType: ComputeByEntityType(records),
			SuccessRate:  SuccessRate(totals.Success, totals.Total),
		})
	}
}

// ConnectionStatusHandler exposes the connection read model for operator
// tooling. Cached briefly in redis; the dashboard polls this.
func ConnectionStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		companyId, err := resolveCompanyID(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		cacheKey := "QboConnStatus:" + companyId
		var cached ConnectionStatusResponse
		if ok, err := config.GetRedisObject(cacheKey, &cached); err == nil && ok {
			c.JSON(http.StatusOK, cached)
			return
		}

		ctx := utils.SetCompanyIdInContext(c.Request.Context(), companyId)
		monitor := NewConnectionHealthMonitor()
		status, err := monitor.CheckConnection(ctx, companyId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := ConnectionStatusResponse{
			IsConnected: status == models.ConnectionStatusConnected,
			Status:      status,
		}
		_ = config.SetRedisObject(cacheKey, resp, connStatusCacheTTL)
		c.JSON(http.StatusOK, resp)
	}
}

// resolveCaller maps the session username to its user row (cache-aside via
// redis).
func resolveCaller(c *gin.Context) (*models.User, error) {
	username, ok := utils.GetUsernameFromContext(c.Request.Context())
	if !ok || strings.TrimSpace(username) == "" {
		return nil, errors.New("unauthorized")
	}
	return lookupUser(c.Request.Context(), username)
}

// authorizeCompany resolves the effective company: an explicit override is
// honoured for admins and for the caller's own company only.
func authorizeCompany(user *models.User, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		if user.Role != models.UserRoleAdmin && user.CompanyId != requested {
			return "", errors.New("unauthorized")
		}
		return requested, nil
	}
	if strings.TrimSpace(user.CompanyId) == "" {
		return "", errors.New("company_id is required")
	}
	return user.CompanyId, nil
}

// resolveCompanyID is the common path for handlers that take the company from
// the ?company_id query parameter.
func resolveCompanyID(c *gin.Context) (string, error) {
	user, err := resolveCaller(c)
	if err != nil {
		return "", err
	}
	return authorizeCompany(user, c.Query("company_id"))
}

func lookupUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return nil, err
	}
	if exists {
		return &user, nil
	}

	db := config.GetDB()
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if err := db.WithContext(ctx).
		Model(&models.User{}).
		Where("username = ?", username).
		Take(&user).Error; err != nil {
		return nil, errors.New("unauthorized")
	}
	_ = config.SetRedisObject("User:"+username, user, 5*time.Minute)
	return &user, nil
}

package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"emailtracker/internal/model"
	"emailtracker/internal/service/tracker"
)

type RecordHandler struct {
	tracker *tracker.Service
	logger  *zap.Logger
}

func NewRecordHandler(svc *tracker.Service, logger *zap.Logger) *RecordHandler {
	return &RecordHandler{tracker: svc, logger: logger}
}

type saveRecordRequest struct {
	Email    string `json:"email"`
	Provider string `json:"provider"`
	Notes    string `json:"notes"`
}

// ListRecords handles GET /api/records?q=...&email=...
func (h *RecordHandler) ListRecords(c *gin.Context) {
	ctx := c.Request.Context()

	if email := c.Query("email"); email != "" {
		domains, err := h.tracker.FindDomainsByEmail(ctx, email)
		if err != nil {
			writeError(c, h.logger, "ListRecords", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"domains": domains})
		return
	}

	records, err := h.tracker.SearchRecords(ctx, c.Query("q"))
	if err != nil {
		writeError(c, h.logger, "ListRecords", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"count":   len(records),
	})
}

// GetRecord handles GET /api/records/:domain. touch=true stamps lastUsed, the
// way the popup does when it shows the record for the current tab.
func (h *RecordHandler) GetRecord(c *gin.Context) {
	ctx := c.Request.Context()
	domain := c.Param("domain")

	record, err := h.tracker.GetEmail(ctx, domain)
	if err != nil {
		writeError(c, h.logger, "GetRecord", err)
		return
	}

	if touch, _ := strconv.ParseBool(c.Query("touch")); touch {
		if err := h.tracker.MarkAsUsed(ctx, domain); err != nil {
			writeError(c, h.logger, "GetRecord", err)
			return
		}
		if record, err = h.tracker.GetEmail(ctx, domain); err != nil {
			writeError(c, h.logger, "GetRecord", err)
			return
		}
	}
	c.JSON(http.StatusOK, record)
}

// SaveRecord handles PUT /api/records/:domain (upsert).
func (h *RecordHandler) SaveRecord(c *gin.Context) {
	var req saveRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	record, err := h.tracker.SaveEmail(c.Request.Context(), c.Param("domain"), req.Email, model.Provider(req.Provider), req.Notes)
	if err != nil {
		writeError(c, h.logger, "SaveRecord", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// UpdateRecord handles PATCH /api/records/:domain
func (h *RecordHandler) UpdateRecord(c *gin.Context) {
	var updates model.RecordUpdate
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	record, err := h.tracker.UpdateEmail(c.Request.Context(), c.Param("domain"), updates)
	if err != nil {
		writeError(c, h.logger, "UpdateRecord", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// DeleteRecord handles DELETE /api/records/:domain
func (h *RecordHandler) DeleteRecord(c *gin.Context) {
	if err := h.tracker.DeleteEmail(c.Request.Context(), c.Param("domain")); err != nil {
		writeError(c, h.logger, "DeleteRecord", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkUsed handles POST /api/records/:domain/used
func (h *RecordHandler) MarkUsed(c *gin.Context) {
	if err := h.tracker.MarkAsUsed(c.Request.Context(), c.Param("domain")); err != nil {
		writeError(c, h.logger, "MarkUsed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearRecords handles DELETE /api/records
func (h *RecordHandler) ClearRecords(c *gin.Context) {
	h.logger.Warn("ClearRecords request received",
		zap.String("session_id", c.GetString("session_id")),
		zap.String("client_ip", c.ClientIP()),
	)
	if err := h.tracker.ClearAll(c.Request.Context()); err != nil {
		writeError(c, h.logger, "ClearRecords", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats handles GET /api/stats
func (h *RecordHandler) Stats(c *gin.Context) {
	stats, err := h.tracker.Stats(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "Stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Export handles GET /api/export
func (h *RecordHandler) Export(c *gin.Context) {
	data, err := h.tracker.ExportData(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "Export", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="email-tracker-export-%s.json"`, time.Now().UTC().Format("2006-01-02")))
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(data))
}

// Import handles POST /api/import; the body is an export file or a bare record array.
func (h *RecordHandler) Import(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	n, err := h.tracker.ImportData(c.Request.Context(), string(body))
	if err != nil {
		writeError(c, h.logger, "Import", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/expense-ledger/internal/export"
	"github.com/garyjia/expense-ledger/internal/ledger"
	"github.com/garyjia/expense-ledger/internal/models"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	store           *ledger.Store
	paginator       *ledger.Paginator
	folders         *ledger.FolderIndex
	excel           *export.ExcelWriter
	defaultPageSize int
	logger          *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	store *ledger.Store,
	paginator *ledger.Paginator,
	folders *ledger.FolderIndex,
	excel *export.ExcelWriter,
	defaultPageSize int,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		store:           store,
		paginator:       paginator,
		folders:         folders,
		excel:           excel,
		defaultPageSize: defaultPageSize,
		logger:          logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// PageResponse wraps one window of records
type PageResponse struct {
	Items   []*models.ExpenseRecord `json:"items"`
	Offset  int                     `json:"offset"`
	Limit   int                     `json:"limit"`
	HasNext bool                    `json:"has_next"`
}

// HealthCheck handles GET /healthz
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// ListRecords handles GET /api/v1/records?folder=&offset=&limit=
func (h *Handlers) ListRecords(c *gin.Context) {
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "offset must be an integer"})
		return
	}
	limit, err := intQuery(c, "limit", h.defaultPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "limit must be an integer"})
		return
	}

	filter := ledger.AllFolders()
	if folder := c.Query("folder"); folder != "" {
		filter = ledger.FolderOnly(folder)
	}

	items, hasNext, err := h.paginator.Page(c.Request.Context(), filter, offset, limit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: PageResponse{
		Items:   items,
		Offset:  offset,
		Limit:   limit,
		HasNext: hasNext,
	}})
}

// GetRecord handles GET /api/v1/records/:id
func (h *Handlers) GetRecord(c *gin.Context) {
	rec, err := h.store.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: rec})
}

// ListFolders handles GET /api/v1/folders
func (h *Handlers) ListFolders(c *gin.Context) {
	folders, err := h.folders.ListFolders(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: folders})
}

// FolderStats handles GET /api/v1/folders/:name/stats
func (h *Handlers) FolderStats(c *gin.Context) {
	stats, err := h.folders.StatsFor(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: stats})
}

// ExportCSV handles GET /api/v1/export/csv?folder=
func (h *Handlers) ExportCSV(c *gin.Context) {
	records, err := h.exportRecords(c)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="expenses.csv"`)
	if err := export.WriteCSV(c.Writer, records); err != nil {
		h.logger.Error("Failed to stream CSV export", zap.Error(err))
	}
}

// ExportXLSX handles GET /api/v1/export/xlsx?folder=
func (h *Handlers) ExportXLSX(c *gin.Context) {
	records, err := h.exportRecords(c)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="expenses.xlsx"`)
	// Sheet names are restricted (length, / \ ? * [ ] : ), so the folder name
	// never becomes the sheet name; the folder column identifies the subset.
	if err := h.excel.WriteTo(c.Writer, "", records); err != nil {
		h.logger.Error("Failed to stream workbook export", zap.Error(err))
	}
}

func (h *Handlers) exportRecords(c *gin.Context) ([]*models.ExpenseRecord, error) {
	if folder := c.Query("folder"); folder != "" {
		return h.store.FolderRecords(c.Request.Context(), folder)
	}
	return h.store.AllRecords(c.Request.Context())
}

func (h *Handlers) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Error: err.Error()})
	case errors.Is(err, models.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
	default:
		h.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "internal error"})
	}
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// Charging session HTTP handlers.
//
// This file exposes REST endpoints for charging session records:
//   - POST   /charging_sessions            (create, Idempotency-Key aware)
//   - GET    /charging_sessions            (list, optional pagination)
//   - GET    /charging_sessions/locations  (provider → city → location details)
//   - GET    /charging_sessions/notes      (distinct notes)
//   - GET    /charging_sessions/export     (XLSX download)
//   - PUT    /charging_sessions/{id}       (partial update)
//
// Payloads are decoded as raw JSON objects; field-level validation and type
// conversion belong to the service layer.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/ev-charging-log/internal/domain"
	"github.com/tbourn/ev-charging-log/internal/export"
	"github.com/tbourn/ev-charging-log/internal/http/middleware"
	"github.com/tbourn/ev-charging-log/internal/services"
	"github.com/tbourn/ev-charging-log/internal/utils"
)

// HeaderTotalCount carries the number of sessions matching a list request.
const HeaderTotalCount = "X-Total-Count"

// SessionService defines the charging session operations consumed by the
// HTTP handlers. Implementations must honor ctx for cancellation.
type SessionService interface {
	Create(ctx context.Context, payload map[string]json.RawMessage, idemKey string) (services.CreateResult, error)
	List(ctx context.Context) ([]domain.ChargingSession, error)
	ListPage(ctx context.Context, page, pageSize int) ([]domain.ChargingSession, int64, error)
	Locations(ctx context.Context) (services.LocationIndex, error)
	Notes(ctx context.Context) ([]string, error)
	Update(ctx context.Context, id string, payload map[string]json.RawMessage) error
}

// Handlers groups the charging session endpoints.
type Handlers struct {
	svc SessionService
}

// New constructs Handlers bound to svc.
func New(svc SessionService) *Handlers {
	return &Handlers{svc: svc}
}

// SessionPayload documents the accepted JSON keys. Handlers decode bodies as
// generic objects, so this type exists for the API docs only.
type SessionPayload struct {
	VehicleID       string  `json:"vehicle_id" example:"1"`
	LicensePlate    string  `json:"license_plate" example:"ABC-123"`
	StartTime       string  `json:"start_time" example:"2025-03-01T10:00:00Z"`
	EndTime         string  `json:"end_time" example:"2025-03-01T10:45:00Z"`
	KWh             float64 `json:"kwh" example:"42.5"`
	DurationSeconds int64   `json:"duration_seconds" example:"2700"`
	CostHUF         float64 `json:"cost_huf" example:"8500"`
	PricePerKWh     float64 `json:"price_per_kwh" example:"200"`
	Source          string  `json:"source" example:"app"`
	Currency        string  `json:"currency" example:"HUF"`
	InvoiceID       string  `json:"invoice_id" example:"INV-2025-0042"`
	Notes           string  `json:"notes" example:"winter tyres"`
	Odometer        float64 `json:"odometer" example:"48210"`
	Provider        string  `json:"provider" example:"Ionity"`
	City            string  `json:"city" example:"Győr"`
	LocationDetail  string  `json:"location_detail" example:"M1 rest area"`
	ACOrDC          string  `json:"ac_or_dc" example:"DC"`
	KW              float64 `json:"kw" example:"150"`
}

// decodeObject reads the request body as a JSON object. A missing, malformed
// or null body is rejected with 400.
func decodeObject(c *gin.Context) (map[string]json.RawMessage, bool) {
	var payload map[string]json.RawMessage
	if err := c.ShouldBindJSON(&payload); err != nil || payload == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request body must be a JSON object")
		return nil, false
	}
	return payload, true
}

// serviceError maps service errors to HTTP responses.
func serviceError(c *gin.Context, err error) {
	var missing *services.MissingFieldsError
	switch {
	case errors.As(err, &missing):
		fail(c, http.StatusBadRequest, ErrCodeMissingFields, missing.Error())
	case errors.Is(err, services.ErrInvalidField):
		fail(c, http.StatusBadRequest, ErrCodeInvalidField, err.Error())
	case errors.Is(err, services.ErrNoValidFields):
		fail(c, http.StatusBadRequest, ErrCodeNoValidFields, "No valid fields to update")
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "Record not found")
	case errors.Is(err, services.ErrDuplicateSession):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodePersistence, err.Error())
	}
}

// CreateSession godoc
// @ID          createChargingSession
// @Summary     Record a charging session
// @Description Validates that vehicle_id, start_time, kwh, cost_huf and source are present and stores the session.
// @Description Unknown keys are ignored. Currency defaults to the configured currency when the key is omitted.
// @Description A repeated Idempotency-Key returns 200 with the id created by the first request.
// @Tags        ChargingSessions
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Client token for safe retries"  example(7d1c2e1a-create-1)
// @Param       body             body    handlers.SessionPayload  true  "Session fields"
//
// @Success     201  {object}  handlers.StatusResponse
// @Success     200  {object}  handlers.StatusResponse  "Replayed Idempotency-Key"
// @Header      200  {string}  Idempotency-Replayed  "true"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing or invalid fields"
// @Failure     409  {object}  handlers.ErrorResponse  "Session already recorded"
// @Failure     500  {object}  handlers.ErrorResponse  "Persistence error"
// @Router      /charging_sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	if id, replayed := middleware.ReplayedSessionID(c); replayed {
		middleware.SetSessionID(c, id)
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusOK, success(id))
		return
	}

	payload, valid := decodeObject(c)
	if !valid {
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.svc.Create(c.Request.Context(), payload, key)
	if err != nil {
		serviceError(c, err)
		return
	}
	middleware.SetSessionID(c, res.ID)
	if res.Replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusOK, success(res.ID))
		return
	}
	ok(c, http.StatusCreated, success(res.ID))
}

// ListSessions godoc
// @ID          listChargingSessions
// @Summary     List charging sessions
// @Description Returns sessions ordered by start_time, most recent first. Without page or page_size the full list is returned.
// @Tags        ChargingSessions
// @Produce     json
//
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {array}   domain.ChargingSession
// @Header      200  {integer} X-Total-Count  "Number of sessions"
// @Failure     500  {object}  handlers.ErrorResponse  "Persistence error"
// @Router      /charging_sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()

	_, hasPage := c.GetQuery("page")
	_, hasSize := c.GetQuery("page_size")
	if !hasPage && !hasSize {
		items, err := h.svc.List(ctx)
		if err != nil {
			serviceError(c, err)
			return
		}
		c.Header(HeaderTotalCount, strconv.Itoa(len(items)))
		ok(c, http.StatusOK, items)
		return
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.svc.ListPage(ctx, page, pageSize)
	if err != nil {
		serviceError(c, err)
		return
	}
	c.Header(HeaderTotalCount, strconv.FormatInt(total, 10))
	ok(c, http.StatusOK, items)
}

// ListLocations godoc
// @ID          listChargingLocations
// @Summary     Known charging locations
// @Description Groups sessions with a provider by provider, then city. Each city lists its distinct location details in ascending order.
// @Tags        ChargingSessions
// @Produce     json
// @Success     200  {object}  map[string]map[string][]string
// @Failure     500  {object}  handlers.ErrorResponse  "Persistence error"
// @Router      /charging_sessions/locations [get]
func (h *Handlers) ListLocations(c *gin.Context) {
	idx, err := h.svc.Locations(c.Request.Context())
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, idx)
}

// ListNotes godoc
// @ID          listChargingNotes
// @Summary     Distinct session notes
// @Tags        ChargingSessions
// @Produce     json
// @Success     200  {array}   string
// @Failure     500  {object}  handlers.ErrorResponse  "Persistence error"
// @Router      /charging_sessions/notes [get]
func (h *Handlers) ListNotes(c *gin.Context) {
	notes, err := h.svc.Notes(c.Request.Context())
	if err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, notes)
}

// ExportSessions godoc
// @ID          exportChargingSessions
// @Summary     Download sessions as XLSX
// @Description Renders the full list, in list order, into a single-sheet workbook.
// @Tags        ChargingSessions
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success     200  {file}    file
// @Failure     500  {object}  handlers.ErrorResponse  "Persistence or rendering error"
// @Router      /charging_sessions/export [get]
func (h *Handlers) ExportSessions(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		serviceError(c, err)
		return
	}
	b, err := export.SessionsXLSX(items)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeExportFailed, err.Error())
		return
	}
	c.Header("Content-Disposition", `attachment; filename="charging_sessions.xlsx"`)
	c.Header(HeaderTotalCount, strconv.Itoa(len(items)))
	c.Data(http.StatusOK, export.ContentTypeXLSX, b)
}

// UpdateSession godoc
// @ID          updateChargingSession
// @Summary     Update a charging session
// @Description Applies the updatable keys of the body. id, vehicle_id and created_at cannot be changed; unknown keys are ignored.
// @Tags        ChargingSessions
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Session ID"  format(uuid)
// @Param       body  body  handlers.SessionPayload  true  "Fields to change"
//
// @Success     200  {object}  handlers.StatusResponse
// @Failure     400  {object}  handlers.ErrorResponse  "No valid or invalid fields"
// @Failure     404  {object}  handlers.ErrorResponse  "Record not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Persistence error"
// @Router      /charging_sessions/{id} [put]
func (h *Handlers) UpdateSession(c *gin.Context) {
	payload, valid := decodeObject(c)
	if !valid {
		return
	}
	id := c.Param("id")
	middleware.SetSessionID(c, id)
	if err := h.svc.Update(c.Request.Context(), id, payload); err != nil {
		serviceError(c, err)
		return
	}
	ok(c, http.StatusOK, success(""))
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	page = utils.AtoiDefault(c.Query("page"), utils.DefaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > utils.MaxPageSize {
		pageSize = utils.MaxPageSize
	}
	return
}

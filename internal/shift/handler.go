package shift

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kasira-pos/kasira-pos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the shift lifecycle.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers shift routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/open", h.openShift)
	r.Get("/current", h.currentShift)
	r.Post("/close", h.closeShift)
	r.Get("/{shiftID}/report", h.report)
}

type openShiftRequest struct {
	OperatorID     string          `json:"operator_id" validate:"required"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type closeShiftRequest struct {
	OperatorID   string          `json:"operator_id" validate:"required"`
	PhysicalCash decimal.Decimal `json:"physical_cash"`
}

type currentShiftResponse struct {
	Shift *Shift `json:"shift"`
}

type pendingProblem struct {
	httpx.ProblemDetail
	PendingCount int64 `json:"pending_count"`
}

func (h *Handler) openShift(w http.ResponseWriter, r *http.Request) {
	var req openShiftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	sh, err := h.service.OpenShift(r.Context(), OpenShiftInput{
		OperatorID:     req.OperatorID,
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sh)
}

func (h *Handler) currentShift(w http.ResponseWriter, r *http.Request) {
	operatorID := r.URL.Query().Get("operator_id")
	if operatorID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "operator_id query parameter required")
		return
	}

	sh, err := h.service.CurrentShift(r.Context(), operatorID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, currentShiftResponse{Shift: sh})
}

func (h *Handler) closeShift(w http.ResponseWriter, r *http.Request) {
	var req closeShiftRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.CloseShift(r.Context(), CloseShiftInput{
		OperatorID:   req.OperatorID,
		PhysicalCash: req.PhysicalCash,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	shiftID, err := uuid.Parse(chi.URLParam(r, "shiftID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid shift id")
		return
	}

	report, err := h.service.ReportFor(r.Context(), shiftID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var pendingErr *PendingTransactionsError
	switch {
	case errors.Is(err, ErrInvalidBalance):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDuplicateShift):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrNoActiveShift), errors.Is(err, ErrShiftStillOpen):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrShiftNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &pendingErr):
		httpx.JSON(w, http.StatusConflict, pendingProblem{
			ProblemDetail: httpx.ProblemDetail{
				Title:  "Pending Transactions",
				Status: http.StatusConflict,
				Detail: pendingErr.Error(),
			},
			PendingCount: pendingErr.Count,
		})
	default:
		h.logger.Error("shift request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pushgate/internal/enrollment/models"
	dErrors "pushgate/pkg/domain-errors"
	"pushgate/pkg/platform/httputil"
	"pushgate/pkg/requestcontext"
)

type Service interface {
	Enroll(ctx context.Context, email, pushToken, userAgent string) (*models.Account, error)
}

type EnrollRequest struct {
	Email     string `json:"email"`
	PushToken string `json:"pushToken"`
}

type EnrollResponse struct {
	Message    string `json:"message"`
	AccountID  string `json:"accountId"`
	DeviceName string `json:"deviceName"`
}

// Handler serves device enrollment.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/enroll", h.HandleEnroll)
}

func (h *Handler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req EnrollRequest
	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid enroll request",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	userAgent := requestcontext.UserAgent(ctx)
	if userAgent == "" {
		userAgent = r.UserAgent()
	}
	account, err := h.service.Enroll(ctx, req.Email, req.PushToken, userAgent)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "enrollment failed", "request_id", requestID, "error", err.Error())
		} else {
			h.logger.WarnContext(ctx, "enrollment rejected", "request_id", requestID, "error", err.Error())
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, EnrollResponse{
		Message:    "Device enrolled",
		AccountID:  account.ID.String(),
		DeviceName: account.DeviceName,
	})
}

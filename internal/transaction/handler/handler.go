package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pushgate/internal/transaction/models"
	dErrors "pushgate/pkg/domain-errors"
	"pushgate/pkg/platform/httputil"
	"pushgate/pkg/requestcontext"
)

const maxBodyBytes = 16 << 10

// Service defines the login transaction operations exposed over HTTP.
type Service interface {
	Initiate(ctx context.Context, email string) (*models.Transaction, error)
	Resolve(ctx context.Context, id, status string) (*models.Transaction, error)
	Status(ctx context.Context, id string) (*models.Transaction, error)
}

// Handler serves /login, /verify and the status poll.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/login", h.HandleLogin)
	r.Post("/verify", h.HandleVerify)
	r.Get("/transactions/{id}", h.HandleStatus)
}

// HandleLogin opens a login transaction and pushes an approval request to the
// subject's device.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	txn, err := h.service.Initiate(ctx, req.Email)
	if err != nil {
		h.writeError(ctx, w, err, "login initiation failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LoginResponse{TransactionID: txn.ID.String()})
}

// HandleVerify records the device's decision for a transaction.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if _, err := h.service.Resolve(ctx, req.TransactionID, req.Status); err != nil {
		h.writeError(ctx, w, err, "verification failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Verification status updated"})
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	txn, err := h.service.Status(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err, "status lookup failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(txn))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	level := slog.LevelWarn
	if code := dErrors.CodeOf(err); code == dErrors.CodeInternal || code == dErrors.CodeDependencyFailure {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
	httputil.WriteError(w, err)
}

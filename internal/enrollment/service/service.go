package service

import (
	"context"
	"errors"
	"log/slog"

	"pushgate/internal/enrollment/models"
	"pushgate/internal/platform/metrics"
	dErrors "pushgate/pkg/domain-errors"
	audit "pushgate/pkg/platform/audit"
	"pushgate/pkg/platform/sentinel"
	"pushgate/pkg/requestcontext"
)

type Store interface {
	Save(ctx context.Context, account *models.Account) error
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service enrolls approving devices and looks accounts up by email.
type Service struct {
	store          Store
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enroll binds a push token to an email. Each email can be enrolled once.
func (s *Service) Enroll(ctx context.Context, email, pushToken, userAgent string) (*models.Account, error) {
	account, err := models.NewAccount(email, pushToken, models.DeviceName(userAgent), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email already enrolled")
		}
		if errors.Is(err, sentinel.ErrUnavailable) {
			return nil, dErrors.Wrap(err, dErrors.CodeDependencyFailure, "failed to save account")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save account")
	}

	s.metrics.IncEnrollments()
	s.logger.InfoContext(ctx, string(audit.EventAccountEnrolled),
		"account_id", account.ID,
		"device", account.DeviceName,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	if s.auditPublisher != nil {
		if err := s.auditPublisher.Emit(ctx, audit.Event{
			Action:    string(audit.EventAccountEnrolled),
			AccountID: account.ID,
			Email:     account.Email,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit emit failed", "error", err)
		}
	}
	return account, nil
}

// FindByEmail returns the enrolled account. A missing account is reported as
// CodeNotFound wrapping sentinel.ErrNotFound.
func (s *Service) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = models.NormalizeEmail(email)
	if err := models.ValidateEmail(email); err != nil {
		return nil, err
	}
	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return account, nil
}

package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	enrollment "pushgate/internal/enrollment/models"
	"pushgate/internal/platform/metrics"
	"pushgate/internal/push"
	"pushgate/internal/registry"
	"pushgate/internal/transaction/models"
	"pushgate/pkg/domain"
	dErrors "pushgate/pkg/domain-errors"
	audit "pushgate/pkg/platform/audit"
	"pushgate/pkg/platform/sentinel"
	"pushgate/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, id domain.TransactionID) (*models.Transaction, error)
	Execute(ctx context.Context, id domain.TransactionID, validate func(*models.Transaction) error, mutate func(*models.Transaction)) (*models.Transaction, error)
}

type AccountFinder interface {
	FindByEmail(ctx context.Context, email string) (*enrollment.Account, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg push.Message) <-chan push.Result
}

// Resolver hands a resolution to whichever subscriber is bound to the
// transaction.
type Resolver interface {
	ResolveAndRemove(ctx context.Context, id domain.TransactionID, d registry.Delivery) bool
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service drives a login transaction from creation to its single resolution.
type Service struct {
	store      Store
	accounts   AccountFinder
	dispatcher Dispatcher
	resolver   Resolver

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	newID          func() (domain.TransactionID, error)
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

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithIDGenerator replaces the transaction id source.
func WithIDGenerator(fn func() (domain.TransactionID, error)) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func New(store Store, accounts AccountFinder, dispatcher Dispatcher, resolver Resolver, opts ...Option) *Service {
	s := &Service{
		store:      store,
		accounts:   accounts,
		dispatcher: dispatcher,
		resolver:   resolver,
		logger:     slog.Default(),
		tracer:     otel.Tracer("pushgate/transaction"),
		newID:      domain.NewTransactionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initiate opens a pending transaction for the enrolled account behind email
// and asks its device for a decision. The push is fire-and-forget: a failed
// dispatch is logged and never fails the call.
func (s *Service) Initiate(ctx context.Context, email string) (_ *models.Transaction, err error) {
	ctx, span := s.tracer.Start(ctx, "transaction.Initiate")
	defer func() { endSpan(span, err) }()

	email = enrollment.NormalizeEmail(email)
	if err := enrollment.ValidateEmail(email); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, storeError(err, "failed to load account")
	}

	id, err := s.newID()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate transaction id")
	}
	txn, err := models.NewTransaction(id, account.ID, account.Email, requestcontext.ClientIP(ctx), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, txn); err != nil {
		return nil, storeError(err, "failed to create transaction")
	}
	span.SetAttributes(attribute.String("transaction.id", txn.ID.String()))

	s.metrics.IncTransactionsInitiated()
	s.logAudit(ctx, audit.EventLoginRequested, txn, "")

	results := s.dispatcher.Dispatch(ctx, push.NewLoginRequest(account.PushToken, txn.ID))
	go s.awaitPush(context.WithoutCancel(ctx), txn, results)

	return txn, nil
}

func (s *Service) awaitPush(ctx context.Context, txn *models.Transaction, results <-chan push.Result) {
	res, ok := <-results
	if !ok {
		return
	}
	if res.Err != nil {
		s.logger.WarnContext(ctx, "push notification failed",
			"transaction_id", txn.ID,
			"error", res.Err,
			"request_id", requestcontext.RequestID(ctx),
		)
		s.emit(ctx, audit.Event{
			Action:        string(audit.EventPushFailed),
			AccountID:     txn.AccountID,
			TransactionID: txn.ID,
			Reason:        res.Err.Error(),
		})
		return
	}
	s.logger.DebugContext(ctx, "push notification sent",
		"transaction_id", txn.ID,
		"message_id", res.MessageID,
	)
	s.emit(ctx, audit.Event{
		Action:        string(audit.EventPushDispatched),
		AccountID:     txn.AccountID,
		TransactionID: txn.ID,
	})
}

// Resolve records the device's decision and forwards it to the subscriber
// bound to the transaction, if any. The first resolution wins: repeating it is
// accepted, contradicting it fails with CodeAlreadyResolved.
func (s *Service) Resolve(ctx context.Context, rawID, rawStatus string) (_ *models.Transaction, err error) {
	ctx, span := s.tracer.Start(ctx, "transaction.Resolve")
	defer func() { endSpan(span, err) }()

	status, err := domain.ParseResolution(rawStatus)
	if err != nil {
		return nil, err
	}
	id, err := domain.ParseTransactionID(rawID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("transaction.id", id.String()),
		attribute.String("transaction.status", status.String()),
	)

	now := requestcontext.Now(ctx)
	var applied bool
	txn, err := s.store.Execute(ctx, id,
		func(t *models.Transaction) error {
			return t.CanResolve(status)
		},
		func(t *models.Transaction) {
			applied = t.IsPending()
			t.ApplyResolution(status, now)
		},
	)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "Transaction not found")
		case dErrors.HasCode(err, dErrors.CodeAlreadyResolved):
			s.logger.InfoContext(ctx, "conflicting resolution rejected",
				"transaction_id", id,
				"requested_status", status,
				"request_id", requestcontext.RequestID(ctx),
			)
			s.emit(ctx, audit.Event{
				Action:        string(audit.EventResolutionRejected),
				TransactionID: id,
				Decision:      status.String(),
				Reason:        err.Error(),
			})
			return nil, err
		case dErrors.HasCode(err, dErrors.CodeValidation):
			return nil, err
		}
		return nil, storeError(err, "failed to resolve transaction")
	}

	if applied {
		s.metrics.IncTransactionsResolved(txn.Status.String())
		s.logAudit(ctx, audit.EventLoginResolved, txn, txn.Status.String())
	}

	delivered := s.resolver.ResolveAndRemove(ctx, txn.ID, registry.Delivery{Status: txn.Status})
	s.logger.DebugContext(ctx, "resolution forwarded",
		"transaction_id", txn.ID,
		"status", txn.Status,
		"delivered", delivered,
		"repeat", !applied,
	)
	return txn, nil
}

// Status returns the stored transaction. Subscribers that attached after the
// resolution was delivered poll this instead.
func (s *Service) Status(ctx context.Context, rawID string) (*models.Transaction, error) {
	id, err := domain.ParseTransactionID(rawID)
	if err != nil {
		return nil, err
	}
	txn, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Transaction not found")
		}
		return nil, storeError(err, "failed to load transaction")
	}
	return txn, nil
}

func (s *Service) logAudit(ctx context.Context, event audit.AuditEvent, txn *models.Transaction, decision string) {
	s.logger.InfoContext(ctx, string(event),
		"transaction_id", txn.ID,
		"account_id", txn.AccountID,
		"decision", decision,
		"request_id", requestcontext.RequestID(ctx),
		"log_type", "audit",
	)
	s.emit(ctx, audit.Event{
		Action:        string(event),
		AccountID:     txn.AccountID,
		TransactionID: txn.ID,
		Email:         txn.Email,
		Decision:      decision,
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}

// storeError maps an infrastructure failure onto a caller-safe code.
func storeError(err error, msg string) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeDependencyFailure, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

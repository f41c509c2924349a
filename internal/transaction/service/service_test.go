package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	enrollment "pushgate/internal/enrollment/models"
	enrollmentstore "pushgate/internal/enrollment/store"
	"pushgate/internal/platform/logger"
	"pushgate/internal/platform/metrics"
	"pushgate/internal/push"
	"pushgate/internal/registry"
	"pushgate/internal/subscriber"
	"pushgate/internal/transaction/models"
	"pushgate/internal/transaction/store"
	"pushgate/pkg/domain"
	dErrors "pushgate/pkg/domain-errors"
	audit "pushgate/pkg/platform/audit"
	"pushgate/pkg/platform/audit/publisher"
	auditmemory "pushgate/pkg/platform/audit/store/memory"
	"pushgate/pkg/platform/sentinel"
	"pushgate/pkg/requestcontext"
)

type fakeDispatcher struct {
	err error

	mu   sync.Mutex
	sent []push.Message
}

func (d *fakeDispatcher) Dispatch(_ context.Context, msg push.Message) <-chan push.Result {
	d.mu.Lock()
	d.sent = append(d.sent, msg)
	d.mu.Unlock()

	out := make(chan push.Result, 1)
	out <- push.Result{MessageID: "msg-1", Err: d.err}
	close(out)
	return out
}

func (d *fakeDispatcher) Sent() []push.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]push.Message(nil), d.sent...)
}

type unavailableStore struct {
	store.Store
}

func (unavailableStore) Create(context.Context, *models.Transaction) error {
	return fmt.Errorf("insert transaction: %w", sentinel.ErrUnavailable)
}

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	txns       *store.InMemoryStore
	accounts   *enrollmentstore.InMemoryStore
	dispatcher *fakeDispatcher
	registry   *registry.Registry
	auditStore *auditmemory.InMemoryStore
	metrics    *metrics.Metrics
	service    *Service
	alice      *enrollment.Account
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(requestcontext.WithRequestID(context.Background(), "req-1"), s.now)
	s.txns = store.NewInMemory()
	s.accounts = enrollmentstore.NewInMemory()
	s.dispatcher = &fakeDispatcher{}
	s.registry = registry.New()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())

	alice, err := enrollment.NewAccount("alice@example.com", "alice-device-token", "Safari on iOS", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.accounts.Save(s.ctx, alice))
	s.alice = alice

	s.service = s.newService(s.txns)
}

func (s *ServiceSuite) newService(st Store) *Service {
	return New(st, s.accounts, s.dispatcher, s.registry,
		WithLogger(logger.Discard()),
		WithMetrics(s.metrics),
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
	)
}

func (s *ServiceSuite) auditActions() []string {
	events, err := s.auditStore.ListRecent(s.ctx, 100)
	s.Require().NoError(err)
	actions := make([]string, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	return actions
}

func (s *ServiceSuite) subscribe(id domain.TransactionID) *subscriber.Session {
	sess := subscriber.NewSession(s.registry, logger.Discard())
	s.T().Cleanup(sess.Close)
	sess.HandleMessage(s.ctx, []byte(fmt.Sprintf(`{"action":"subscribe","transactionId":%q}`, id)))
	s.Require().Equal(1, sess.Subscriptions())
	return sess
}

func (s *ServiceSuite) TestInitiate() {
	s.Run("enrolled subject gets a pending transaction and a push", func() {
		txn, err := s.service.Initiate(s.ctx, "  Alice@Example.com ")
		s.Require().NoError(err)

		s.Equal(domain.StatusPending, txn.Status)
		s.Equal(s.alice.ID, txn.AccountID)
		s.Equal(s.now, txn.CreatedAt)

		stored, err := s.txns.FindByID(s.ctx, txn.ID)
		s.Require().NoError(err)
		s.Equal(domain.StatusPending, stored.Status)

		sent := s.dispatcher.Sent()
		s.Require().Len(sent, 1)
		s.Equal("alice-device-token", sent[0].Token)
		s.Equal(txn.ID, sent[0].TransactionID)
		s.Equal(txn.ID.String(), sent[0].Data[push.DataTransactionID])
		s.Contains(sent[0].Body, txn.ID.String())

		s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.TransactionsInitiated))
	})

	s.Run("each call creates a distinct transaction", func() {
		a, err := s.service.Initiate(s.ctx, "alice@example.com")
		s.Require().NoError(err)
		b, err := s.service.Initiate(s.ctx, "alice@example.com")
		s.Require().NoError(err)
		s.NotEqual(a.ID, b.ID)
	})

	s.Run("unknown subject is not found and nothing is sent", func() {
		before := len(s.dispatcher.Sent())
		_, err := s.service.Initiate(s.ctx, "unknown@example.com")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal("user not found", err.Error())
		s.Len(s.dispatcher.Sent(), before)
	})

	s.Run("empty or malformed subject is a validation error", func() {
		for _, email := range []string{"", "   ", "not-an-email"} {
			_, err := s.service.Initiate(s.ctx, email)
			s.Require().Error(err, email)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), email)
		}
	})
}

func (s *ServiceSuite) TestInitiate_PushFailureIsSwallowed() {
	s.dispatcher.err = push.ErrQueueFull

	txn, err := s.service.Initiate(s.ctx, "alice@example.com")
	s.Require().NoError(err)
	s.NotNil(txn)

	s.Eventually(func() bool {
		events, _ := s.auditStore.ListByAccount(s.ctx, s.alice.ID)
		for _, e := range events {
			if e.Action == string(audit.EventPushFailed) && e.TransactionID == txn.ID {
				return e.Reason == push.ErrQueueFull.Error() && e.RequestID == "req-1"
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func (s *ServiceSuite) TestInitiate_PersistenceFailureIsSurfaced() {
	svc := s.newService(unavailableStore{Store: s.txns})

	_, err := svc.Initiate(s.ctx, "alice@example.com")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeDependencyFailure))
	s.True(errors.Is(err, sentinel.ErrUnavailable))
	s.Empty(s.dispatcher.Sent())
}

func (s *ServiceSuite) TestResolve() {
	s.Run("denied reaches the bound subscriber exactly once", func() {
		txn, err := s.service.Initiate(s.ctx, "alice@example.com")
		s.Require().NoError(err)
		sess := s.subscribe(txn.ID)

		resolved, err := s.service.Resolve(s.ctx, txn.ID.String(), "denied")
		s.Require().NoError(err)
		s.Equal(domain.StatusDenied, resolved.Status)
		s.Require().NotNil(resolved.ResolvedAt)

		select {
		case d := <-sess.Outbound():
			s.Equal(domain.StatusDenied, d.Status)
		default:
			s.Fail("expected a delivery")
		}
		s.Zero(s.registry.Len())

		_, err = s.service.Resolve(s.ctx, txn.ID.String(), "denied")
		s.Require().NoError(err, "same-status repeat is accepted")
		s.Empty(sess.Outbound(), "binding was consumed by the first resolution")
	})

	s.Run("approval without a subscriber is still persisted", func() {
		txn, err := s.service.Initiate(s.ctx, "alice@example.com")
		s.Require().NoError(err)

		_, err = s.service.Resolve(s.ctx, txn.ID.String(), "approved")
		s.Require().NoError(err)

		polled, err := s.service.Status(s.ctx, txn.ID.String())
		s.Require().NoError(err)
		s.Equal(domain.StatusApproved, polled.Status)
	})

	s.Run("unknown transaction", func() {
		_, err := s.service.Resolve(s.ctx, "does-not-exist", "approved")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal("Transaction not found", err.Error())
	})

	s.Run("invalid status leaves the transaction pending", func() {
		txn, err := s.service.Initiate(s.ctx, "alice@example.com")
		s.Require().NoError(err)

		for _, status := range []string{"", "maybe", "pending"} {
			_, err = s.service.Resolve(s.ctx, txn.ID.String(), status)
			s.Require().Error(err, status)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), status)
		}

		stored, err := s.txns.FindByID(s.ctx, txn.ID)
		s.Require().NoError(err)
		s.Equal(domain.StatusPending, stored.Status)
	})

	s.Run("malformed id", func() {
		_, err := s.service.Resolve(s.ctx, "../etc/passwd", "approved")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestResolve_FirstResolutionIsAuthoritative() {
	txn, err := s.service.Initiate(s.ctx, "alice@example.com")
	s.Require().NoError(err)

	_, err = s.service.Resolve(s.ctx, txn.ID.String(), "approved")
	s.Require().NoError(err)

	_, err = s.service.Resolve(s.ctx, txn.ID.String(), "denied")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))

	stored, err := s.txns.FindByID(s.ctx, txn.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusApproved, stored.Status)

	s.Contains(s.auditActions(), string(audit.EventResolutionRejected))
	s.Equal(float64(1), promtestutil.ToFloat64(s.metrics.TransactionsResolved.WithLabelValues("approved")))
	s.Equal(float64(0), promtestutil.ToFloat64(s.metrics.TransactionsResolved.WithLabelValues("denied")))
}

func (s *ServiceSuite) TestResolve_ConcurrentConflictingDecisions() {
	txn, err := s.service.Initiate(s.ctx, "alice@example.com")
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, status := range []string{"approved", "denied"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.service.Resolve(s.ctx, txn.ID.String(), status)
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))
			failures++
		}
	}
	s.Equal(1, failures, "exactly one decision wins")
}

func (s *ServiceSuite) TestStatus() {
	txn, err := s.service.Initiate(s.ctx, "alice@example.com")
	s.Require().NoError(err)

	got, err := s.service.Status(s.ctx, txn.ID.String())
	s.Require().NoError(err)
	s.Equal(domain.StatusPending, got.Status)

	_, err = s.service.Status(s.ctx, "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Status(s.ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestNilLoggerKeepsDefault() {
	svc := New(s.txns, s.accounts, s.dispatcher, s.registry, WithLogger(nil))

	s.NotPanics(func() {
		txn, err := svc.Initiate(s.ctx, "alice@example.com")
		s.Require().NoError(err)
		_, err = svc.Resolve(s.ctx, txn.ID.String(), "approved")
		s.Require().NoError(err)
	})
}

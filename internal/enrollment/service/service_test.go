package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushgate/internal/enrollment/models"
	"pushgate/internal/enrollment/store"
	"pushgate/internal/platform/logger"
	"pushgate/internal/platform/metrics"
	dErrors "pushgate/pkg/domain-errors"
	audit "pushgate/pkg/platform/audit"
	"pushgate/pkg/platform/audit/publisher"
	auditmemory "pushgate/pkg/platform/audit/store/memory"
	"pushgate/pkg/platform/sentinel"
	"pushgate/pkg/testutil"
)

const iPhoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

type brokenStore struct{ store.Store }

func (brokenStore) Save(context.Context, *models.Account) error {
	return fmt.Errorf("insert account: %w", sentinel.ErrUnavailable)
}

func newService(t *testing.T, st Store) (*Service, *auditmemory.InMemoryStore, *metrics.Metrics) {
	t.Helper()
	events := auditmemory.NewInMemoryStore()
	m := metrics.New(prometheus.NewRegistry())
	svc := New(st,
		WithLogger(logger.Discard()),
		WithMetrics(m),
		WithAuditPublisher(publisher.NewPublisher(events)),
	)
	return svc, events, m
}

func TestEnroll(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	ctx := testutil.FixedTimeContext(now)

	testutil.Given(t, "a fresh account store", func(t *testing.T) {
		svc, events, m := newService(t, store.NewInMemory())

		testutil.When(t, "a device enrolls", func(t *testing.T) {
			account, err := svc.Enroll(ctx, " Alice@Example.com", "token-1", iPhoneUA)
			require.NoError(t, err)

			testutil.Then(t, "the account is normalized and stamped", func(t *testing.T) {
				assert.Equal(t, "alice@example.com", account.Email)
				assert.Equal(t, now, account.EnrolledAt)
				assert.Contains(t, account.DeviceName, "iOS")
			})

			testutil.Then(t, "it is findable case-insensitively", func(t *testing.T) {
				found, err := svc.FindByEmail(ctx, "ALICE@example.com")
				require.NoError(t, err)
				assert.Equal(t, account.ID, found.ID)
			})

			testutil.Then(t, "the enrollment is audited and counted", func(t *testing.T) {
				list, err := events.ListByAccount(ctx, account.ID)
				require.NoError(t, err)
				require.Len(t, list, 1)
				assert.Equal(t, string(audit.EventAccountEnrolled), list[0].Action)
				assert.Equal(t, audit.CategoryCompliance, list[0].Category)
				assert.Equal(t, float64(1), promtestutil.ToFloat64(m.Enrollments))
			})
		})

		testutil.When(t, "the same email enrolls again", func(t *testing.T) {
			_, err := svc.Enroll(ctx, "alice@example.com", "token-2", iPhoneUA)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		})
	})

	t.Run("validation", func(t *testing.T) {
		svc, _, _ := newService(t, store.NewInMemory())
		cases := map[string]struct {
			email, token, msg string
		}{
			"missing email": {"", "tok", "email is required"},
			"invalid email": {"alice", "tok", "email is invalid"},
			"missing token": {"bob@example.com", "  ", "pushToken is required"},
		}
		for name, tc := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := svc.Enroll(ctx, tc.email, tc.token, "")
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
				assert.Equal(t, tc.msg, err.Error())
			})
		}
	})

	t.Run("store unavailable", func(t *testing.T) {
		svc, _, _ := newService(t, brokenStore{Store: store.NewInMemory()})
		_, err := svc.Enroll(ctx, "carol@example.com", "tok", "")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDependencyFailure))
	})
}

func TestFindByEmail_NotFound(t *testing.T) {
	svc, _, _ := newService(t, store.NewInMemory())

	_, err := svc.FindByEmail(context.Background(), "ghost@example.com")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestNew_NilLoggerKeepsDefault(t *testing.T) {
	svc := New(store.NewInMemory(), WithLogger(nil))

	assert.NotPanics(t, func() {
		_, err := svc.Enroll(context.Background(), "bob@example.com", "token-2", iPhoneUA)
		require.NoError(t, err)
	})
}

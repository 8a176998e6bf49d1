package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kappa90/posthog/internal/clock"
)

func policy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

func TestRetriable_TransientShapes(t *testing.T) {
	shapes := []struct {
		name string
		err  error
	}{
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}},
		{"connection reset", errors.New("read tcp 10.0.0.1:5432: connection reset by peer")},
		{"pg server closed", errors.New("connection to server at \"db\" failed: server closed the connection unexpectedly")},
		{"pg starting up", errors.New("FATAL: the database system is starting up")},
		{"pg sqlstate 08006", &pgconn.PgError{Code: "08006", Message: "connection failure"}},
		{"pg sqlstate 53300", &pgconn.PgError{Code: "53300", Message: "too many connections"}},
		{"deadline", context.DeadlineExceeded},
		{"io timeout", errors.New("dial tcp 10.0.0.1:6379: i/o timeout")},
		{"pool exhausted", errors.New("acquire: connection pool exhausted")},
		{"wrapped transient", errors.New("get organization: dial tcp: connection refused")},
	}

	for _, shape := range shapes {
		t.Run(shape.name, func(t *testing.T) {
			if !Retriable(shape.err) {
				t.Errorf("%v must classify as transient", shape.err)
			}
		})
	}
}

func TestRetriable_PermanentShapes(t *testing.T) {
	shapes := []struct {
		name string
		err  error
	}{
		{"nil", nil},
		{"plain logic error", errors.New("plugin threw TypeError")},
		{"pg constraint violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}},
		{"pg syntax error", &pgconn.PgError{Code: "42601", Message: "syntax error"}},
		{"cancelled", context.Canceled},
	}

	for _, shape := range shapes {
		t.Run(shape.name, func(t *testing.T) {
			if Retriable(shape.err) {
				t.Errorf("%v must not classify as transient", shape.err)
			}
		})
	}
}

func TestIfRetriable_ExhaustsThenDependencyUnavailable(t *testing.T) {
	clk := clock.NewFake()
	cause := errors.New("connection to server at \"db\" failed: server closed the connection unexpectedly")

	calls := 0
	_, err := IfRetriable(context.Background(), "Postgres", policy(3), clk, func(ctx context.Context) (int, error) {
		calls++
		return 0, cause
	})

	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}

	var de *DependencyUnavailableError
	if !errors.As(err, &de) {
		t.Fatalf("expected DependencyUnavailableError, got %T: %v", err, err)
	}
	if de.Dependency != "Postgres" {
		t.Errorf("expected dependency Postgres, got %s", de.Dependency)
	}
	// Cause — исходная ошибка с тем же сообщением.
	if de.Cause.Error() != cause.Error() {
		t.Errorf("cause message mismatch: %s", de.Cause.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is must reach the original cause")
	}
}

func TestIfRetriable_PermanentErrorZeroRetries(t *testing.T) {
	clk := clock.NewFake()
	logicErr := errors.New("invalid plugin config")

	calls := 0
	_, err := IfRetriable(context.Background(), "Postgres", policy(5), clk, func(ctx context.Context) (int, error) {
		calls++
		return 0, logicErr
	})

	if calls != 1 {
		t.Errorf("permanent error must not be retried, got %d calls", calls)
	}
	// Ошибка возвращается без изменений и без обёртки.
	if err != logicErr {
		t.Errorf("permanent error must be returned unchanged, got %v", err)
	}
	if len(clk.Slept()) != 0 {
		t.Errorf("no backoff for permanent errors, slept %v", clk.Slept())
	}
}

func TestIfRetriable_SucceedsAfterTransientFailures(t *testing.T) {
	clk := clock.NewFake()
	transient := errors.New("write tcp: broken pipe")

	calls := 0
	result, err := IfRetriable(context.Background(), "RabbitMQ", policy(3), clk, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transient
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %q", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestIfRetriable_ExponentialBackoffCapped(t *testing.T) {
	clk := clock.NewFake()
	transient := errors.New("i/o timeout")

	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	_, _ = IfRetriable(context.Background(), "Redis", p, clk, func(ctx context.Context) (int, error) {
		return 0, transient
	})

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	got := clk.Slept()
	if len(got) != len(want) {
		t.Fatalf("expected %d sleeps, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestDo_WrapsOperationWithoutResult(t *testing.T) {
	clk := clock.NewFake()

	calls := 0
	err := Do(context.Background(), "RabbitMQ", policy(2), clk, func(ctx context.Context) error {
		calls++
		return errors.New("connection reset by peer")
	})

	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
	if !IsDependencyUnavailable(err) {
		t.Fatalf("expected DependencyUnavailableError, got %v", err)
	}
}

package plugins

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kappa90/posthog/internal/clock"
	"github.com/kappa90/posthog/internal/repo"
	"github.com/kappa90/posthog/internal/retry"
)

// fakeStore — конфигурационное хранилище в памяти.
type fakeStore struct {
	mu   sync.Mutex
	rows []repo.PluginConfigRow
	errs []error // ошибки, возвращаемые первыми вызовами
}

func (s *fakeStore) ListEnabled(ctx context.Context) ([]repo.PluginConfigRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	out := make([]repo.PluginConfigRow, len(s.rows))
	copy(out, s.rows)
	return out, nil
}

func (s *fakeStore) setRows(rows []repo.PluginConfigRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
}

// noopFactory — фабрика без хуков.
func noopFactory(config map[string]any) (Capabilities, error) {
	return Capabilities{}, nil
}

func row(id int64, plugin string) repo.PluginConfigRow {
	return repo.PluginConfigRow{ID: id, Plugin: plugin, TeamID: 1, OrganizationID: "org-1", Order: int(id)}
}

func newTestManager(store ConfigStore, factories map[string]Factory, jitterMax time.Duration) (*Manager, *clock.Fake) {
	clk := clock.NewFake()
	m := NewManager(ManagerConfig{
		Store:     store,
		Factories: factories,
		Clock:     clk,
		JitterMax: jitterMax,
	})
	return m, clk
}

func TestSetup_LoadsEnabledPlugins(t *testing.T) {
	store := &fakeStore{rows: []repo.PluginConfigRow{row(1, "noop"), row(2, "noop")}}
	m, _ := newTestManager(store, map[string]Factory{"noop": noopFactory}, 0)

	if err := m.Setup(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reg := m.Registry()
	if reg.Len() != 2 {
		t.Fatalf("expected 2 plugins, got %d", reg.Len())
	}
	inst, ok := reg.Get(1)
	if !ok {
		t.Fatal("plugin config 1 should be loaded")
	}
	if inst.State != StateReady {
		t.Errorf("expected READY, got %s", inst.State)
	}
}

func TestSetup_FailedPluginExcludedNotFatal(t *testing.T) {
	broken := func(config map[string]any) (Capabilities, error) {
		return Capabilities{}, errors.New("bad config")
	}
	store := &fakeStore{rows: []repo.PluginConfigRow{row(1, "noop"), row(2, "broken"), row(3, "unknown")}}
	m, _ := newTestManager(store, map[string]Factory{"noop": noopFactory, "broken": broken}, 0)

	// Ошибка компиляции одного плагина и отсутствие фабрики
	// не прерывают setup.
	if err := m.Setup(context.Background()); err != nil {
		t.Fatalf("setup should not fail on per-plugin errors: %v", err)
	}

	reg := m.Registry()
	if reg.Len() != 1 {
		t.Fatalf("expected only the healthy plugin, got %d", reg.Len())
	}
	if _, ok := reg.Get(2); ok {
		t.Error("broken plugin should be excluded")
	}
	if _, ok := reg.Get(3); ok {
		t.Error("plugin without factory should be excluded")
	}
}

func TestSetup_TransientStoreFailureRetriedThenDependencyUnavailable(t *testing.T) {
	storeErr := errors.New("connection to server at \"db\" failed: server closed the connection unexpectedly")
	store := &fakeStore{errs: []error{storeErr, storeErr, storeErr}}
	m, clk := newTestManager(store, nil, 0)

	err := m.Setup(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	var de *retry.DependencyUnavailableError
	if !errors.As(err, &de) {
		t.Fatalf("expected DependencyUnavailableError, got %T: %v", err, err)
	}
	if de.Dependency != "Postgres" {
		t.Errorf("expected dependency Postgres, got %s", de.Dependency)
	}
	if !errors.Is(err, storeErr) {
		t.Error("cause should be the original store error")
	}

	// Две паузы backoff между тремя попытками.
	if got := len(clk.Slept()); got != 2 {
		t.Errorf("expected 2 backoff sleeps, got %d", got)
	}
}

func TestSetup_TransientFailureThenSuccess(t *testing.T) {
	storeErr := errors.New("read tcp 127.0.0.1:5432: connection reset by peer")
	store := &fakeStore{
		rows: []repo.PluginConfigRow{row(1, "noop")},
		errs: []error{storeErr},
	}
	m, _ := newTestManager(store, map[string]Factory{"noop": noopFactory}, 0)

	if err := m.Setup(context.Background()); err != nil {
		t.Fatalf("setup should succeed after retry: %v", err)
	}
	if m.Registry().Len() != 1 {
		t.Fatal("registry should contain the plugin after retried setup")
	}
}

func TestReload_ZeroJitterNoDelayAndPicksUpNewPlugin(t *testing.T) {
	store := &fakeStore{rows: []repo.PluginConfigRow{row(1, "noop")}}
	m, clk := newTestManager(store, map[string]Factory{"noop": noopFactory}, 0)

	if err := m.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Плагин добавлен в хранилище после первой загрузки.
	store.setRows([]repo.PluginConfigRow{row(1, "noop"), row(2, "noop")})

	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(clk.Slept()); got != 0 {
		t.Errorf("jitter max 0 must not sleep, got %d sleeps", got)
	}
	if m.Registry().Len() != 2 {
		t.Errorf("reload should pick up the new plugin, got %d", m.Registry().Len())
	}
}

func TestReload_JitterBoundedByMax(t *testing.T) {
	store := &fakeStore{rows: nil}
	m, clk := newTestManager(store, nil, 10*time.Second)

	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	slept := clk.Slept()
	if len(slept) != 1 {
		t.Fatalf("expected exactly one jitter sleep, got %d", len(slept))
	}
	if slept[0] < 0 || slept[0] >= 10*time.Second {
		t.Errorf("jitter %v out of [0, 10s)", slept[0])
	}
}

func TestReload_AtomicSnapshotUnderConcurrentReaders(t *testing.T) {
	// Два набора: реестр должен наблюдаться либо целиком старым
	// (1, 2), либо целиком новым (3, 4) — никогда смесью.
	oldRows := []repo.PluginConfigRow{row(1, "noop"), row(2, "noop")}
	newRows := []repo.PluginConfigRow{row(3, "noop"), row(4, "noop")}

	store := &fakeStore{rows: oldRows}
	m, _ := newTestManager(store, map[string]Factory{"noop": noopFactory}, 0)
	if err := m.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}

	var stop atomic.Bool
	var wg sync.WaitGroup
	violations := make(chan string, 16)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				reg := m.Registry()
				_, has1 := reg.Get(1)
				_, has2 := reg.Get(2)
				_, has3 := reg.Get(3)
				_, has4 := reg.Get(4)

				oldFull := has1 && has2 && !has3 && !has4
				newFull := has3 && has4 && !has1 && !has2
				if !oldFull && !newFull {
					select {
					case violations <- fmt.Sprintf("mixed snapshot: 1=%v 2=%v 3=%v 4=%v", has1, has2, has3, has4):
					default:
					}
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			store.setRows(newRows)
		} else {
			store.setRows(oldRows)
		}
		if err := m.Reload(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	stop.Store(true)
	wg.Wait()

	select {
	case v := <-violations:
		t.Fatal(v)
	default:
	}
}

func TestTeardown_BestEffortCollectsAllFailures(t *testing.T) {
	var torndown []string
	factory := func(name string, fail bool) Factory {
		return func(config map[string]any) (Capabilities, error) {
			return Capabilities{
				Teardown: func(ctx context.Context) error {
					torndown = append(torndown, name)
					if fail {
						return fmt.Errorf("%s: teardown boom", name)
					}
					return nil
				},
			}, nil
		}
	}

	store := &fakeStore{rows: []repo.PluginConfigRow{row(1, "a"), row(2, "b"), row(3, "c")}}
	m, _ := newTestManager(store, map[string]Factory{
		"a": factory("a", true),
		"b": factory("b", false),
		"c": factory("c", true),
	}, 0)
	if err := m.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := m.Teardown(context.Background())
	if err == nil {
		t.Fatal("expected aggregated teardown error")
	}

	// Все три хука вызваны несмотря на ошибки первых.
	if len(torndown) != 3 {
		t.Fatalf("all teardown hooks must run, ran: %v", torndown)
	}
	if m.Registry().Len() != 0 {
		t.Error("registry must be released after teardown")
	}
}

func TestTeardown_Idempotent(t *testing.T) {
	var calls int
	factory := func(config map[string]any) (Capabilities, error) {
		return Capabilities{
			Teardown: func(ctx context.Context) error {
				calls++
				return nil
			},
		}, nil
	}

	store := &fakeStore{rows: []repo.PluginConfigRow{row(1, "p")}}
	m, _ := newTestManager(store, map[string]Factory{"p": factory}, 0)
	if err := m.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := m.Teardown(context.Background()); err != nil {
		t.Fatalf("first teardown: %v", err)
	}
	if err := m.Teardown(context.Background()); err != nil {
		t.Fatalf("second teardown must not fail: %v", err)
	}

	if calls != 1 {
		t.Errorf("teardown hook must run once, ran %d times", calls)
	}
}

func TestRunHook_TerminalConditions(t *testing.T) {
	factory := func(config map[string]any) (Capabilities, error) {
		return Capabilities{
			RunEveryMinute: func(ctx context.Context) error { return nil },
		}, nil
	}

	store := &fakeStore{rows: []repo.PluginConfigRow{row(1, "p")}}
	m, _ := newTestManager(store, map[string]Factory{"p": factory}, 0)
	if err := m.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Плагин отсутствует в registry.
	if _, err := m.RunHook(context.Background(), 99, string(CadenceEveryMinute), nil); !errors.Is(err, ErrPluginNotLoaded) {
		t.Errorf("expected ErrPluginNotLoaded, got %v", err)
	}

	// Хук не экспортирован.
	if _, err := m.RunHook(context.Background(), 1, string(CadenceEveryDay), nil); !errors.Is(err, ErrHookNotImplemented) {
		t.Errorf("expected ErrHookNotImplemented, got %v", err)
	}
	if _, err := m.RunHook(context.Background(), 1, HookProcessEvent, nil); !errors.Is(err, ErrHookNotImplemented) {
		t.Errorf("expected ErrHookNotImplemented for processEvent, got %v", err)
	}
	if _, err := m.RunHook(context.Background(), 1, "exportEvents", nil); !errors.Is(err, ErrHookNotImplemented) {
		t.Errorf("expected ErrHookNotImplemented for unknown job, got %v", err)
	}

	// Экспортированный хук выполняется.
	if _, err := m.RunHook(context.Background(), 1, string(CadenceEveryMinute), nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunHook_PluginFailurePropagatedUnchanged(t *testing.T) {
	hookErr := errors.New("plugin logic bug")
	factory := func(config map[string]any) (Capabilities, error) {
		return Capabilities{
			Jobs: map[string]JobHook{
				"exportBatch": func(ctx context.Context, payload map[string]any) error { return hookErr },
			},
		}, nil
	}

	store := &fakeStore{rows: []repo.PluginConfigRow{row(1, "p")}}
	m, _ := newTestManager(store, map[string]Factory{"p": factory}, 0)
	if err := m.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := m.RunHook(context.Background(), 1, "exportBatch", nil)
	if !errors.Is(err, hookErr) {
		t.Fatalf("plugin failure must propagate unchanged, got %v", err)
	}
	if retry.IsDependencyUnavailable(err) {
		t.Error("plugin logic failure must not be classified as dependency failure")
	}
}

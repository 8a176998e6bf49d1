package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/kappa90/posthog/internal/plugins"
	"github.com/kappa90/posthog/internal/repo"
	"github.com/kappa90/posthog/internal/retry"
)

// taggerFactory добавляет событию метку tag=true.
func taggerFactory(tag string) plugins.Factory {
	return func(config map[string]any) (plugins.Capabilities, error) {
		return plugins.Capabilities{
			ProcessEvent: func(ctx context.Context, event map[string]any) (map[string]any, error) {
				out := make(map[string]any, len(event)+1)
				for k, v := range event {
					out[k] = v
				}
				out[tag] = true
				return out, nil
			},
		}, nil
	}
}

func dropFactory(config map[string]any) (plugins.Capabilities, error) {
	return plugins.Capabilities{
		ProcessEvent: func(ctx context.Context, event map[string]any) (map[string]any, error) {
			return nil, nil
		},
	}, nil
}

func eventArgs(event map[string]any) map[string]any {
	return map[string]any{"event": event}
}

func TestRunEventPipeline_ChainAndPublish(t *testing.T) {
	rows := []repo.PluginConfigRow{
		{ID: 2, Plugin: "second", Order: 2},
		{ID: 1, Plugin: "first", Order: 1},
	}
	factories := map[string]plugins.Factory{
		"first":  taggerFactory("first"),
		"second": taggerFactory("second"),
	}
	e := newEnv(t, rows, factories, nil)

	result, err := e.dispatcher.Run(context.Background(), string(TaskRunEventPipeline),
		eventArgs(map[string]any{"event": "pageview", "teamId": float64(1)}))
	if err != nil {
		t.Fatal(err)
	}

	processed := result.(map[string]any)
	if processed["first"] != true || processed["second"] != true {
		t.Errorf("event did not pass through both plugins: %v", processed)
	}
	if len(e.producer.published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(e.producer.published))
	}
	if e.producer.published[0]["second"] != true {
		t.Errorf("published event missing plugin output: %v", e.producer.published[0])
	}
}

func TestRunEventPipeline_Drop(t *testing.T) {
	rows := []repo.PluginConfigRow{
		{ID: 1, Plugin: "dropper", Order: 1},
		{ID: 2, Plugin: "after", Order: 2},
	}
	factories := map[string]plugins.Factory{
		"dropper": dropFactory,
		"after":   taggerFactory("after"),
	}
	e := newEnv(t, rows, factories, nil)

	result, err := e.dispatcher.Run(context.Background(), string(TaskRunEventPipeline),
		eventArgs(map[string]any{"event": "pageview"}))
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Errorf("dropped event must yield nil result, got %v", result)
	}
	if len(e.producer.published) != 0 {
		t.Errorf("dropped event must not be published, got %v", e.producer.published)
	}
}

func TestRunEventPipeline_TeamScoping(t *testing.T) {
	rows := []repo.PluginConfigRow{
		{ID: 1, Plugin: "mine", TeamID: 1, Order: 1},
		{ID: 2, Plugin: "other", TeamID: 2, Order: 2},
	}
	factories := map[string]plugins.Factory{
		"mine":  taggerFactory("mine"),
		"other": taggerFactory("other"),
	}
	e := newEnv(t, rows, factories, nil)

	result, err := e.dispatcher.Run(context.Background(), string(TaskRunEventPipeline),
		eventArgs(map[string]any{"event": "pageview", "teamId": float64(1)}))
	if err != nil {
		t.Fatal(err)
	}

	processed := result.(map[string]any)
	if processed["mine"] != true {
		t.Error("plugin of the event's team must run")
	}
	if _, ok := processed["other"]; ok {
		t.Error("plugin of another team must be skipped")
	}
}

func TestRunEventPipeline_PluginFailure(t *testing.T) {
	hookErr := errors.New("schema mismatch")
	rows := []repo.PluginConfigRow{{ID: 1, Plugin: "broken", Order: 1}}
	factories := map[string]plugins.Factory{
		"broken": func(config map[string]any) (plugins.Capabilities, error) {
			return plugins.Capabilities{
				ProcessEvent: func(ctx context.Context, event map[string]any) (map[string]any, error) {
					return nil, hookErr
				},
			}, nil
		},
	}
	e := newEnv(t, rows, factories, nil)

	_, err := e.dispatcher.Run(context.Background(), string(TaskRunEventPipeline),
		eventArgs(map[string]any{"event": "pageview"}))
	if !errors.Is(err, hookErr) {
		t.Fatalf("expected plugin error to surface, got %v", err)
	}
	// Ошибка логики плагина постоянная: без повторов, без публикации.
	if retry.IsDependencyUnavailable(err) {
		t.Error("plugin logic error must not look like dependency unavailability")
	}
	if len(e.producer.published) != 0 {
		t.Error("failed event must not be published")
	}
}

func TestRunEventPipeline_PostgresUnavailable(t *testing.T) {
	storeErr := errors.New(`connection to server at "db" failed: server closed the connection unexpectedly`)
	rows := []repo.PluginConfigRow{{ID: 1, Plugin: "tagger", Order: 1}}
	e := newEnv(t, rows, map[string]plugins.Factory{"tagger": taggerFactory("tagged")}, nil)
	e.orgs.errs = []error{storeErr, storeErr, storeErr}

	_, err := e.dispatcher.Run(context.Background(), string(TaskRunEventPipeline),
		eventArgs(map[string]any{"event": "pageview", "organizationId": "org-1"}))

	var depErr *retry.DependencyUnavailableError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyUnavailableError, got %v", err)
	}
	if depErr.Dependency != "Postgres" {
		t.Errorf("dependency = %q, want Postgres", depErr.Dependency)
	}
	// Cause несёт исходное сообщение хранилища без обёрток.
	if depErr.Cause.Error() != storeErr.Error() {
		t.Errorf("cause message = %q, want %q", depErr.Cause.Error(), storeErr.Error())
	}
	if e.orgs.calls != 3 {
		t.Errorf("expected 3 store attempts, got %d", e.orgs.calls)
	}
	if len(e.producer.published) != 0 {
		t.Error("event must not be published when the organization check fails")
	}
}

func TestRunEventPipeline_OrganizationWithoutPlugins(t *testing.T) {
	rows := []repo.PluginConfigRow{{ID: 1, Plugin: "tagger", Order: 1}}
	e := newEnv(t, rows, map[string]plugins.Factory{"tagger": taggerFactory("tagged")}, nil)
	e.orgs.available = false

	result, err := e.dispatcher.Run(context.Background(), string(TaskRunEventPipeline),
		eventArgs(map[string]any{"event": "pageview", "organizationId": "org-1"}))
	if err != nil {
		t.Fatal(err)
	}

	// Событие публикуется как есть, хуки не вызываются.
	processed := result.(map[string]any)
	if _, ok := processed["tagged"]; ok {
		t.Error("plugins must not run for an organization without plugin access")
	}
	if len(e.producer.published) != 1 {
		t.Fatalf("expected passthrough publish, got %d", len(e.producer.published))
	}
}

func TestRunEventPipeline_CacheHitSkipsStore(t *testing.T) {
	cache := &fakeCache{values: map[string]bool{"org-1": true}}
	rows := []repo.PluginConfigRow{{ID: 1, Plugin: "tagger", Order: 1}}
	e := newEnv(t, rows, map[string]plugins.Factory{"tagger": taggerFactory("tagged")}, cache)

	if _, err := e.dispatcher.Run(context.Background(), string(TaskRunEventPipeline),
		eventArgs(map[string]any{"event": "pageview", "organizationId": "org-1"})); err != nil {
		t.Fatal(err)
	}
	if e.orgs.calls != 0 {
		t.Errorf("cache hit must skip the store, got %d calls", e.orgs.calls)
	}
}

func TestRunEventPipeline_CacheMissFillsCache(t *testing.T) {
	cache := &fakeCache{}
	e := newEnv(t, nil, nil, cache)
	e.orgs.available = true

	if _, err := e.dispatcher.Run(context.Background(), string(TaskRunEventPipeline),
		eventArgs(map[string]any{"event": "pageview", "organizationId": "org-1"})); err != nil {
		t.Fatal(err)
	}
	if e.orgs.calls != 1 {
		t.Errorf("cache miss must hit the store once, got %d calls", e.orgs.calls)
	}
	if available, ok := cache.values["org-1"]; !ok || !available {
		t.Errorf("store answer must be written back to the cache, got %v", cache.values)
	}
}

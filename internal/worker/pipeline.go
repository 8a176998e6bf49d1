package worker

import (
	"context"
	"fmt"

	"github.com/kappa90/posthog/internal/retry"
	"github.com/kappa90/posthog/internal/telemetry"
)

// runEventPipeline прогоняет событие через event-хуки плагинов в порядке
// Order и публикует результат. Весь проход работает по одному снимку
// registry: reload посреди прохода не меняет его состав.
//
// nil от хука означает "событие отброшено": проход завершается без
// публикации и без ошибки. Ошибка хука постоянная — событие уходит в DLQ
// на стороне consumer'а.
func (d *Dispatcher) runEventPipeline(ctx context.Context, args map[string]any) (any, error) {
	event, ok := args["event"].(map[string]any)
	if !ok || len(event) == 0 {
		return nil, fmt.Errorf("%w: runEventPipeline needs event object", ErrBadArgs)
	}

	if orgID, _ := event["organizationId"].(string); orgID != "" {
		available, err := d.organizationAvailable(ctx, orgID)
		if err != nil {
			telemetry.EventsTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
		// Организации без доступа к плагинам событие публикуется как есть.
		if !available {
			if err := d.publishProcessed(ctx, event); err != nil {
				telemetry.EventsTotal.WithLabelValues("failed").Inc()
				return nil, err
			}
			telemetry.EventsTotal.WithLabelValues("processed").Inc()
			return event, nil
		}
	}

	teamID, _ := argInt64(event, "teamId")

	current := event
	for _, inst := range d.manager.Registry().Ordered() {
		if !inst.ImplementsProcessEvent() {
			continue
		}
		if teamID != 0 && inst.TeamID != 0 && inst.TeamID != teamID {
			continue
		}

		next, err := inst.ProcessEvent(ctx, current)
		if err != nil {
			telemetry.EventsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("plugin config %d (%s) processEvent: %w", inst.ID, inst.Name, err)
		}
		if next == nil {
			d.logger.Debug("event dropped by plugin",
				"plugin_config_id", inst.ID,
				"plugin", inst.Name,
			)
			telemetry.EventsTotal.WithLabelValues("dropped").Inc()
			return nil, nil
		}
		current = next
	}

	if err := d.publishProcessed(ctx, current); err != nil {
		telemetry.EventsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	telemetry.EventsTotal.WithLabelValues("processed").Inc()
	return current, nil
}

// organizationAvailable отвечает через кэш, при промахе — через хранилище
// с записью ответа обратно. Ошибка записи в кэш не фатальна: источник
// истины уже ответил.
func (d *Dispatcher) organizationAvailable(ctx context.Context, orgID string) (bool, error) {
	if d.cache != nil {
		type lookup struct {
			available bool
			ok        bool
		}
		cached, err := retry.IfRetriable(ctx, "Redis", d.policy, d.clk, func(ctx context.Context) (lookup, error) {
			available, ok, getErr := d.cache.Get(ctx, orgID)
			return lookup{available: available, ok: ok}, getErr
		})
		if err != nil {
			return false, err
		}
		if cached.ok {
			return cached.available, nil
		}
	}

	available, err := retry.IfRetriable(ctx, "Postgres", d.policy, d.clk, func(ctx context.Context) (bool, error) {
		return d.orgs.OrganizationPluginsAvailable(ctx, orgID)
	})
	if err != nil {
		return false, err
	}

	if d.cache != nil {
		if setErr := d.cache.Set(ctx, orgID, available); setErr != nil {
			d.logger.Warn("organization cache set failed",
				"organization_id", orgID,
				"error", setErr,
			)
		}
	}

	return available, nil
}

func (d *Dispatcher) publishProcessed(ctx context.Context, event map[string]any) error {
	return retry.Do(ctx, "RabbitMQ", d.policy, d.clk, func(ctx context.Context) error {
		return d.producer.PublishProcessedEvent(ctx, event)
	})
}

package plugins

import (
	"context"
	"fmt"
	"log/slog"
)

// BuiltinFactories возвращает фабрики плагинов, скомпилированные в процесс.
// Деплои добавляют собственные фабрики поверх этого набора.
func BuiltinFactories() map[string]Factory {
	return map[string]Factory{
		"property-filter": propertyFilterFactory,
		"property-tagger": propertyTaggerFactory,
		"heartbeat":       heartbeatFactory,
	}
}

// propertyFilterFactory — плагин pipeline: отбрасывает события, у которых
// свойство property равно одному из values.
func propertyFilterFactory(config map[string]any) (Capabilities, error) {
	property, _ := config["property"].(string)
	if property == "" {
		return Capabilities{}, fmt.Errorf("property-filter: config key %q is required", "property")
	}

	rawValues, _ := config["values"].([]any)
	blocked := make(map[any]struct{}, len(rawValues))
	for _, v := range rawValues {
		blocked[v] = struct{}{}
	}

	return Capabilities{
		ProcessEvent: func(ctx context.Context, event map[string]any) (map[string]any, error) {
			props, _ := event["properties"].(map[string]any)
			if props == nil {
				return event, nil
			}
			if _, drop := blocked[props[property]]; drop {
				return nil, nil
			}
			return event, nil
		},
	}, nil
}

// propertyTaggerFactory — плагин pipeline: добавляет событиям статические
// свойства из config["tags"].
func propertyTaggerFactory(config map[string]any) (Capabilities, error) {
	tags, _ := config["tags"].(map[string]any)
	if len(tags) == 0 {
		return Capabilities{}, fmt.Errorf("property-tagger: config key %q is required", "tags")
	}

	return Capabilities{
		ProcessEvent: func(ctx context.Context, event map[string]any) (map[string]any, error) {
			props, _ := event["properties"].(map[string]any)
			if props == nil {
				props = make(map[string]any, len(tags))
			}
			for k, v := range tags {
				props[k] = v
			}
			event["properties"] = props
			return event, nil
		},
	}, nil
}

// heartbeatFactory — диагностический плагин: пишет лог по расписанию и
// по job "ping".
func heartbeatFactory(config map[string]any) (Capabilities, error) {
	message, _ := config["message"].(string)
	if message == "" {
		message = "heartbeat"
	}

	return Capabilities{
		RunEveryMinute: func(ctx context.Context) error {
			slog.Default().Info(message, "cadence", "minute")
			return nil
		},
		Jobs: map[string]JobHook{
			"ping": func(ctx context.Context, payload map[string]any) error {
				slog.Default().Info(message, "job", "ping", "payload_keys", len(payload))
				return nil
			},
		},
	}, nil
}

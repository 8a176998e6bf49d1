package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PluginConfigRow — включённая конфигурация плагина из конфигурационного
// хранилища. Plugin — имя зарегистрированной фабрики, Config — её
// JSON-параметры.
type PluginConfigRow struct {
	ID             int64
	Plugin         string
	TeamID         int64
	OrganizationID string
	Order          int
	Config         map[string]any
}

// PluginConfigRepo — репозиторий конфигураций плагинов.
type PluginConfigRepo struct {
	pool *pgxpool.Pool
}

// NewPluginConfigRepo создаёт новый PluginConfigRepo.
func NewPluginConfigRepo(pool *pgxpool.Pool) *PluginConfigRepo {
	return &PluginConfigRepo{pool: pool}
}

// ListEnabled возвращает все включённые конфигурации плагинов в порядке
// выполнения (order, id).
func (r *PluginConfigRepo) ListEnabled(ctx context.Context) ([]PluginConfigRow, error) {
	query := `
		SELECT pc.id, p.name, pc.team_id, t.organization_id, pc."order", pc.config
		FROM posthog_pluginconfig pc
		JOIN posthog_plugin p ON p.id = pc.plugin_id
		JOIN posthog_team t ON t.id = pc.team_id
		WHERE pc.enabled = true
		ORDER BY pc."order" ASC, pc.id ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list enabled plugin configs: %w", err)
	}
	defer rows.Close()

	var configs []PluginConfigRow
	for rows.Next() {
		var row PluginConfigRow
		if err := rows.Scan(&row.ID, &row.Plugin, &row.TeamID, &row.OrganizationID, &row.Order, &row.Config); err != nil {
			return nil, fmt.Errorf("scan plugin config: %w", err)
		}
		configs = append(configs, row)
	}
	return configs, rows.Err()
}

// OrganizationPluginsAvailable возвращает, разрешено ли организации
// выполнение плагинов. Используется event pipeline при промахе кэша.
func (r *PluginConfigRepo) OrganizationPluginsAvailable(ctx context.Context, organizationID string) (bool, error) {
	query := `
		SELECT plugins_access_level > 0
		FROM posthog_organization
		WHERE id = $1
	`
	var available bool
	err := r.pool.QueryRow(ctx, query, organizationID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%w: organization %s", ErrNotFound, organizationID)
		}
		return false, fmt.Errorf("query organization availability: %w", err)
	}
	return available, nil
}

package store

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/stefanposs/webmacs/infrastructure/database"
	"github.com/stefanposs/webmacs/infrastructure/errors"
	"github.com/stefanposs/webmacs/internal/model"
)

// CreatePluginInstance inserts a new PluginInstance.
func (s *Store) CreatePluginInstance(ctx context.Context, p model.PluginInstance) (model.PluginInstance, error) {
	p.PublicID = newPublicID()
	if p.Status == "" {
		p.Status = model.PluginStatusInactive
	}
	row := s.gw.Querier(ctx).QueryRowContext(ctx, `
		INSERT INTO plugin_instances (public_id, plugin_id, instance_name, demo_mode, enabled, status, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id
	`, p.PublicID, p.PluginID, p.InstanceName, p.DemoMode, p.Enabled, p.Status, p.Config)
	if err := row.Scan(&p.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return model.PluginInstance{}, errors.Conflict("an instance with this name already exists")
		}
		return model.PluginInstance{}, err
	}
	return p, nil
}

// GetPluginInstanceByPublicID fetches a single PluginInstance.
func (s *Store) GetPluginInstanceByPublicID(ctx context.Context, publicID string) (model.PluginInstance, error) {
	var p model.PluginInstance
	err := s.gw.Querier(ctx).GetContext(ctx, &p, `
		SELECT id, public_id, plugin_id, instance_name, demo_mode, enabled, status, config
		FROM plugin_instances WHERE public_id=$1
	`, publicID)
	if err == sql.ErrNoRows {
		return model.PluginInstance{}, errors.NotFound("plugin_instance", publicID)
	}
	return p, err
}

// SetPluginInstanceEnabled flips the enabled flag, which in turn changes
// which events that instance's channel mappings make "active" (§4.I).
func (s *Store) SetPluginInstanceEnabled(ctx context.Context, publicID string, enabled bool) error {
	result, err := s.gw.Querier(ctx).ExecContext(ctx,
		`UPDATE plugin_instances SET enabled=$2 WHERE public_id=$1`, publicID, enabled)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("plugin_instance", publicID)
	}
	return nil
}

// CreateChannelMapping links a plugin instance channel to an Event.
func (s *Store) CreateChannelMapping(ctx context.Context, m model.ChannelMapping) (model.ChannelMapping, error) {
	m.PublicID = newPublicID()
	row := s.gw.Querier(ctx).QueryRowContext(ctx, `
		INSERT INTO channel_mappings (public_id, plugin_instance_id, channel_id, channel_name, direction, unit, event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id
	`, m.PublicID, m.PluginInstanceID, m.ChannelID, m.ChannelName, m.Direction, m.Unit, m.EventID)
	if err := row.Scan(&m.ID); err != nil {
		if database.IsUniqueViolation(err) {
			return model.ChannelMapping{}, errors.Conflict("this channel is already mapped for that instance")
		}
		return model.ChannelMapping{}, err
	}
	return m, nil
}

// ActiveEventIDs implements the plugin registry gateway's single method
// (§4.I): of the argument public_ids, which are linked via a ChannelMapping
// whose plugin instance is enabled.
func (s *Store) ActiveEventIDs(ctx context.Context, eventPublicIDs []string) (map[string]bool, error) {
	if len(eventPublicIDs) == 0 {
		return map[string]bool{}, nil
	}
	var rows []string
	err := s.gw.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT DISTINCT e.public_id
		FROM events e
		JOIN channel_mappings cm ON cm.event_id = e.id
		JOIN plugin_instances pi ON pi.id = cm.plugin_instance_id
		WHERE e.public_id = ANY($1) AND pi.enabled = true
	`, pq.Array(eventPublicIDs))
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, id := range rows {
		out[id] = true
	}
	return out, nil
}

// DeletePluginInstance performs the two-phase cascade cleanup required by
// spec §3: null out ChannelMapping.event references (implicitly, by
// deleting the mappings which cascade from the instance), delete Rules
// referencing those events, bulk-delete Datapoints for those events,
// delete the Events themselves, then delete the instance.
func (s *Store) DeletePluginInstance(ctx context.Context, publicID string) error {
	return s.gw.WithTx(ctx, func(ctx context.Context) error {
		q := s.gw.Querier(ctx)

		var instanceID int64
		if err := q.QueryRowContext(ctx, `SELECT id FROM plugin_instances WHERE public_id=$1`, publicID).Scan(&instanceID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NotFound("plugin_instance", publicID)
			}
			return err
		}

		var eventIDs []int64
		if err := q.SelectContext(ctx, &eventIDs, `
			SELECT DISTINCT event_id FROM channel_mappings
			WHERE plugin_instance_id=$1 AND event_id IS NOT NULL
		`, instanceID); err != nil {
			return err
		}

		if len(eventIDs) > 0 {
			if _, err := q.ExecContext(ctx, `DELETE FROM rules WHERE event_id = ANY($1)`, pq.Array(eventIDs)); err != nil {
				return err
			}
			if _, err := q.ExecContext(ctx, `DELETE FROM datapoints WHERE event_id = ANY($1)`, pq.Array(eventIDs)); err != nil {
				return err
			}
			if _, err := q.ExecContext(ctx, `DELETE FROM events WHERE id = ANY($1)`, pq.Array(eventIDs)); err != nil {
				return err
			}
		}

		if _, err := q.ExecContext(ctx, `DELETE FROM channel_mappings WHERE plugin_instance_id=$1`, instanceID); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM plugin_instances WHERE id=$1`, instanceID); err != nil {
			return err
		}
		return nil
	})
}

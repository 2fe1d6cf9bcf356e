package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/observability"
)

var _ observability.Store = (*DB)(nil)

func (d *DB) InsertCorrelation(ctx context.Context, c *observability.Correlation) error {
	reqJSON, err := marshalAttrs(c.RequestData)
	if err != nil {
		return err
	}
	respJSON, err := marshalAttrs(c.ResponseData)
	if err != nil {
		return err
	}
	_, err = d.conn.ExecContext(ctx, `
INSERT INTO service_correlations (id, service_type, action, parent_span_id, status, error_kind, duration_ms, request_json, response_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CorrelationID, c.ServiceType, c.ActionType, c.ParentSpanID, c.Status, c.ErrorKind,
		c.DurationMS, reqJSON, respJSON, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert correlation %s: %w", c.CorrelationID, err)
	}
	return nil
}

func (d *DB) RecentCorrelations(ctx context.Context, serviceType string, n int) ([]*observability.Correlation, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, service_type, action, parent_span_id, status, error_kind, duration_ms, request_json, response_json, created_at
FROM service_correlations WHERE service_type = ? ORDER BY created_at DESC LIMIT ?`, serviceType, n)
	if err != nil {
		return nil, fmt.Errorf("recent correlations %s: %w", serviceType, err)
	}
	defer rows.Close()
	var out []*observability.Correlation
	for rows.Next() {
		var c observability.Correlation
		var reqJSON, respJSON sql.NullString
		if err := rows.Scan(&c.CorrelationID, &c.ServiceType, &c.ActionType, &c.ParentSpanID,
			&c.Status, &c.ErrorKind, &c.DurationMS, &reqJSON, &respJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan correlation: %w", err)
		}
		c.Type = observability.CorrelationRequest
		if reqJSON.Valid && reqJSON.String != "" {
			if err := json.Unmarshal([]byte(reqJSON.String), &c.RequestData); err != nil {
				return nil, fmt.Errorf("unmarshal correlation request: %w", err)
			}
		}
		if respJSON.Valid && respJSON.String != "" {
			if err := json.Unmarshal([]byte(respJSON.String), &c.ResponseData); err != nil {
				return nil, fmt.Errorf("unmarshal correlation response: %w", err)
			}
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func marshalAttrs(m map[string]graph.AttrValue) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal attrs: %w", err)
	}
	return string(b), nil
}

package gorm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tablewise/insights/internal/domain/friction"
	"github.com/tablewise/insights/internal/domain/interaction"
)

// FrictionRepository implements outbound.FrictionRepository over GORM
type FrictionRepository struct {
	db *gorm.DB
}

// NewFrictionRepository creates a friction archive repository
func NewFrictionRepository(db *gorm.DB) *FrictionRepository {
	return &FrictionRepository{db: db}
}

// SaveEvent archives a friction event
func (r *FrictionRepository) SaveEvent(ctx context.Context, event friction.Event) error {
	element, err := json.Marshal(event.Element)
	if err != nil {
		return fmt.Errorf("failed to marshal element: %w", err)
	}
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("failed to marshal detail: %w", err)
	}

	model := FrictionEventModel{
		ID:        event.ID.String(),
		TenantID:  event.TenantID,
		SessionID: event.SessionID,
		Type:      string(event.Type),
		Severity:  string(event.Severity),
		ElementID: event.Element.ID,
		Element:   string(element),
		Detail:    string(detail),
		Timestamp: event.Timestamp,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// ListEvents returns a tenant's archived events since the given time,
// newest first
func (r *FrictionRepository) ListEvents(ctx context.Context, tenantID string, since time.Time, limit int) ([]friction.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []FrictionEventModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND timestamp >= ?", tenantID, since).
		Order("timestamp DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]friction.Event, 0, len(models))
	for _, m := range models {
		event, err := toDomainEvent(m)
		if err != nil {
			// Skip rows that no longer decode rather than failing the listing
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// CountByType aggregates a tenant's events by friction type
func (r *FrictionRepository) CountByType(ctx context.Context, tenantID string, since time.Time) (map[friction.Type]int64, error) {
	type row struct {
		Type  string
		Total int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&FrictionEventModel{}).
		Select("type, count(*) as total").
		Where("tenant_id = ? AND timestamp >= ?", tenantID, since).
		Group("type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[friction.Type]int64, len(rows))
	for _, r := range rows {
		counts[friction.Type(r.Type)] = r.Total
	}
	return counts, nil
}

func toDomainEvent(m FrictionEventModel) (friction.Event, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return friction.Event{}, err
	}

	var element interaction.Element
	if m.Element != "" {
		if err := json.Unmarshal([]byte(m.Element), &element); err != nil {
			return friction.Event{}, err
		}
	}

	detail, err := decodeDetail(friction.Type(m.Type), []byte(m.Detail))
	if err != nil {
		return friction.Event{}, err
	}

	return friction.Event{
		ID:        id,
		TenantID:  m.TenantID,
		SessionID: m.SessionID,
		Type:      friction.Type(m.Type),
		Severity:  friction.Severity(m.Severity),
		Element:   element,
		Detail:    detail,
		Timestamp: m.Timestamp,
	}, nil
}

func decodeDetail(t friction.Type, raw []byte) (friction.Detail, error) {
	switch t {
	case friction.TypeFormAbandonment:
		var d friction.FormAbandonmentDetail
		return d, json.Unmarshal(raw, &d)
	case friction.TypeRageClick:
		var d friction.RageClickDetail
		return d, json.Unmarshal(raw, &d)
	case friction.TypeDeadClick:
		var d friction.DeadClickDetail
		return d, json.Unmarshal(raw, &d)
	default:
		return nil, fmt.Errorf("unknown friction type %q", t)
	}
}

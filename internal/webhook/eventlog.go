package webhook

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Delivery is one authenticated webhook call as it was received and handled.
type Delivery struct {
	EventType string
	RequestID string
	Status    string
	Outcome   Outcome
	Error     string
	Payload   []byte
}

type EventLog interface {
	Record(ctx context.Context, d Delivery) error
}

// PGEventLog appends deliveries to payment_webhook_events.
type PGEventLog struct{ DB *pgxpool.Pool }

func (l *PGEventLog) Record(ctx context.Context, d Delivery) error {
	var payload []byte
	if json.Valid(d.Payload) {
		payload = d.Payload
	}
	_, err := l.DB.Exec(ctx, `
		INSERT INTO payment_webhook_events(id, event_type, request_id, status, outcome, error, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.NewString(), d.EventType, d.RequestID, d.Status, string(d.Outcome), d.Error, payload,
	)
	if err != nil {
		return apperr.Persistence("record webhook delivery", err)
	}
	return nil
}

package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the order persistence surface the checkout and reconciliation
// paths depend on.
type Store interface {
	Create(ctx context.Context, o *Order) (string, error)
	Get(ctx context.Context, id string) (*Order, error)
	FindByCorrelationID(ctx context.Context, requestID string) (*Order, error)
	Patch(ctx context.Context, id string, p OrderPatch) error
}

// ErrDuplicateCorrelation means more than one order carries the same gateway
// request id. The unique index should make this impossible; if it happens the
// data needs a human, not a guess.
var ErrDuplicateCorrelation = apperr.E(apperr.KindConflict, "multiple orders share correlation id", nil)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const orderColumns = `id, COALESCE(request_id, ''), transaction_ref, payment_method, payment_status, status,
	amount, currency, customer, items,
	transaction_id, partner_transaction_id, payer_name, payer_account_id, payer_user_id, payer_note,
	payer_payment_method, transaction_time, merchant_account_id, merchant_fee, net_amount_received,
	receiving_entity, payment_anomaly, created_at, updated_at`

// Create writes a new order in a single statement. ID and timestamps are
// assigned here; any value already on o for them is overwritten.
func (r *Repo) Create(ctx context.Context, o *Order) (string, error) {
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return "", apperr.Persistence("encode customer", err)
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return "", apperr.Persistence("encode items", err)
	}

	o.ID = uuid.NewString()
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	_, err = r.DB.Exec(ctx, `
		INSERT INTO orders(id, transaction_ref, payment_method, payment_status, status,
		                   amount, currency, customer, items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		o.ID, o.TransactionRef, string(o.PaymentMethod), string(o.PaymentStatus), string(o.Status),
		o.Amount, o.Currency, customer, items, now,
	)
	if err != nil {
		return "", apperr.Persistence("insert order", err)
	}
	return o.ID, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("order not found")
	}
	if err != nil {
		return nil, apperr.Persistence("get order", err)
	}
	return o, nil
}

// FindByCorrelationID reads at most two rows so a duplicate is detected
// without scanning the table.
func (r *Repo) FindByCorrelationID(ctx context.Context, requestID string) (*Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE request_id=$1 LIMIT 2`, requestID)
	if err != nil {
		return nil, apperr.Persistence("query order by correlation id", err)
	}
	defer rows.Close()

	var found []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperr.Persistence("scan order", err)
		}
		found = append(found, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("query order by correlation id", err)
	}

	switch len(found) {
	case 0:
		return nil, apperr.NotFound("no order for correlation id")
	case 1:
		return found[0], nil
	default:
		return nil, ErrDuplicateCorrelation
	}
}

func (r *Repo) Patch(ctx context.Context, id string, p OrderPatch) error {
	if p.Empty() {
		return nil
	}
	query, args := buildPatch(id, p)
	ct, err := r.DB.Exec(ctx, query, args...)
	if err != nil {
		return apperr.Persistence("patch order", err)
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("order not found")
	}
	return nil
}

// buildPatch renders an UPDATE that sets only the fields present on p. Every
// assignment is an absolute value so applying the same patch twice is a no-op.
func buildPatch(id string, p OrderPatch) (string, []any) {
	var sets []string
	args := []any{id}
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}

	if p.RequestID != nil {
		set("request_id", *p.RequestID)
	}
	if p.PaymentStatus != nil {
		set("payment_status", string(*p.PaymentStatus))
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if d := p.Payment; d != nil {
		set("transaction_id", d.TransactionID)
		set("partner_transaction_id", d.PartnerTransactionID)
		set("payer_name", d.PayerName)
		set("payer_account_id", d.PayerAccountID)
		set("payer_user_id", d.PayerUserID)
		set("payer_note", d.PayerNote)
		set("payer_payment_method", d.PayerPaymentMethod)
		set("transaction_time", d.TransactionTime)
		set("merchant_account_id", d.MerchantAccountID)
		set("merchant_fee", d.MerchantFee)
		set("net_amount_received", d.NetAmountReceived)
		set("receiving_entity", d.ReceivingEntityName)
	}
	if p.Anomaly != nil {
		set("payment_anomaly", *p.Anomaly)
	}
	sets = append(sets, "updated_at=now()")

	return `UPDATE orders SET ` + strings.Join(sets, ", ") + ` WHERE id=$1`, args
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o                       Order
		method, payStat, status string
		customer, items         []byte
	)
	err := row.Scan(
		&o.ID, &o.RequestID, &o.TransactionRef, &method, &payStat, &status,
		&o.Amount, &o.Currency, &customer, &items,
		&o.Payment.TransactionID, &o.Payment.PartnerTransactionID, &o.Payment.PayerName,
		&o.Payment.PayerAccountID, &o.Payment.PayerUserID, &o.Payment.PayerNote,
		&o.Payment.PayerPaymentMethod, &o.Payment.TransactionTime, &o.Payment.MerchantAccountID,
		&o.Payment.MerchantFee, &o.Payment.NetAmountReceived, &o.Payment.ReceivingEntityName,
		&o.Anomaly, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.PaymentMethod = Channel(method)
	o.PaymentStatus = PaymentStatus(payStat)
	o.Status = Status(status)
	if err := json.Unmarshal(customer, &o.Customer); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return &o, nil
}

// Package stock applies paid orders to variant stock levels.
package stock

import (
	"context"
	"errors"
	"sort"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Line is the quantity of one product variant, identified by size and
// colour, that an order consumed.
type Line struct {
	ProductID string
	Size      string
	Color     string
	Qty       int
}

// Shortfall is a line that could not be taken from stock in full.
type Shortfall struct {
	ProductID string `json:"productId"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

type Result struct {
	Applied    int
	Duplicates int
	Shortfalls []Shortfall
	Products   []string // products whose stock changed
}

// Ledger decrements stock once per order and variant.
type Ledger interface {
	Apply(ctx context.Context, orderID string, lines []Line) (Result, error)
}

// LinesFromItems merges line items that point at the same variant.
func LinesFromItems(items []orders.LineItem) []Line {
	type key struct{ pid, size, color string }
	var (
		order []key
		qty   = map[key]int{}
	)
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 {
			continue
		}
		k := key{it.ProductID, it.Size, it.Color.Name}
		if _, ok := qty[k]; !ok {
			order = append(order, k)
		}
		qty[k] += it.Quantity
	}
	out := make([]Line, 0, len(order))
	for _, k := range order {
		out = append(out, Line{ProductID: k.pid, Size: k.size, Color: k.color, Qty: qty[k]})
	}
	return out
}

type PGLedger struct{ DB *pgxpool.Pool }

var _ Ledger = (*PGLedger)(nil)

// Apply locks each matching variant row, records the movement, and only
// then decrements. A movement already in the ledger is skipped, so
// redelivered events are harmless. Stock never goes below zero; a paid
// order that exceeds what is left is reported as a shortfall.
func (l *PGLedger) Apply(ctx context.Context, orderID string, lines []Line) (Result, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Result{}, apperr.Persistence("begin stock tx", err)
	}
	defer tx.Rollback(ctx)

	var res Result
	touched := map[string]bool{}
	for _, ln := range lines {
		var (
			variantID string
			stock     int
		)
		err := tx.QueryRow(ctx, `
			SELECT variant_id, stock FROM product_variants
			WHERE product_id=$1 AND ($2 = '' OR size=$2) AND ($3 = '' OR color_name=$3)
			ORDER BY variant_id LIMIT 1
			FOR UPDATE`, ln.ProductID, ln.Size, ln.Color).Scan(&variantID, &stock)
		if errors.Is(err, pgx.ErrNoRows) {
			res.Shortfalls = append(res.Shortfalls, Shortfall{
				ProductID: ln.ProductID, Size: ln.Size, Color: ln.Color, Required: ln.Qty,
			})
			continue
		}
		if err != nil {
			return Result{}, apperr.Persistence("lock variant", err)
		}

		ct, err := tx.Exec(ctx, `
			INSERT INTO stock_movements(order_id, product_id, variant_id, qty)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (order_id, product_id, variant_id) DO NOTHING`,
			orderID, ln.ProductID, variantID, ln.Qty)
		if err != nil {
			return Result{}, apperr.Persistence("record stock movement", err)
		}
		if ct.RowsAffected() == 0 {
			res.Duplicates++
			continue
		}

		if stock < ln.Qty {
			res.Shortfalls = append(res.Shortfalls, Shortfall{
				ProductID: ln.ProductID, Size: ln.Size, Color: ln.Color, Required: ln.Qty, Available: stock,
			})
		}
		if _, err := tx.Exec(ctx, `
			UPDATE product_variants SET stock = GREATEST(stock - $3, 0)
			WHERE product_id=$1 AND variant_id=$2`, ln.ProductID, variantID, ln.Qty); err != nil {
			return Result{}, apperr.Persistence("decrement stock", err)
		}
		res.Applied++
		touched[ln.ProductID] = true
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, apperr.Persistence("commit stock tx", err)
	}
	for pid := range touched {
		res.Products = append(res.Products, pid)
	}
	sort.Strings(res.Products)
	return res, nil
}

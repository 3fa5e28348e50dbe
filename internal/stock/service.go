package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/logx"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

const dedupScope = "stock"

type Reindexer interface {
	IndexProducts(ctx context.Context, ids []string) (catalog.BulkResult, error)
}

type Service struct {
	Ledger Ledger
	Redis  redis.Cmdable // optional fast-path dedup; the ledger is the source of truth
	Index  Reindexer     // optional
	Log    *slog.Logger
}

// HandlePaymentCompleted is installed as the consumer handler for
// order.payment.completed. Returning an error leaves the offset uncommitted.
func (s *Service) HandlePaymentCompleted(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.log().Error("undecodable event dropped", "err", err, "offset", m.Offset)
		return nil
	}
	if env.EventType != orders.EventPaymentCompleted {
		return nil
	}
	p, err := kafkax.UnwrapPayload[orders.PaymentCompletedPayload](env.Payload)
	if err != nil {
		s.log().Error("undecodable payload dropped", "err", err, "event_id", env.EventID)
		return nil
	}
	log := s.log().With("order_id", p.OrderID, "event_id", env.EventID)

	dkey := fmt.Sprintf(redisx.KeyDedup, dedupScope, p.OrderID)
	if s.Redis != nil {
		if seen, err := redisx.Exists(ctx, s.Redis, dkey); err == nil && seen {
			metrics.StockMovementsTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	res, err := s.Ledger.Apply(ctx, p.OrderID, LinesFromItems(p.Items))
	if err != nil {
		metrics.StockMovementsTotal.WithLabelValues("error").Inc()
		log.Error("stock movement failed", "err", err)
		return err
	}
	metrics.StockMovementsTotal.WithLabelValues("applied").Add(float64(res.Applied))
	metrics.StockMovementsTotal.WithLabelValues("duplicate").Add(float64(res.Duplicates))
	metrics.StockMovementsTotal.WithLabelValues("shortfall").Add(float64(len(res.Shortfalls)))
	if len(res.Shortfalls) > 0 {
		log.Warn("paid order exceeds available stock", "shortfalls", res.Shortfalls)
	}
	log.Info("stock movements applied", "applied", res.Applied, "duplicates", res.Duplicates)

	if s.Redis != nil {
		if err := s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err(); err != nil {
			log.Warn("dedup marker write failed", "err", err)
		}
	}

	if s.Index != nil && len(res.Products) > 0 {
		// The index catches up on the next change or bulk run if this fails.
		if _, err := s.Index.IndexProducts(ctx, res.Products); err != nil {
			log.Warn("reindex after stock change failed", "err", err, "products", res.Products)
		}
	}
	return nil
}

func (s *Service) log() *slog.Logger {
	if s.Log == nil {
		return logx.Discard()
	}
	return s.Log
}

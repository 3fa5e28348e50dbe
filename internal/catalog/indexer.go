package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ariefcatur/go-storefront-checkout/internal/logx"
	"github.com/ariefcatur/go-storefront-checkout/internal/metrics"
	"github.com/ariefcatur/go-storefront-checkout/internal/search"
	"golang.org/x/sync/errgroup"
)

const (
	defaultChunkSize   = 500
	defaultConcurrency = 4
)

type BulkResult struct {
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`
}

type Indexer struct {
	Catalog     Catalog
	Sink        search.Sink
	ChunkSize   int
	Concurrency int
	Log         *slog.Logger
}

// Apply writes one change notification to the catalog and then mirrors it
// into the index, returning a short human-readable confirmation. The catalog
// write comes first so bulk reindex and stock see the same products.
func (ix *Indexer) Apply(ctx context.Context, ev Event) (string, error) {
	log := ix.log().With("document_id", ev.ID, "operation", ev.Operation)

	if ev.Operation == OpDelete {
		if err := ix.Catalog.DeleteProduct(ctx, ev.ID); err != nil {
			metrics.IndexOperationsTotal.WithLabelValues("delete", "error").Inc()
			log.Error("catalog delete failed", "err", err)
			return "", err
		}
		if err := ix.Sink.Delete(ctx, ev.ID); err != nil {
			metrics.IndexOperationsTotal.WithLabelValues("delete", "error").Inc()
			log.Error("index delete failed", "err", err)
			return "", err
		}
		metrics.IndexOperationsTotal.WithLabelValues("delete", "ok").Inc()
		log.Info("product deleted")
		return fmt.Sprintf("Successfully deleted object with ID: %s", ev.ID), nil
	}

	doc := *ev.Value
	if doc.ID == "" {
		doc.ID = ev.ID
	}
	p, err := ProductFromDocument(ctx, doc, ix.Catalog.CategoryByID)
	if err != nil {
		metrics.IndexOperationsTotal.WithLabelValues("save", "error").Inc()
		log.Error("category lookup failed", "err", err)
		return "", err
	}
	if err := ix.Catalog.UpsertProduct(ctx, p); err != nil {
		metrics.IndexOperationsTotal.WithLabelValues("save", "error").Inc()
		log.Error("catalog upsert failed", "err", err)
		return "", err
	}
	if err := ix.Sink.Save(ctx, p.Record()); err != nil {
		metrics.IndexOperationsTotal.WithLabelValues("save", "error").Inc()
		log.Error("index save failed", "err", err)
		return "", err
	}
	metrics.IndexOperationsTotal.WithLabelValues("save", "ok").Inc()
	log.Info("product saved", "variants", len(p.Variants))
	return fmt.Sprintf("Successfully processed document with ID: %s", ev.ID), nil
}

// ReindexAll rebuilds the index from the catalog. Chunks that fail are
// counted in Failed; the error return is reserved for not being able to read
// the catalog at all.
func (ix *Indexer) ReindexAll(ctx context.Context) (BulkResult, error) {
	products, err := ix.Catalog.ListProducts(ctx)
	if err != nil {
		return BulkResult{}, err
	}
	res := ix.saveAll(ctx, products)
	ix.log().Info("bulk reindex finished", "indexed", res.Indexed, "failed", res.Failed)
	return res, nil
}

// IndexProducts refreshes the given products, e.g. after a stock change.
func (ix *Indexer) IndexProducts(ctx context.Context, ids []string) (BulkResult, error) {
	products, err := ix.Catalog.ProductsByID(ctx, ids)
	if err != nil {
		return BulkResult{}, err
	}
	return ix.saveAll(ctx, products), nil
}

func (ix *Indexer) saveAll(ctx context.Context, products []Product) BulkResult {
	records := make([]search.Record, 0, len(products))
	for _, p := range products {
		records = append(records, p.Record())
	}

	size := ix.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	limit := ix.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	var indexed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(limit)
	for start := 0; start < len(records); start += size {
		chunk := records[start:min(start+size, len(records))]
		g.Go(func() error {
			if err := ix.Sink.SaveBatch(ctx, chunk); err != nil {
				failed.Add(int64(len(chunk)))
				metrics.IndexOperationsTotal.WithLabelValues("save_batch", "error").Inc()
				ix.log().Error("index chunk failed", "size", len(chunk), "err", err)
				return nil
			}
			indexed.Add(int64(len(chunk)))
			metrics.IndexOperationsTotal.WithLabelValues("save_batch", "ok").Inc()
			return nil
		})
	}
	_ = g.Wait()
	return BulkResult{Indexed: int(indexed.Load()), Failed: int(failed.Load())}
}

func (ix *Indexer) log() *slog.Logger {
	if ix.Log == nil {
		return logx.Discard()
	}
	return ix.Log
}

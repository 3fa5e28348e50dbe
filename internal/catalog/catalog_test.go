package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/ariefcatur/go-storefront-checkout/internal/search"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu        sync.Mutex
	saved     map[string]search.Record
	deleted   []string
	batches   int
	BatchFunc func(rs []search.Record) error
}

func newSink() *fakeSink { return &fakeSink{saved: map[string]search.Record{}} }

func (s *fakeSink) Save(ctx context.Context, r search.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[r.ObjectID] = r
	return nil
}

func (s *fakeSink) SaveBatch(ctx context.Context, rs []search.Record) error {
	if s.BatchFunc != nil {
		if err := s.BatchFunc(rs); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	for _, r := range rs {
		s.saved[r.ObjectID] = r
	}
	return nil
}

func (s *fakeSink) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeCatalog struct {
	products   []Product
	categories map[string]Category
	ListErr    error
	UpsertFunc func(p Product) error
}

func (c *fakeCatalog) UpsertProduct(ctx context.Context, p Product) error {
	if c.UpsertFunc != nil {
		if err := c.UpsertFunc(p); err != nil {
			return err
		}
	}
	if p.Category != nil {
		if c.categories == nil {
			c.categories = map[string]Category{}
		}
		c.categories[p.Category.ID] = *p.Category
	}
	for i := range c.products {
		if c.products[i].ID == p.ID {
			c.products[i] = p
			return nil
		}
	}
	c.products = append(c.products, p)
	return nil
}

func (c *fakeCatalog) DeleteProduct(ctx context.Context, id string) error {
	out := c.products[:0]
	for _, p := range c.products {
		if p.ID != id {
			out = append(out, p)
		}
	}
	c.products = out
	return nil
}

func (c *fakeCatalog) ListProducts(ctx context.Context) ([]Product, error) {
	return c.products, c.ListErr
}

func (c *fakeCatalog) ProductsByID(ctx context.Context, ids []string) ([]Product, error) {
	var out []Product
	for _, p := range c.products {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (c *fakeCatalog) CategoryByID(ctx context.Context, id string) (Category, error) {
	cat, ok := c.categories[id]
	if !ok {
		return Category{}, apperr.NotFound("category not found")
	}
	return cat, nil
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"create", `{"_id":"p1","operation":"create","value":{"_id":"p1","name":"Shirt"}}`, true},
		{"delete without value", `{"_id":"p1","operation":"delete"}`, true},
		{"update without value", `{"_id":"p1","operation":"update"}`, false},
		{"missing id", `{"operation":"create","value":{}}`, false},
		{"missing operation", `{"_id":"p1","value":{}}`, false},
		{"unknown operation", `{"_id":"p1","operation":"publish","value":{}}`, false},
		{"not json", `nope`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.body))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}

func TestProductFromDocumentInlineCategory(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"_id":"p1","operation":"update","value":{
		"_id":"p1","name":"Linen Shirt","slug":{"current":"linen-shirt"},"price":29.99,
		"category":{"_ref":"c9","name":"Shirts","slug":{"current":"shirts"}},
		"images":[{"asset":{"url":"https://cdn/1.jpg"}},{"asset":{}}],
		"variants":[{"variantId":"v1","size":"M","color":{"name":"Black","value":"#000"},"stock":3,"price":29.99},{"size":"L"}],
		"featured":true,"rating":4.5,"_createdAt":"2026-01-01T10:00:00Z"
	}}`))
	require.NoError(t, err)

	p, err := ProductFromDocument(context.Background(), *ev.Value, nil)
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.True(t, decimal.RequireFromString("29.99").Equal(p.Price))
	assert.Equal(t, &Category{ID: "c9", Name: "Shirts", Slug: "shirts"}, p.Category)
	assert.Equal(t, []string{"https://cdn/1.jpg"}, p.ImageURLs)
	require.Len(t, p.Variants, 2)
	v := p.Variants[0]
	assert.Equal(t, "v1", v.VariantID)
	assert.Equal(t, "M", v.Size)
	assert.Equal(t, "Black", v.ColorName)
	assert.Equal(t, "#000", v.ColorValue)
	assert.Equal(t, 3, v.Stock)
	assert.True(t, decimal.RequireFromString("29.99").Equal(v.Price))
	assert.Equal(t, "p1-1", p.Variants[1].VariantID)
	assert.True(t, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC).Equal(p.CreatedAt))
	assert.True(t, p.UpdatedAt.IsZero())

	r := p.Record()
	assert.Equal(t, "linen-shirt", r.Slug)
	assert.Equal(t, 29.99, r.Price)
	require.NotNil(t, r.Category)
	assert.Equal(t, "Shirts", *r.Category)
	assert.Equal(t, "shirts", *r.CategorySlug)
	assert.Equal(t, 3, r.Variants[0].Stock)
	assert.NotNil(t, r.Reviews)
	assert.True(t, r.Featured)
}

func TestProductFromDocumentResolvesReference(t *testing.T) {
	cat := &fakeCatalog{categories: map[string]Category{"c1": {ID: "c1", Name: "Shoes", Slug: "shoes"}}}
	doc := Document{ID: "p1", Category: &docCategory{Ref: "c1"}}

	p, err := ProductFromDocument(context.Background(), doc, cat.CategoryByID)
	require.NoError(t, err)
	assert.Equal(t, &Category{ID: "c1", Name: "Shoes", Slug: "shoes"}, p.Category)

	doc.Category.Ref = "gone"
	p, err = ProductFromDocument(context.Background(), doc, cat.CategoryByID)
	require.NoError(t, err)
	assert.Nil(t, p.Category)
	assert.Nil(t, p.Record().Category)

	failing := func(context.Context, string) (Category, error) {
		return Category{}, apperr.Persistence("get category", errors.New("down"))
	}
	_, err = ProductFromDocument(context.Background(), Document{ID: "p1", Category: &docCategory{Ref: "c1"}}, failing)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
}

func TestIndexerApply(t *testing.T) {
	sink := newSink()
	cat := &fakeCatalog{}
	ix := &Indexer{Catalog: cat, Sink: sink}
	ctx := context.Background()

	msg, err := ix.Apply(ctx, Event{ID: "p1", Operation: OpCreate, Value: &Document{Name: "Shirt"}})
	require.NoError(t, err)
	assert.Equal(t, "Successfully processed document with ID: p1", msg)
	assert.Equal(t, "Shirt", sink.saved["p1"].Name)
	require.Len(t, cat.products, 1)
	assert.Equal(t, "p1", cat.products[0].ID)

	msg, err = ix.Apply(ctx, Event{ID: "p1", Operation: OpDelete})
	require.NoError(t, err)
	assert.Equal(t, "Successfully deleted object with ID: p1", msg)
	assert.Empty(t, sink.saved)
	assert.Empty(t, cat.products)

	// deleting something never indexed is fine
	_, err = ix.Apply(ctx, Event{ID: "ghost", Operation: OpDelete})
	assert.NoError(t, err)
}

func TestIndexerApplyStopsWhenCatalogWriteFails(t *testing.T) {
	sink := newSink()
	cat := &fakeCatalog{UpsertFunc: func(Product) error {
		return apperr.Persistence("upsert product", errors.New("down"))
	}}
	ix := &Indexer{Catalog: cat, Sink: sink}

	_, err := ix.Apply(context.Background(), Event{ID: "p1", Operation: OpUpdate, Value: &Document{Name: "Shirt"}})
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	assert.Empty(t, sink.saved)
}

func TestReindexAllSeesAppliedEvents(t *testing.T) {
	cat := &fakeCatalog{}
	ix := &Indexer{Catalog: cat, Sink: newSink()}
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		_, err := ix.Apply(ctx, Event{ID: id, Operation: OpCreate, Value: &Document{
			Name:     "Shirt " + id,
			Category: &docCategory{Ref: "c1", Name: "Shirts", Slug: slug{Current: "shirts"}},
			Variants: []search.Variant{{VariantID: "v1", Size: "M", Stock: 4, Price: 12}},
		}})
		require.NoError(t, err)
	}
	_, err := ix.Apply(ctx, Event{ID: "p2", Operation: OpDelete})
	require.NoError(t, err)

	// a fresh index rebuilt from the catalog holds what the events left
	rebuilt := newSink()
	ix.Sink = rebuilt
	res, err := ix.ReindexAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, BulkResult{Indexed: 1}, res)
	require.Contains(t, rebuilt.saved, "p1")
	r := rebuilt.saved["p1"]
	assert.Equal(t, "Shirt p1", r.Name)
	assert.Equal(t, "Shirts", *r.Category)
	require.Len(t, r.Variants, 1)
	assert.Equal(t, 4, r.Variants[0].Stock)

	// and category references now resolve from the stored row
	_, err = ix.Apply(ctx, Event{ID: "p3", Operation: OpCreate, Value: &Document{Category: &docCategory{Ref: "c1"}}})
	require.NoError(t, err)
	assert.Equal(t, "Shirts", *rebuilt.saved["p3"].Category)
}

func TestVariantIDs(t *testing.T) {
	assert.Equal(t, []string{}, variantIDs(nil))
	assert.Equal(t, []string{"a", "b"}, variantIDs([]Variant{{VariantID: "a"}, {VariantID: "b"}}))
	assert.Nil(t, nullTime(time.Time{}))
	assert.NotNil(t, nullTime(time.Now()))
}

func products(n int) []Product {
	out := make([]Product, n)
	for i := range out {
		out[i] = Product{
			ID:        fmt.Sprintf("p%04d", i),
			Name:      "Product",
			Price:     decimal.RequireFromString("10.50"),
			Rating:    decimal.RequireFromString("4.2"),
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	return out
}

func TestReindexAllChunks(t *testing.T) {
	sink := newSink()
	ix := &Indexer{Catalog: &fakeCatalog{products: products(1203)}, Sink: sink}

	res, err := ix.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BulkResult{Indexed: 1203, Failed: 0}, res)
	assert.Equal(t, 3, sink.batches)
	assert.Len(t, sink.saved, 1203)
	assert.Equal(t, 10.5, sink.saved["p0000"].Price)
	assert.Equal(t, "2026-01-01T00:00:00Z", sink.saved["p0000"].CreatedAt)
}

func TestReindexAllReportsFailedChunks(t *testing.T) {
	sink := newSink()
	sink.BatchFunc = func(rs []search.Record) error {
		if rs[0].ObjectID == "p0500" {
			return errors.New("rate limited")
		}
		return nil
	}
	ix := &Indexer{Catalog: &fakeCatalog{products: products(1100)}, Sink: sink}

	res, err := ix.ReindexAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, BulkResult{Indexed: 600, Failed: 500}, res)
}

func TestReindexAllCatalogError(t *testing.T) {
	ix := &Indexer{Catalog: &fakeCatalog{ListErr: apperr.Persistence("query products", errors.New("down"))}, Sink: newSink()}
	_, err := ix.ReindexAll(context.Background())
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
}

func TestIndexProducts(t *testing.T) {
	sink := newSink()
	ix := &Indexer{Catalog: &fakeCatalog{products: products(3)}, Sink: sink}

	res, err := ix.IndexProducts(context.Background(), []string{"p0001"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Contains(t, sink.saved, "p0001")
}

func TestProductRecordCategory(t *testing.T) {
	p := Product{ID: "p1", Category: &Category{ID: "c1", Name: "Shirts", Slug: "shirts"},
		Variants: []Variant{{VariantID: "v1", Size: "M", ColorName: "Red", Stock: 2, Price: decimal.NewFromInt(5)}}}
	r := p.Record()
	assert.Equal(t, "Shirts", *r.Category)
	assert.Equal(t, search.Color{Name: "Red"}, r.Variants[0].Color)
	assert.Equal(t, []string{}, r.Images)
	assert.Empty(t, r.CreatedAt)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"_id":"p1","operation":"delete"}`)
	hdr := Sign("sec", 1700000000000, body)

	assert.NoError(t, VerifySignature(hdr, body, "sec"))
	assert.NoError(t, VerifySignature(" v1="+hdr[len("t=1700000000000,v1="):]+", t=1700000000000", body, "sec"))

	for name, tc := range map[string]struct {
		hdr, secret string
		body        []byte
	}{
		"missing header": {"", "sec", body},
		"wrong secret":   {hdr, "other", body},
		"tampered body":  {hdr, "sec", []byte(`{"_id":"p2","operation":"delete"}`)},
		"no timestamp":   {"v1=abc", "sec", body},
		"no secret":      {hdr, "", body},
		"garbage":        {"nonsense", "sec", body},
	} {
		t.Run(name, func(t *testing.T) {
			err := VerifySignature(tc.hdr, tc.body, tc.secret)
			assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
		})
	}
}

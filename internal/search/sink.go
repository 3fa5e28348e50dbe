// Package search mirrors catalog products into the hosted search index.
package search

import (
	"context"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/search"
	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
)

type Color struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Variant struct {
	VariantID string  `json:"variantId"`
	Size      string  `json:"size"`
	Color     Color   `json:"color"`
	Stock     int     `json:"stock"`
	Price     float64 `json:"price"`
}

type ReviewUser struct {
	Name string `json:"name"`
}

type Review struct {
	User    ReviewUser `json:"user"`
	Rating  float64    `json:"rating"`
	Comment string     `json:"comment"`
	Date    string     `json:"date"`
}

// Record is one product as stored in the index. ObjectID is the catalog id,
// so saving the same product twice overwrites rather than duplicates.
type Record struct {
	ObjectID     string    `json:"objectID"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Description  string    `json:"description"`
	Price        float64   `json:"price"`
	Category     *string   `json:"category"`
	CategorySlug *string   `json:"categorySlug"`
	Images       []string  `json:"images"`
	Variants     []Variant `json:"variants"`
	Featured     bool      `json:"featured"`
	BestSeller   bool      `json:"bestSeller"`
	NewArrival   bool      `json:"newArrival"`
	Rating       float64   `json:"rating"`
	Reviews      []Review  `json:"reviews"`
	CreatedAt    string    `json:"_createdAt,omitempty"`
	UpdatedAt    string    `json:"_updatedAt,omitempty"`
}

type Sink interface {
	Save(ctx context.Context, r Record) error
	SaveBatch(ctx context.Context, rs []Record) error
	// Delete succeeds when the object is already absent.
	Delete(ctx context.Context, objectID string) error
}

type AlgoliaSink struct {
	Index *search.Index
}

var _ Sink = (*AlgoliaSink)(nil)

func NewAlgoliaSink(appID, apiKey, indexName string) (*AlgoliaSink, error) {
	if appID == "" || apiKey == "" || indexName == "" {
		return nil, apperr.Configuration("missing search index credentials")
	}
	return &AlgoliaSink{Index: search.NewClient(appID, apiKey).InitIndex(indexName)}, nil
}

func (s *AlgoliaSink) Save(ctx context.Context, r Record) error {
	if _, err := s.Index.SaveObject(r, ctx); err != nil {
		return apperr.E(apperr.KindInternal, "save search record", err)
	}
	return nil
}

func (s *AlgoliaSink) SaveBatch(ctx context.Context, rs []Record) error {
	if len(rs) == 0 {
		return nil
	}
	if _, err := s.Index.SaveObjects(rs, ctx); err != nil {
		return apperr.E(apperr.KindInternal, "save search records", err)
	}
	return nil
}

func (s *AlgoliaSink) Delete(ctx context.Context, objectID string) error {
	if _, err := s.Index.DeleteObject(objectID, ctx); err != nil {
		return apperr.E(apperr.KindInternal, "delete search record", err)
	}
	return nil
}

// Package catalog keeps the search index in step with the product catalog.
package catalog

import (
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/search"
	"github.com/shopspring/decimal"
)

type Category struct {
	ID   string
	Name string
	Slug string
}

type Variant struct {
	VariantID  string
	Size       string
	ColorName  string
	ColorValue string
	Stock      int
	Price      decimal.Decimal
}

type Product struct {
	ID          string
	Name        string
	Slug        string
	Description string
	Price       decimal.Decimal
	Category    *Category
	ImageURLs   []string
	Variants    []Variant
	Featured    bool
	BestSeller  bool
	NewArrival  bool
	Rating      decimal.Decimal
	Reviews     []search.Review
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Record flattens a stored product into its index form.
func (p Product) Record() search.Record {
	r := search.Record{
		ObjectID:    p.ID,
		Name:        p.Name,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       p.Price.InexactFloat64(),
		Images:      nonNil(p.ImageURLs),
		Variants:    make([]search.Variant, 0, len(p.Variants)),
		Featured:    p.Featured,
		BestSeller:  p.BestSeller,
		NewArrival:  p.NewArrival,
		Rating:      p.Rating.InexactFloat64(),
		Reviews:     nonNil(p.Reviews),
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
	if c := p.Category; c != nil {
		if c.Name != "" {
			r.Category = &c.Name
		}
		if c.Slug != "" {
			r.CategorySlug = &c.Slug
		}
	}
	for _, v := range p.Variants {
		r.Variants = append(r.Variants, search.Variant{
			VariantID: v.VariantID,
			Size:      v.Size,
			Color:     search.Color{Name: v.ColorName, Value: v.ColorValue},
			Stock:     v.Stock,
			Price:     v.Price.InexactFloat64(),
		})
	}
	return r
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

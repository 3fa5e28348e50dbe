package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/ariefcatur/go-storefront-checkout/internal/search"
	"github.com/shopspring/decimal"
)

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

type slug struct {
	Current string `json:"current"`
}

type docCategory struct {
	Ref  string `json:"_ref"`
	Name string `json:"name"`
	Slug slug   `json:"slug"`
}

type docImage struct {
	Asset struct {
		URL string `json:"url"`
	} `json:"asset"`
}

// Document is a product as the content store sends it in change
// notifications.
type Document struct {
	ID          string           `json:"_id"`
	Name        string           `json:"name"`
	Slug        slug             `json:"slug"`
	Description string           `json:"description"`
	Price       float64          `json:"price"`
	Category    *docCategory     `json:"category"`
	Images      []docImage       `json:"images"`
	Variants    []search.Variant `json:"variants"`
	Featured    bool             `json:"featured"`
	BestSeller  bool             `json:"bestSeller"`
	NewArrival  bool             `json:"newArrival"`
	Rating      float64          `json:"rating"`
	Reviews     []search.Review  `json:"reviews"`
	CreatedAt   string           `json:"_createdAt"`
	UpdatedAt   string           `json:"_updatedAt"`
}

type Event struct {
	ID        string    `json:"_id"`
	Operation string    `json:"operation"`
	Value     *Document `json:"value"`
}

// ParseEvent decodes and checks a change notification.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, apperr.E(apperr.KindValidation, "no payload provided", err)
	}
	if ev.ID == "" || ev.Operation == "" {
		return Event{}, apperr.Validation("invalid payload, missing required fields")
	}
	switch ev.Operation {
	case OpDelete:
	case OpCreate, OpUpdate:
		if ev.Value == nil {
			return Event{}, apperr.Validation("invalid payload, missing required fields")
		}
	default:
		return Event{}, apperr.Validation("unsupported operation " + ev.Operation)
	}
	return ev, nil
}

// CategoryLookup resolves a category reference.
type CategoryLookup func(ctx context.Context, id string) (Category, error)

// ProductFromDocument converts a document into a catalog product. A
// category sent as a bare reference is resolved through lookup; a dangling
// reference leaves the product uncategorized.
func ProductFromDocument(ctx context.Context, doc Document, lookup CategoryLookup) (Product, error) {
	p := Product{
		ID:          doc.ID,
		Name:        doc.Name,
		Slug:        doc.Slug.Current,
		Description: doc.Description,
		Price:       decimal.NewFromFloat(doc.Price),
		ImageURLs:   make([]string, 0, len(doc.Images)),
		Variants:    make([]Variant, 0, len(doc.Variants)),
		Featured:    doc.Featured,
		BestSeller:  doc.BestSeller,
		NewArrival:  doc.NewArrival,
		Rating:      decimal.NewFromFloat(doc.Rating),
		Reviews:     nonNil(doc.Reviews),
		CreatedAt:   parseTime(doc.CreatedAt),
		UpdatedAt:   parseTime(doc.UpdatedAt),
	}
	for _, img := range doc.Images {
		if img.Asset.URL != "" {
			p.ImageURLs = append(p.ImageURLs, img.Asset.URL)
		}
	}
	for i, v := range doc.Variants {
		id := v.VariantID
		if id == "" {
			id = fmt.Sprintf("%s-%d", doc.ID, i)
		}
		p.Variants = append(p.Variants, Variant{
			VariantID:  id,
			Size:       v.Size,
			ColorName:  v.Color.Name,
			ColorValue: v.Color.Value,
			Stock:      v.Stock,
			Price:      decimal.NewFromFloat(v.Price),
		})
	}

	if c := doc.Category; c != nil {
		cat := Category{ID: c.Ref, Name: c.Name, Slug: c.Slug.Current}
		if cat.Name == "" && c.Ref != "" && lookup != nil {
			found, err := lookup(ctx, c.Ref)
			switch {
			case err == nil:
				cat = found
			case apperr.KindOf(err) != apperr.KindNotFound:
				return Product{}, err
			}
		}
		if cat.ID == "" {
			cat.ID = cat.Slug
		}
		if cat.Name != "" && cat.ID != "" {
			p.Category = &cat
		}
	}
	return p, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

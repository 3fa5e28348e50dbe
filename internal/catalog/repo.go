package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Catalog is the product store the index is rebuilt from. Content-store
// changes are written here before they reach the index.
type Catalog interface {
	ListProducts(ctx context.Context) ([]Product, error)
	ProductsByID(ctx context.Context, ids []string) ([]Product, error)
	CategoryByID(ctx context.Context, id string) (Category, error)
	UpsertProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id string) error
}

type Repo struct{ DB *pgxpool.Pool }

var _ Catalog = (*Repo)(nil)

const productQuery = `
	SELECT p.id, p.name, p.slug, p.description, p.price, p.image_urls, p.reviews,
	       p.featured, p.best_seller, p.new_arrival, p.rating, p.created_at, p.updated_at,
	       c.id, c.name, c.slug
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id`

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	return r.load(ctx, productQuery+` ORDER BY p.id`, nil)
}

func (r *Repo) ProductsByID(ctx context.Context, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.load(ctx, productQuery+` WHERE p.id = ANY($1) ORDER BY p.id`, ids)
}

func (r *Repo) CategoryByID(ctx context.Context, id string) (Category, error) {
	var c Category
	err := r.DB.QueryRow(ctx, `SELECT id, name, slug FROM categories WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Slug)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, apperr.NotFound("category not found")
	}
	if err != nil {
		return Category{}, apperr.Persistence("get category", err)
	}
	return c, nil
}

// UpsertProduct replaces the product, its category row and its variant set.
// Variant stock takes the document's value, so restocks made in the content
// store land here.
func (r *Repo) UpsertProduct(ctx context.Context, p Product) error {
	images, err := json.Marshal(nonNil(p.ImageURLs))
	if err != nil {
		return apperr.Persistence("encode product images", err)
	}
	reviews, err := json.Marshal(nonNil(p.Reviews))
	if err != nil {
		return apperr.Persistence("encode product reviews", err)
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperr.Persistence("begin catalog tx", err)
	}
	defer tx.Rollback(ctx)

	var categoryID *string
	if c := p.Category; c != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO categories(id, name, slug) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, slug=EXCLUDED.slug`,
			c.ID, c.Name, c.Slug); err != nil {
			return apperr.Persistence("upsert category", err)
		}
		categoryID = &c.ID
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO products(id, name, slug, description, category_id, price, image_urls, reviews,
		                     featured, best_seller, new_arrival, rating, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13, now()), COALESCE($14, now()))
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, slug=EXCLUDED.slug, description=EXCLUDED.description,
			category_id=EXCLUDED.category_id, price=EXCLUDED.price, image_urls=EXCLUDED.image_urls,
			reviews=EXCLUDED.reviews, featured=EXCLUDED.featured, best_seller=EXCLUDED.best_seller,
			new_arrival=EXCLUDED.new_arrival, rating=EXCLUDED.rating, updated_at=EXCLUDED.updated_at`,
		p.ID, p.Name, p.Slug, p.Description, categoryID, p.Price, images, reviews,
		p.Featured, p.BestSeller, p.NewArrival, p.Rating, nullTime(p.CreatedAt), nullTime(p.UpdatedAt),
	); err != nil {
		return apperr.Persistence("upsert product", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM product_variants WHERE product_id=$1 AND NOT (variant_id = ANY($2))`,
		p.ID, variantIDs(p.Variants)); err != nil {
		return apperr.Persistence("prune variants", err)
	}
	for _, v := range p.Variants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO product_variants(product_id, variant_id, size, color_name, color_value, stock, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (product_id, variant_id) DO UPDATE SET
				size=EXCLUDED.size, color_name=EXCLUDED.color_name, color_value=EXCLUDED.color_value,
				stock=EXCLUDED.stock, price=EXCLUDED.price`,
			p.ID, v.VariantID, v.Size, v.ColorName, v.ColorValue, max(v.Stock, 0), v.Price); err != nil {
			return apperr.Persistence("upsert variant", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Persistence("commit catalog tx", err)
	}
	return nil
}

// DeleteProduct removes the product and its variants. Deleting an unknown id
// is not an error.
func (r *Repo) DeleteProduct(ctx context.Context, id string) error {
	if _, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id); err != nil {
		return apperr.Persistence("delete product", err)
	}
	return nil
}

func variantIDs(vs []Variant) []string {
	ids := make([]string, 0, len(vs))
	for _, v := range vs {
		ids = append(ids, v.VariantID)
	}
	return ids
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// load runs a product query, then attaches variants with a second query
// rather than multiplying product rows with a join.
func (r *Repo) load(ctx context.Context, query string, ids []string) ([]Product, error) {
	var args []any
	if ids != nil {
		args = append(args, ids)
	}
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Persistence("query products", err)
	}
	defer rows.Close()

	var (
		out   []Product
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			p                      Product
			images, reviews        []byte
			catID, catName, catSlg *string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &images, &reviews,
			&p.Featured, &p.BestSeller, &p.NewArrival, &p.Rating, &p.CreatedAt, &p.UpdatedAt,
			&catID, &catName, &catSlg); err != nil {
			return nil, apperr.Persistence("scan product", err)
		}
		if err := json.Unmarshal(images, &p.ImageURLs); err != nil {
			return nil, apperr.Persistence("decode product images", err)
		}
		if err := json.Unmarshal(reviews, &p.Reviews); err != nil {
			return nil, apperr.Persistence("decode product reviews", err)
		}
		if catID != nil {
			p.Category = &Category{ID: *catID, Name: deref(catName), Slug: deref(catSlg)}
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("query products", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	vq := `SELECT product_id, variant_id, size, color_name, color_value, stock, price
	       FROM product_variants`
	if ids != nil {
		vq += ` WHERE product_id = ANY($1)`
	}
	vrows, err := r.DB.Query(ctx, vq+` ORDER BY product_id, variant_id`, args...)
	if err != nil {
		return nil, apperr.Persistence("query variants", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var (
			pid string
			v   Variant
		)
		if err := vrows.Scan(&pid, &v.VariantID, &v.Size, &v.ColorName, &v.ColorValue, &v.Stock, &v.Price); err != nil {
			return nil, apperr.Persistence("scan variant", err)
		}
		if i, ok := index[pid]; ok {
			out[i].Variants = append(out[i].Variants, v)
		}
	}
	if err := vrows.Err(); err != nil {
		return nil, apperr.Persistence("query variants", err)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

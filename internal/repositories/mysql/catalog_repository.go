package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	domain "github.com/vietcart/storefront/internal/domain"
)

const productColumns = `id, name, slug, price, original_price, discount_percent,
	category_name, category_slug, image, stock, sold, rating, created_at`

// CatalogRepository reads products, categories, and banners from MySQL.
// Product rows come from the v_products_with_category view so each carries
// its category name and slug without joins here.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository wires a catalog repository over the provided pool.
func NewCatalogRepository(db *sql.DB) (*CatalogRepository, error) {
	if db == nil {
		return nil, errors.New("catalog repository: db handle is required")
	}
	return &CatalogRepository{db: db}, nil
}

// Ping verifies database connectivity for readiness probes.
func (r *CatalogRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListProducts returns a page of the catalog ordered by newest first.
func (r *CatalogRepository) ListProducts(ctx context.Context, limit, offset int) ([]domain.Product, error) {
	const op = "catalog repository: list products"

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM v_products_with_category ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, WrapError(op, err)
	}
	defer rows.Close()

	return scanProducts(op, rows)
}

// GetProduct returns a single catalog entry by its identifier.
func (r *CatalogRepository) GetProduct(ctx context.Context, id int) (domain.Product, error) {
	const op = "catalog repository: get product"

	row := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM v_products_with_category WHERE id = ?`,
		id,
	)
	product, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, WrapError(op, err)
	}
	return product, nil
}

// ListProductsByCategory returns the full category ordered by newest first.
func (r *CatalogRepository) ListProductsByCategory(ctx context.Context, categorySlug string) ([]domain.Product, error) {
	const op = "catalog repository: list products by category"

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM v_products_with_category WHERE category_slug = ? ORDER BY created_at DESC`,
		strings.TrimSpace(categorySlug),
	)
	if err != nil {
		return nil, WrapError(op, err)
	}
	defer rows.Close()

	return scanProducts(op, rows)
}

// SearchProducts matches the keyword against name and description fields.
func (r *CatalogRepository) SearchProducts(ctx context.Context, keyword string, limit, offset int) ([]domain.Product, error) {
	const op = "catalog repository: search products"

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	pattern := "%" + strings.TrimSpace(keyword) + "%"

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM v_products_with_category
		 WHERE name LIKE ? OR description LIKE ? OR short_description LIKE ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		pattern, pattern, pattern, limit, offset,
	)
	if err != nil {
		return nil, WrapError(op, err)
	}
	defer rows.Close()

	return scanProducts(op, rows)
}

// ListCategories returns active categories in display order.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	const op = "catalog repository: list categories"

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, slug, image FROM categories WHERE is_active = 1 ORDER BY sort_order ASC`,
	)
	if err != nil {
		return nil, WrapError(op, err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var (
			category domain.Category
			image    sql.NullString
		)
		if err := rows.Scan(&category.ID, &category.Name, &category.Slug, &image); err != nil {
			return nil, WrapError(op, err)
		}
		category.Image = image.String
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(op, err)
	}
	return categories, nil
}

// ListBanners returns active banners for the position within their display window.
func (r *CatalogRepository) ListBanners(ctx context.Context, position string) ([]domain.Banner, error) {
	const op = "catalog repository: list banners"

	if strings.TrimSpace(position) == "" {
		position = "homepage"
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, image, link, position FROM banners
		 WHERE position = ? AND is_active = 1
		   AND (start_date IS NULL OR start_date <= NOW())
		   AND (end_date IS NULL OR end_date >= NOW())
		 ORDER BY sort_order ASC`,
		position,
	)
	if err != nil {
		return nil, WrapError(op, err)
	}
	defer rows.Close()

	var banners []domain.Banner
	for rows.Next() {
		var (
			banner domain.Banner
			link   sql.NullString
		)
		if err := rows.Scan(&banner.ID, &banner.Image, &link, &banner.Position); err != nil {
			return nil, WrapError(op, err)
		}
		banner.Link = link.String
		banners = append(banners, banner)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(op, err)
	}
	return banners, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		product       domain.Product
		originalPrice sql.NullInt64
		discount      sql.NullInt64
		image         sql.NullString
		sold          sql.NullInt64
		rating        sql.NullFloat64
		createdAt     sql.NullTime
	)
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Slug,
		&product.Price,
		&originalPrice,
		&discount,
		&product.Category,
		&product.CategorySlug,
		&image,
		&product.Stock,
		&sold,
		&rating,
		&createdAt,
	)
	if err != nil {
		return domain.Product{}, err
	}

	product.OriginalPrice = originalPrice.Int64
	product.DiscountPercent = int(discount.Int64)
	product.Image = image.String
	product.Sold = int(sold.Int64)
	product.Rating = rating.Float64
	if createdAt.Valid {
		product.CreatedAt = createdAt.Time
	} else {
		product.CreatedAt = time.Time{}
	}
	return product, nil
}

func scanProducts(op string, rows *sql.Rows) ([]domain.Product, error) {
	var products []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, WrapError(op, err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(op, err)
	}
	return products, nil
}

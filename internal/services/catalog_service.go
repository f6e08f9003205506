package services

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	domain "github.com/vietcart/storefront/internal/domain"
	"github.com/vietcart/storefront/internal/repositories"
)

var errCatalogRepositoryRequired = errors.New("catalog service: repository is required")

// ErrCatalogInvalidInput indicates the caller supplied invalid input.
var ErrCatalogInvalidInput = errors.New("catalog service: invalid input")

// ErrCatalogUnavailable indicates the catalog backend cannot fulfil the request.
var ErrCatalogUnavailable = errors.New("catalog service: unavailable")

// ErrProductNotFound indicates the requested product does not exist.
var ErrProductNotFound = errors.New("catalog service: product not found")

// The browse working set is bounded so filtering and sorting stay in memory.
const maxBrowseFetch = 500

var ampersandSpacing = regexp.MustCompile(`\s*&\s*`)

// CatalogServiceDeps wires the repository and tuning knobs for catalog reads.
type CatalogServiceDeps struct {
	Repository     repositories.CatalogRepository
	PageSize       int
	NewProductIDGt int
	Logger         func(context.Context, string, map[string]any)
}

type catalogService struct {
	repo           repositories.CatalogRepository
	pageSize       int
	newProductIDGt int
	collator       *collate.Collator
	logger         func(context.Context, string, map[string]any)
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs a CatalogService enforcing dependency validation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Repository == nil {
		return nil, errCatalogRepositoryRequired
	}

	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = 12
	}
	newProductIDGt := deps.NewProductIDGt
	if newProductIDGt <= 0 {
		newProductIDGt = 6
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		repo:           deps.Repository,
		pageSize:       pageSize,
		newProductIDGt: newProductIDGt,
		collator:       collate.New(language.Vietnamese),
		logger:         logger,
	}, nil
}

// Browse filters, sorts and paginates the catalog per the query.
func (s *catalogService) Browse(ctx context.Context, query BrowseQuery) (domain.Page[Product], error) {
	if s == nil || s.repo == nil {
		return domain.Page[Product]{}, ErrCatalogUnavailable
	}

	products, err := s.fetch(ctx, query)
	if err != nil {
		return domain.Page[Product]{}, s.translateRepoError(err)
	}

	filtered := make([]Product, 0, len(products))
	for _, product := range products {
		if !matchesCategory(product.Category, query.Category) {
			continue
		}
		if query.DiscountOnly && product.DiscountPercent <= 0 {
			continue
		}
		if query.NewOnly && product.ID <= s.newProductIDGt {
			continue
		}
		if query.MinPrice > 0 && product.Price < query.MinPrice {
			continue
		}
		if query.MaxPrice > 0 && product.Price > query.MaxPrice {
			continue
		}
		filtered = append(filtered, product)
	}

	s.sortProducts(filtered, query.Sort)

	return paginate(filtered, query.Page, s.pageSize), nil
}

// GetProduct returns a single catalog entry.
func (s *catalogService) GetProduct(ctx context.Context, productID int) (Product, error) {
	if s == nil || s.repo == nil {
		return Product{}, ErrCatalogUnavailable
	}
	if productID <= 0 {
		return Product{}, ErrCatalogInvalidInput
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return Product{}, s.translateRepoError(err)
	}
	return product, nil
}

// ListCategories returns the active categories in display order.
func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}

	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return categories, nil
}

// ListBanners returns the active banners for a storefront slot.
func (s *catalogService) ListBanners(ctx context.Context, position string) ([]Banner, error) {
	if s == nil || s.repo == nil {
		return nil, ErrCatalogUnavailable
	}

	banners, err := s.repo.ListBanners(ctx, strings.TrimSpace(position))
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return banners, nil
}

func (s *catalogService) fetch(ctx context.Context, query BrowseQuery) ([]Product, error) {
	if keyword := strings.TrimSpace(query.Keyword); keyword != "" {
		return s.repo.SearchProducts(ctx, keyword, maxBrowseFetch, 0)
	}
	return s.repo.ListProducts(ctx, maxBrowseFetch, 0)
}

func (s *catalogService) sortProducts(products []Product, order ProductSort) {
	switch order {
	case domain.ProductSortPriceAsc:
		sort.SliceStable(products, func(i, j int) bool { return products[i].Price < products[j].Price })
	case domain.ProductSortPriceDesc:
		sort.SliceStable(products, func(i, j int) bool { return products[i].Price > products[j].Price })
	case domain.ProductSortDiscountDesc:
		sort.SliceStable(products, func(i, j int) bool { return products[i].DiscountPercent > products[j].DiscountPercent })
	case domain.ProductSortNameAsc:
		sort.SliceStable(products, func(i, j int) bool {
			return s.collator.CompareString(products[i].Name, products[j].Name) < 0
		})
	case domain.ProductSortNameDesc:
		sort.SliceStable(products, func(i, j int) bool {
			return s.collator.CompareString(products[i].Name, products[j].Name) > 0
		})
	default:
		// Source order is already the default ordering.
	}
}

// matchesCategory compares in three stages so slightly differing renderings
// of the same label still line up: exact, then collapsed spacing around "&",
// then a lowercase fold.
func matchesCategory(productCategory, wanted string) bool {
	wanted = strings.TrimSpace(wanted)
	if wanted == "" || strings.EqualFold(wanted, "all") {
		return true
	}
	if productCategory == wanted {
		return true
	}

	collapsedProduct := collapseAmpersand(productCategory)
	collapsedWanted := collapseAmpersand(wanted)
	if collapsedProduct == collapsedWanted {
		return true
	}

	return strings.ToLower(collapsedProduct) == strings.ToLower(collapsedWanted)
}

func collapseAmpersand(value string) string {
	return strings.TrimSpace(ampersandSpacing.ReplaceAllString(value, " & "))
}

func paginate(products []Product, page, pageSize int) domain.Page[Product] {
	totalItems := len(products)
	totalPages := 0
	if totalItems > 0 {
		totalPages = (totalItems + pageSize - 1) / pageSize
	}

	if page < 1 {
		page = 1
	}

	result := domain.Page[Product]{
		Items:      []Product{},
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}

	start := (page - 1) * pageSize
	if start >= totalItems {
		return result
	}
	end := start + pageSize
	if end > totalItems {
		end = totalItems
	}
	result.Items = products[start:end]
	return result
}

func (s *catalogService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrProductNotFound
		}
	}
	return ErrCatalogUnavailable
}

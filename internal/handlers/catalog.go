package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vietcart/storefront/internal/domain"
	"github.com/vietcart/storefront/internal/platform/httpx"
	"github.com/vietcart/storefront/internal/services"
)

// CatalogHandlers exposes the public product browsing endpoints.
type CatalogHandlers struct {
	catalog services.CatalogService
}

func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/categories", h.listCategories)
	r.Get("/banners", h.listBanners)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query, err := parseBrowseQuery(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.catalog.Browse(ctx, query)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	writeJSONResponse(w, http.StatusOK, productListResponse{
		Items:      items,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalItems: page.TotalItems,
		TotalPages: page.TotalPages,
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := chi.URLParam(r, "productID")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("invalid product id %q", raw), http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	items := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		items = append(items, categoryPayload{
			ID:    category.ID,
			Name:  category.Name,
			Slug:  category.Slug,
			Image: category.Image,
		})
	}
	writeJSONResponse(w, http.StatusOK, categoryListResponse{Items: items})
}

func (h *CatalogHandlers) listBanners(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	banners, err := h.catalog.ListBanners(ctx, strings.TrimSpace(r.URL.Query().Get("position")))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	items := make([]bannerPayload, 0, len(banners))
	for _, banner := range banners {
		items = append(items, bannerPayload{
			ID:       banner.ID,
			Image:    banner.Image,
			Link:     banner.Link,
			Position: banner.Position,
		})
	}
	writeJSONResponse(w, http.StatusOK, bannerListResponse{Items: items})
}

func parseBrowseQuery(r *http.Request) (services.BrowseQuery, error) {
	values := r.URL.Query()
	query := services.BrowseQuery{
		Category: strings.TrimSpace(values.Get("category")),
		Keyword:  strings.TrimSpace(values.Get("q")),
		Sort:     domain.ProductSortDefault,
		Page:     1,
	}

	if raw := values.Get("sort"); raw != "" {
		sort, err := parseProductSort(raw)
		if err != nil {
			return services.BrowseQuery{}, err
		}
		query.Sort = sort
	}
	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return services.BrowseQuery{}, fmt.Errorf("invalid page %q", raw)
		}
		query.Page = page
	}
	if raw := values.Get("min_price"); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || price < 0 {
			return services.BrowseQuery{}, fmt.Errorf("invalid min_price %q", raw)
		}
		query.MinPrice = price
	}
	if raw := values.Get("max_price"); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || price < 0 {
			return services.BrowseQuery{}, fmt.Errorf("invalid max_price %q", raw)
		}
		query.MaxPrice = price
	}
	if raw := values.Get("discount"); raw != "" {
		flag, err := strconv.ParseBool(raw)
		if err != nil {
			return services.BrowseQuery{}, fmt.Errorf("invalid discount flag %q", raw)
		}
		query.DiscountOnly = flag
	}
	if raw := values.Get("new"); raw != "" {
		flag, err := strconv.ParseBool(raw)
		if err != nil {
			return services.BrowseQuery{}, fmt.Errorf("invalid new flag %q", raw)
		}
		query.NewOnly = flag
	}

	return query, nil
}

func parseProductSort(raw string) (domain.ProductSort, error) {
	switch domain.ProductSort(raw) {
	case domain.ProductSortDefault, domain.ProductSortPriceAsc, domain.ProductSortPriceDesc,
		domain.ProductSortDiscountDesc, domain.ProductSortNameAsc, domain.ProductSortNameDesc:
		return domain.ProductSort(raw), nil
	default:
		return "", fmt.Errorf("unsupported sort %q", raw)
	}
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "catalog operation failed", http.StatusInternalServerError))
	}
}

type productListResponse struct {
	Items      []productPayload `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalItems int              `json:"total_items"`
	TotalPages int              `json:"total_pages"`
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Slug            string  `json:"slug"`
	Price           int64   `json:"price"`
	OriginalPrice   int64   `json:"original_price,omitempty"`
	DiscountPercent int     `json:"discount_percent,omitempty"`
	Category        string  `json:"category"`
	CategorySlug    string  `json:"category_slug"`
	Image           string  `json:"image"`
	Stock           int     `json:"stock"`
	Sold            int     `json:"sold"`
	Rating          float64 `json:"rating"`
}

type categoryListResponse struct {
	Items []categoryPayload `json:"items"`
}

type categoryPayload struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Image string `json:"image"`
}

type bannerListResponse struct {
	Items []bannerPayload `json:"items"`
}

type bannerPayload struct {
	ID       int    `json:"id"`
	Image    string `json:"image"`
	Link     string `json:"link"`
	Position string `json:"position"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:              product.ID,
		Name:            product.Name,
		Slug:            product.Slug,
		Price:           product.Price,
		OriginalPrice:   product.OriginalPrice,
		DiscountPercent: product.DiscountPercent,
		Category:        product.Category,
		CategorySlug:    product.CategorySlug,
		Image:           product.Image,
		Stock:           product.Stock,
		Sold:            product.Sold,
		Rating:          product.Rating,
	}
}

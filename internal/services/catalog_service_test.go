package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	domain "github.com/vietcart/storefront/internal/domain"
)

type stubCatalogRepository struct {
	products   []domain.Product
	categories []domain.Category
	banners    []domain.Banner
	listErr    error
	getErr     error
	searched   string
}

func (s *stubCatalogRepository) ListProducts(ctx context.Context, limit, offset int) ([]domain.Product, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.products, nil
}

func (s *stubCatalogRepository) GetProduct(ctx context.Context, id int) (domain.Product, error) {
	if s.getErr != nil {
		return domain.Product{}, s.getErr
	}
	for _, product := range s.products {
		if product.ID == id {
			return product, nil
		}
	}
	return domain.Product{}, stubRepoError{notFound: true}
}

func (s *stubCatalogRepository) ListProductsByCategory(ctx context.Context, categorySlug string) ([]domain.Product, error) {
	return s.products, nil
}

func (s *stubCatalogRepository) SearchProducts(ctx context.Context, keyword string, limit, offset int) ([]domain.Product, error) {
	s.searched = keyword
	return s.products, nil
}

func (s *stubCatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.categories, nil
}

func (s *stubCatalogRepository) ListBanners(ctx context.Context, position string) ([]domain.Banner, error) {
	return s.banners, nil
}

func newTestCatalogService(t *testing.T, repo *stubCatalogRepository) CatalogService {
	t.Helper()
	service, err := NewCatalogService(CatalogServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("NewCatalogService: %v", err)
	}
	return service
}

func TestCatalogServiceCategoryMatching(t *testing.T) {
	repo := &stubCatalogRepository{products: []domain.Product{
		{ID: 1, Name: "Đèn bàn", Category: "Nhà & Cửa", Price: 150000},
		{ID: 2, Name: "Áo thun", Category: "Thời trang", Price: 120000},
	}}
	service := newTestCatalogService(t, repo)

	matching := []string{"Nhà & Cửa", "Nhà  &  Cửa", "nhà & cửa", " Nhà & Cửa "}
	for _, category := range matching {
		page, err := service.Browse(context.Background(), BrowseQuery{Category: category})
		if err != nil {
			t.Fatalf("Browse(%q) returned error: %v", category, err)
		}
		if len(page.Items) != 1 || page.Items[0].ID != 1 {
			t.Errorf("Browse(%q): expected exactly product 1, got %+v", category, page.Items)
		}
	}

	page, err := service.Browse(context.Background(), BrowseQuery{Category: "Nhà Cửa"})
	if err != nil {
		t.Fatalf("Browse returned error: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("expected no match without the ampersand, got %+v", page.Items)
	}

	page, err = service.Browse(context.Background(), BrowseQuery{Category: "all"})
	if err != nil {
		t.Fatalf("Browse returned error: %v", err)
	}
	if len(page.Items) != 2 {
		t.Errorf("expected all products for category all, got %d", len(page.Items))
	}
}

func TestCatalogServiceFiltersCompose(t *testing.T) {
	repo := &stubCatalogRepository{products: []domain.Product{
		{ID: 3, Name: "A", Price: 100000, DiscountPercent: 20},
		{ID: 7, Name: "B", Price: 100000, DiscountPercent: 10},
		{ID: 8, Name: "C", Price: 400000, DiscountPercent: 30},
		{ID: 9, Name: "D", Price: 100000},
	}}
	service := newTestCatalogService(t, repo)

	page, err := service.Browse(context.Background(), BrowseQuery{
		DiscountOnly: true,
		NewOnly:      true,
		MinPrice:     50000,
		MaxPrice:     200000,
	})
	if err != nil {
		t.Fatalf("Browse returned error: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != 7 {
		t.Fatalf("expected only product 7 to pass every filter, got %+v", page.Items)
	}
}

func TestCatalogServiceSorting(t *testing.T) {
	repo := &stubCatalogRepository{products: []domain.Product{
		{ID: 1, Name: "Ghế gỗ", Price: 300000, DiscountPercent: 5},
		{ID: 2, Name: "Áo thun", Price: 120000, DiscountPercent: 25},
		{ID: 3, Name: "Bàn học", Price: 500000, DiscountPercent: 15},
	}}
	service := newTestCatalogService(t, repo)

	cases := []struct {
		sort ProductSort
		want []int
	}{
		{domain.ProductSortDefault, []int{1, 2, 3}},
		{domain.ProductSortPriceAsc, []int{2, 1, 3}},
		{domain.ProductSortPriceDesc, []int{3, 1, 2}},
		{domain.ProductSortDiscountDesc, []int{2, 3, 1}},
		{domain.ProductSortNameAsc, []int{2, 3, 1}},
		{domain.ProductSortNameDesc, []int{1, 3, 2}},
	}

	for _, tc := range cases {
		t.Run(string(tc.sort), func(t *testing.T) {
			page, err := service.Browse(context.Background(), BrowseQuery{Sort: tc.sort})
			if err != nil {
				t.Fatalf("Browse returned error: %v", err)
			}
			got := make([]int, len(page.Items))
			for i, product := range page.Items {
				got[i] = product.ID
			}
			if fmt.Sprint(got) != fmt.Sprint(tc.want) {
				t.Errorf("expected order %v, got %v", tc.want, got)
			}
		})
	}
}

func TestCatalogServicePagination(t *testing.T) {
	products := make([]domain.Product, 0, 25)
	for i := 1; i <= 25; i++ {
		products = append(products, domain.Product{ID: i, Name: fmt.Sprintf("P%02d", i), Price: 1000})
	}
	repo := &stubCatalogRepository{products: products}
	service := newTestCatalogService(t, repo)

	sizes := map[int]int{1: 12, 2: 12, 3: 1}
	for pageNo, wantLen := range sizes {
		page, err := service.Browse(context.Background(), BrowseQuery{Page: pageNo})
		if err != nil {
			t.Fatalf("Browse page %d returned error: %v", pageNo, err)
		}
		if len(page.Items) != wantLen {
			t.Errorf("page %d: expected %d items, got %d", pageNo, wantLen, len(page.Items))
		}
		if page.TotalItems != 25 || page.TotalPages != 3 {
			t.Errorf("page %d: unexpected metadata %+v", pageNo, page)
		}
	}

	// Requesting past the end is not an error, just an empty slice.
	page, err := service.Browse(context.Background(), BrowseQuery{Page: 4})
	if err != nil {
		t.Fatalf("Browse page 4 returned error: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("expected empty page, got %d items", len(page.Items))
	}
	if page.Page != 4 || page.TotalItems != 25 || page.TotalPages != 3 {
		t.Errorf("expected intact metadata, got %+v", page)
	}
}

func TestCatalogServiceEmptyResult(t *testing.T) {
	service := newTestCatalogService(t, &stubCatalogRepository{})

	page, err := service.Browse(context.Background(), BrowseQuery{})
	if err != nil {
		t.Fatalf("Browse returned error: %v", err)
	}
	if page.TotalPages != 0 || page.Page != 1 || len(page.Items) != 0 {
		t.Errorf("unexpected empty-result metadata %+v", page)
	}
}

func TestCatalogServiceKeywordUsesSearch(t *testing.T) {
	repo := &stubCatalogRepository{}
	service := newTestCatalogService(t, repo)

	if _, err := service.Browse(context.Background(), BrowseQuery{Keyword: " áo "}); err != nil {
		t.Fatalf("Browse returned error: %v", err)
	}
	if repo.searched != "áo" {
		t.Errorf("expected trimmed keyword search, got %q", repo.searched)
	}
}

func TestCatalogServiceGetProduct(t *testing.T) {
	repo := &stubCatalogRepository{products: []domain.Product{{ID: 5, Name: "Ly sứ"}}}
	service := newTestCatalogService(t, repo)

	product, err := service.GetProduct(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetProduct returned error: %v", err)
	}
	if product.Name != "Ly sứ" {
		t.Errorf("unexpected product %+v", product)
	}

	if _, err := service.GetProduct(context.Background(), 0); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
	if _, err := service.GetProduct(context.Background(), 99); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

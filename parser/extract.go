package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-shop/models"
)

// Selectors locates product fields inside a listing page.
type Selectors struct {
	Container      string
	Item           string
	Wrapper        string
	Image          string
	ImageAttr      string
	Details        string
	Title          string
	CurrencyMarker string
}

// DefaultSelectors matches the storefront's WooCommerce listing markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Container:      "#mf-shop-content",
		Item:           "li.product",
		Wrapper:        "div.product-inner",
		Image:          "div.mf-product-thumbnail img",
		ImageAttr:      "data-lazy-src",
		Details:        "div.mf-product-details",
		Title:          "h2.woo-loop-product__title",
		CurrencyMarker: "span.woocommerce-Price-currencySymbol",
	}
}

// ExtractionError reports a listing page whose markup could not be traversed.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Errorf("extraction: %w", e.Err).Error()
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Extractor produces product records from listing HTML.
type Extractor struct {
	sel Selectors
}

// NewExtractor builds an extractor using sel.
func NewExtractor(sel Selectors) *Extractor {
	return &Extractor{sel: sel}
}

// Extract returns the titled products found in html. A page without the products
// container yields an empty slice and no error. Malformed markup yields an
// *ExtractionError; callers treat that page as empty.
func (x *Extractor) Extract(html string) (products []models.Product, err error) {
	defer func() {
		if r := recover(); r != nil {
			products = nil
			err = &ExtractionError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}

	container := doc.Find(x.sel.Container).First()
	if container.Length() == 0 {
		return []models.Product{}, nil
	}

	products = []models.Product{}
	container.Find(x.sel.Item).Each(func(_ int, item *goquery.Selection) {
		product, ok := x.extractItem(item)
		if !ok {
			return
		}
		products = append(products, product)
	})
	return products, nil
}

func (x *Extractor) extractItem(item *goquery.Selection) (models.Product, bool) {
	wrapper := item.Find(x.sel.Wrapper).First()
	if wrapper.Length() == 0 {
		return models.Product{}, false
	}

	image := wrapper.Find(x.sel.Image).First()
	imagePath, _ := image.Attr(x.sel.ImageAttr)

	var title string
	var price float64
	details := wrapper.Find(x.sel.Details).First()
	if details.Length() > 0 {
		title = NormalizeTitle(details.Find(x.sel.Title).First().Text())

		// The currency marker and the amount are siblings under one parent.
		marker := details.Find(x.sel.CurrencyMarker).First()
		if marker.Length() > 0 {
			price = ParsePrice(marker.Parent().Text())
		}
	}

	product := models.Product{
		Title:     title,
		Price:     price,
		ImagePath: strings.TrimSpace(imagePath),
	}
	if err := ValidateProduct(&product); err != nil {
		return models.Product{}, false
	}
	return product, true
}

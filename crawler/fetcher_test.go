package crawler

import "testing"

const productPage = `
<html><body>
<ul class="breadcrumbs">
  <li><a href="/">Home</a></li>
  <li class="category"><a href="/rings">Rings</a></li>
  <li>Aurora Ring</li>
</ul>
<div class="product-info-main">
  <h1 class="product-name">Aurora Ring</h1>
  <span class="price">€ 349,00</span>
  <meta itemprop="priceCurrency" content="EUR">
</div>
<div class="product media">
  <img class="gallery-placeholder__image" src="https://cdn.shop/aurora.jpg">
</div>
<div class="rating-result"><span><span>92%</span></span></div>
<div class="product attribute description"><div class="value">A ring with a stone.</div></div>
</body></html>`

// TestExtractProduct verifies field extraction from a rendered product page.
func TestExtractProduct(t *testing.T) {
	p, err := ExtractProduct(productPage)
	if err != nil {
		t.Fatalf("ExtractProduct failed: %v", err)
	}

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"name", p.Name, "Aurora Ring"},
		{"price", p.Price, "€ 349,00"},
		{"currency", p.Currency, "EUR"},
		{"category", p.Category, "Rings"},
		{"image", p.ImageURL, "https://cdn.shop/aurora.jpg"},
		{"rating", p.Rating, "92%"},
		{"description", p.Description, "A ring with a stone."},
	}
	for _, tc := range checks {
		if tc.got != tc.want {
			t.Errorf("%s = %q, want %q", tc.field, tc.got, tc.want)
		}
	}
}

// TestExtractProduct_NoName verifies a page without a recognizable product is
// an error rather than an empty product.
func TestExtractProduct_NoName(t *testing.T) {
	if _, err := ExtractProduct("<html><body><p>404</p></body></html>"); err == nil {
		t.Fatal("expected error for page without product name")
	}
}

// TestExtractProduct_PartialPage verifies missing optional fields stay empty
// without failing extraction.
func TestExtractProduct_PartialPage(t *testing.T) {
	p, err := ExtractProduct(`<html><body><h1>Bare Product</h1></body></html>`)
	if err != nil {
		t.Fatalf("ExtractProduct failed: %v", err)
	}
	if p.Name != "Bare Product" {
		t.Errorf("name = %q", p.Name)
	}
	if p.Price != "" || p.Category != "" || p.Rating != "" {
		t.Errorf("optional fields populated on bare page: %+v", p)
	}
}

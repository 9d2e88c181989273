package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/feedsync/backend/internal/domain"
)

// Tag prefixes written on every synced product
const (
	TagBrandPrefix    = "brand:"
	TagFamilyPrefix   = "family:"
	TagCategoryPrefix = "category:"
	TagSource         = "from:xml"
)

// maxFamilyKeyRunes keeps "family:<KEY>" under the 255 character tag limit
const maxFamilyKeyRunes = 200

// defaultQuantityCap bounds how much stock counts when two records compete for one variant
const defaultQuantityCap = 999

// GrouperOptions configures family keys and fallbacks
type GrouperOptions struct {
	DefaultColor   string
	VendorFallback string
	TypeFallback   string
	GroupByFinish  bool
	QuantityCap    int
}

// Grouper merges feed items sharing a family key into logical products
type Grouper struct {
	opts GrouperOptions
}

// NewGrouper creates a new grouper
func NewGrouper(opts GrouperOptions) *Grouper {
	if opts.DefaultColor == "" {
		opts.DefaultColor = "STANDART"
	}
	if opts.QuantityCap <= 0 {
		opts.QuantityCap = defaultQuantityCap
	}
	return &Grouper{opts: opts}
}

// family accumulates one logical product while grouping
type family struct {
	product     *domain.LogicalProduct
	bucketIndex map[string]int
	variantSlot map[string]int // dedup key -> position in its bucket
	imageSeen   map[string]bool
}

// Group produces logical products in first-seen family order
func (g *Grouper) Group(items []domain.FeedItem) []domain.LogicalProduct {
	var order []string
	families := make(map[string]*family)

	for _, item := range items {
		key, product := g.describe(item)
		fam, ok := families[key]
		if !ok {
			fam = &family{
				product:     product,
				bucketIndex: make(map[string]int),
				variantSlot: make(map[string]int),
				imageSeen:   make(map[string]bool),
			}
			families[key] = fam
			order = append(order, key)
		} else if fam.product.Description == "" {
			fam.product.Description = product.Description
		}
		g.merge(fam, item)
	}

	result := make([]domain.LogicalProduct, 0, len(order))
	for _, key := range order {
		result = append(result, *families[key].product)
	}
	return result
}

// describe derives the family key and product-level fields of an item
func (g *Grouper) describe(item domain.FeedItem) (string, *domain.LogicalProduct) {
	brand := CollapseSpaces(strings.ReplaceAll(item.Brand, ",", " "))
	if brand == "" {
		brand = g.opts.VendorFallback
	}

	code, hasCode := ExtractModelCode(item.Name, item.MPN, item.ProductCode)
	finish, _ := ExtractFinish(item.Name, item.Description)
	series, ok := ExtractSeries(item.Name)
	if !ok {
		series = DefaultSeries
	}
	title := BuildTitle(item.Name, brand, code)

	var key string
	if hasCode {
		key = Fold(brand) + "|" + code
		if g.opts.GroupByFinish && finish != "" {
			key += "|" + finish
		}
	} else {
		key = Fold(title)
	}
	key = tagSafeKey(key)

	productType, ok := Classify(item.Name, item.MainCategory, item.Category)
	if !ok {
		productType = g.opts.TypeFallback
	}

	product := &domain.LogicalProduct{
		FamilyKey:   key,
		Title:       title,
		Vendor:      brand,
		ProductType: productType,
		Description: strings.TrimSpace(item.Description),
		ModelCode:   code,
		Series:      series,
		Finish:      finish,
		Tags: []string{
			TagBrandPrefix + brand,
			TagFamilyPrefix + key,
			TagSource,
			TagCategoryPrefix + productType,
		},
	}
	return key, product
}

// merge adds the item's images and variants to its family
func (g *Grouper) merge(fam *family, item domain.FeedItem) {
	itemColor, hasColor := ExtractColor(item.Name)

	finish := ""
	if !g.opts.GroupByFinish {
		finish, _ = ExtractFinish(item.Name, item.Description)
	}

	if len(item.Images) > 0 {
		imageColor := g.opts.DefaultColor
		switch {
		case hasColor:
			imageColor = itemColor
		case len(item.Variants) > 0 && strings.TrimSpace(item.Variants[0].Color) != "":
			imageColor = Upper(item.Variants[0].Color)
		}
		bucket := g.bucket(fam, imageColor)
		for _, url := range item.Images {
			sig := ImageSignature(url)
			if sig == "" || fam.imageSeen[sig] {
				continue
			}
			fam.imageSeen[sig] = true
			bucket.Images = append(bucket.Images, url)
		}
	}

	for _, fv := range item.Variants {
		color := g.opts.DefaultColor
		switch {
		case strings.TrimSpace(fv.Color) != "":
			color = Upper(fv.Color)
		case hasColor:
			color = itemColor
		}

		price := fv.Price
		if price <= 0 {
			price = item.Price
		}
		barcode := strings.TrimSpace(fv.Barcode)
		if barcode == "" {
			barcode = strings.TrimSpace(fv.SKU)
		}

		v := domain.Variant{
			Color:    color,
			Size:     CollapseSpaces(fv.Size),
			Finish:   finish,
			SKU:      strings.TrimSpace(fv.SKU),
			Barcode:  barcode,
			Quantity: fv.Quantity,
			Price:    price,
		}

		b := g.bucket(fam, color)
		dedupKey := variantKey(v)
		if pos, ok := fam.variantSlot[dedupKey]; ok {
			if g.betterVariant(b.Variants[pos], v) {
				b.Variants[pos] = v
			}
			continue
		}
		fam.variantSlot[dedupKey] = len(b.Variants)
		b.Variants = append(b.Variants, v)
	}
}

// bucket returns the color bucket for color, creating it on first use
func (g *Grouper) bucket(fam *family, color string) *domain.ColorBucket {
	key := Fold(color)
	if idx, ok := fam.bucketIndex[key]; ok {
		return &fam.product.Buckets[idx]
	}
	fam.bucketIndex[key] = len(fam.product.Buckets)
	fam.product.Buckets = append(fam.product.Buckets, domain.ColorBucket{Color: color})
	return &fam.product.Buckets[len(fam.product.Buckets)-1]
}

// variantKey is the (color, size[, finish]) identity of a variant inside a family
func variantKey(v domain.Variant) string {
	return Fold(v.Color) + "|" + Fold(v.Size) + "|" + Fold(v.Finish)
}

// betterVariant reports whether candidate should replace current.
// Barcode presence beats positive price, which beats higher capped quantity.
// Equal records resolve to the candidate.
func (g *Grouper) betterVariant(current, candidate domain.Variant) bool {
	if hasBarcode(current) != hasBarcode(candidate) {
		return hasBarcode(candidate)
	}
	if (current.Price > 0) != (candidate.Price > 0) {
		return candidate.Price > 0
	}
	return g.cappedQuantity(candidate) >= g.cappedQuantity(current)
}

func hasBarcode(v domain.Variant) bool {
	return v.Barcode != ""
}

func (g *Grouper) cappedQuantity(v domain.Variant) int {
	if v.Quantity < 0 {
		return 0
	}
	if v.Quantity > g.opts.QuantityCap {
		return g.opts.QuantityCap
	}
	return v.Quantity
}

// tagSafeKey makes key survive a round trip through the comma separated tag list:
// commas become spaces and long keys are cut with a hash suffix that keeps them distinct
func tagSafeKey(key string) string {
	key = CollapseSpaces(strings.ReplaceAll(key, ",", " "))
	r := []rune(key)
	if len(r) <= maxFamilyKeyRunes {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return strings.TrimSpace(string(r[:maxFamilyKeyRunes-9])) + "~" + hex.EncodeToString(sum[:4])
}

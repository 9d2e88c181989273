package domain

// FeedItem is one <Product> entry of the supplier feed.
// It only lives for one parse pass and is discarded after grouping.
type FeedItem struct {
	Brand        string        `json:"brand"`
	MPN          string        `json:"mpn,omitempty"`
	ProductCode  string        `json:"productCode,omitempty"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"` // HTML
	MainCategory string        `json:"mainCategory,omitempty"`
	Category     string        `json:"category,omitempty"`
	Price        float64       `json:"price"`
	Tax          float64       `json:"tax"`
	Images       []string      `json:"images,omitempty"` // at most 5, http(s) only
	Variants     []FeedVariant `json:"variants"`
}

// FeedVariant is one <variant> entry of a feed item
type FeedVariant struct {
	Color    string  `json:"color"`
	Size     string  `json:"size"`
	SKU      string  `json:"sku"`
	Barcode  string  `json:"barcode"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"` // already falls back to the item price
}

// LogicalProduct is the merged representation of every feed row sharing a family key
type LogicalProduct struct {
	FamilyKey   string        `json:"familyKey"`
	Title       string        `json:"title"`
	Vendor      string        `json:"vendor"`
	ProductType string        `json:"productType"`
	Description string        `json:"description"`
	ModelCode   string        `json:"modelCode"`
	Series      string        `json:"series"`
	Finish      string        `json:"finish,omitempty"`
	Buckets     []ColorBucket `json:"buckets"`
	Tags        []string      `json:"tags"`
}

// ColorBucket holds the variants and images of one color of a logical product
type ColorBucket struct {
	Color    string    `json:"color"`
	Images   []string  `json:"images"`
	Variants []Variant `json:"variants"`
}

// Variant is a deduplicated sellable unit of a logical product
type Variant struct {
	Color    string  `json:"color"`
	Size     string  `json:"size"`
	Finish   string  `json:"finish,omitempty"` // only set when finish is declared as an option
	SKU      string  `json:"sku"`
	Barcode  string  `json:"barcode"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// AllVariants flattens the color buckets in bucket order
func (p *LogicalProduct) AllVariants() []Variant {
	var out []Variant
	for _, b := range p.Buckets {
		out = append(out, b.Variants...)
	}
	return out
}

// AllImages flattens the bucket images in bucket order
func (p *LogicalProduct) AllImages() []string {
	var out []string
	for _, b := range p.Buckets {
		out = append(out, b.Images...)
	}
	return out
}

// SellableStock is the total quantity of positively priced variants
func (p *LogicalProduct) SellableStock() int {
	total := 0
	for _, v := range p.AllVariants() {
		if v.Price > 0 && v.Quantity > 0 {
			total += v.Quantity
		}
	}
	return total
}

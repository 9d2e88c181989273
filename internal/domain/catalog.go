package domain

// Remote product status values
const (
	StatusActive = "active"
	StatusDraft  = "draft"
)

// RemoteProduct is a product as the storefront catalog reports it
type RemoteProduct struct {
	ID          int64           `json:"id,omitempty"`
	Handle      string          `json:"handle,omitempty"`
	Title       string          `json:"title"`
	BodyHTML    string          `json:"body_html"`
	Vendor      string          `json:"vendor"`
	ProductType string          `json:"product_type"`
	Tags        string          `json:"tags"`
	Status      string          `json:"status,omitempty"`
	Options     []RemoteOption  `json:"options,omitempty"`
	Variants    []RemoteVariant `json:"variants,omitempty"`
	Images      []RemoteImage   `json:"images,omitempty"`
}

// RemoteOption is one of the (at most three) declared product options
type RemoteOption struct {
	ID       int64    `json:"id,omitempty"`
	Name     string   `json:"name"`
	Position int      `json:"position,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// RemoteVariant is a variant as the storefront catalog reports it
type RemoteVariant struct {
	ID                  int64  `json:"id,omitempty"`
	ProductID           int64  `json:"product_id,omitempty"`
	Option1             string `json:"option1,omitempty"`
	Option2             string `json:"option2,omitempty"`
	Option3             string `json:"option3,omitempty"`
	Price               string `json:"price,omitempty"`
	SKU                 string `json:"sku,omitempty"`
	Barcode             string `json:"barcode,omitempty"`
	InventoryItemID     int64  `json:"inventory_item_id,omitempty"`
	InventoryQuantity   int    `json:"inventory_quantity,omitempty"` // read-only, set through inventory levels
	InventoryManagement string `json:"inventory_management,omitempty"`
	ImageID             *int64 `json:"image_id,omitempty"`
}

// RemoteImage is a product image. Alt carries the origin signature of images we uploaded
type RemoteImage struct {
	ID         int64   `json:"id,omitempty"`
	ProductID  int64   `json:"product_id,omitempty"`
	Src        string  `json:"src"`
	Alt        string  `json:"alt,omitempty"`
	Position   int     `json:"position,omitempty"`
	VariantIDs []int64 `json:"variant_ids,omitempty"`
}

// Location is a fulfillment location that holds inventory
type Location struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Metafield is a namespaced key/value attached to a product
type Metafield struct {
	ID        int64  `json:"id,omitempty"`
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Type      string `json:"type"`
}

// Publication is a sales channel a product can be published to
type Publication struct {
	ID   string `json:"id"` // GraphQL global id
	Name string `json:"name"`
}

// VariantCreateResult is the outcome of a variant create call.
// AlreadyExists reports the platform's duplicate-variant response, in which case Variant is nil.
type VariantCreateResult struct {
	Variant       *RemoteVariant
	AlreadyExists bool
}

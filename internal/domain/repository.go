package domain

import (
	"context"
	"time"
)

// FeedSource fetches and parses the supplier feed
type FeedSource interface {
	Fetch(ctx context.Context, url string) ([]FeedItem, error)
}

// CatalogClient defines the operations used against the remote storefront catalog.
// Patches passed to UpdateProduct and UpdateVariant are sent as-is and must carry the id.
type CatalogClient interface {
	ListLocations(ctx context.Context) ([]Location, error)
	ListProducts(ctx context.Context) ([]RemoteProduct, error)
	GetProduct(ctx context.Context, id int64) (*RemoteProduct, error)
	CreateProduct(ctx context.Context, product *RemoteProduct) (*RemoteProduct, error)
	UpdateProduct(ctx context.Context, id int64, patch map[string]interface{}) (*RemoteProduct, error)

	CreateVariant(ctx context.Context, productID int64, variant *RemoteVariant) (*VariantCreateResult, error)
	UpdateVariant(ctx context.Context, id int64, patch map[string]interface{}) (*RemoteVariant, error)
	DeleteVariant(ctx context.Context, productID, id int64) error

	SetInventoryLevel(ctx context.Context, inventoryItemID, locationID int64, available int) error

	CreateImage(ctx context.Context, productID int64, image *RemoteImage) (*RemoteImage, error)
	DeleteImage(ctx context.Context, productID, imageID int64) error

	ListMetafields(ctx context.Context, productID int64, namespace string) ([]Metafield, error)
	UpsertMetafield(ctx context.Context, productID int64, field *Metafield) error

	ListPublications(ctx context.Context) ([]Publication, error)
	Publish(ctx context.Context, productID int64, publicationID string) error
	SetPublished(ctx context.Context, productID int64) error
}

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// RunRepository persists run reports and per-product outcomes
type RunRepository interface {
	SaveRun(ctx context.Context, run *RunReport) error
	SaveOutcome(ctx context.Context, outcome *ProductOutcome) error
	ListRuns(ctx context.Context, limit int) ([]RunReport, error)
	ListOutcomes(ctx context.Context, runID string) ([]ProductOutcome, error)
}

// EventPublisher announces product outcomes to downstream consumers
type EventPublisher interface {
	Publish(ctx context.Context, outcome *ProductOutcome) error
	Close() error
}

package shopify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"

	"github.com/feedsync/backend/internal/domain"
)

const pageLimit = "250"

var nextLinkPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="?next"?`)

// ListLocations returns the shop's fulfillment locations
func (c *Client) ListLocations(ctx context.Context) ([]domain.Location, error) {
	var resp struct {
		Locations []domain.Location `json:"locations"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/locations.json", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Locations, nil
}

// ListProducts returns every product of the shop, following Link header pagination
func (c *Client) ListProducts(ctx context.Context) ([]domain.RemoteProduct, error) {
	var products []domain.RemoteProduct

	path := "/products.json"
	query := url.Values{"limit": {pageLimit}}
	for page := 1; path != ""; page++ {
		var resp struct {
			Products []domain.RemoteProduct `json:"products"`
		}
		header, err := c.do(ctx, http.MethodGet, path, query, nil, &resp)
		if err != nil {
			return nil, err
		}
		products = append(products, resp.Products...)
		if c.debug {
			log.Printf("[SHOPIFY] Product page %d: %d products", page, len(resp.Products))
		}

		// the next link carries its own query
		path, query = nextLink(header), nil
	}

	log.Printf("[SHOPIFY] Listed %d products", len(products))
	return products, nil
}

// nextLink extracts the rel="next" URL of a Link header
func nextLink(h http.Header) string {
	for _, link := range h.Values("Link") {
		if m := nextLinkPattern.FindStringSubmatch(link); m != nil {
			return m[1]
		}
	}
	return ""
}

// GetProduct returns one product with its variants and images
func (c *Client) GetProduct(ctx context.Context, id int64) (*domain.RemoteProduct, error) {
	var resp struct {
		Product domain.RemoteProduct `json:"product"`
	}
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d.json", id), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Product, nil
}

// CreateProduct creates a product with its options, seed variants and images
func (c *Client) CreateProduct(ctx context.Context, product *domain.RemoteProduct) (*domain.RemoteProduct, error) {
	req := map[string]interface{}{"product": product}
	var resp struct {
		Product domain.RemoteProduct `json:"product"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/products.json", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Product, nil
}

// UpdateProduct sends patch as the product body. Only the fields in patch change.
func (c *Client) UpdateProduct(ctx context.Context, id int64, patch map[string]interface{}) (*domain.RemoteProduct, error) {
	req := map[string]interface{}{"product": patch}
	var resp struct {
		Product domain.RemoteProduct `json:"product"`
	}
	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/products/%d.json", id), nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Product, nil
}

// CreateVariant adds a variant to a product. A duplicate-variant response is
// reported through the result instead of an error.
func (c *Client) CreateVariant(ctx context.Context, productID int64, variant *domain.RemoteVariant) (*domain.VariantCreateResult, error) {
	req := map[string]interface{}{"variant": variant}
	var resp struct {
		Variant domain.RemoteVariant `json:"variant"`
	}
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/products/%d/variants.json", productID), nil, req, &resp)
	if errors.Is(err, domain.ErrDuplicate) {
		log.Printf("[SHOPIFY] Variant %s/%s already exists on product %d", variant.Option1, variant.Option2, productID)
		return &domain.VariantCreateResult{AlreadyExists: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.VariantCreateResult{Variant: &resp.Variant}, nil
}

// UpdateVariant sends patch as the variant body. Only the fields in patch change.
func (c *Client) UpdateVariant(ctx context.Context, id int64, patch map[string]interface{}) (*domain.RemoteVariant, error) {
	req := map[string]interface{}{"variant": patch}
	var resp struct {
		Variant domain.RemoteVariant `json:"variant"`
	}
	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/variants/%d.json", id), nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Variant, nil
}

// DeleteVariant removes a variant from a product
func (c *Client) DeleteVariant(ctx context.Context, productID, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/products/%d/variants/%d.json", productID, id), nil, nil, nil)
	return err
}

// SetInventoryLevel sets the absolute available quantity of an inventory item at a location
func (c *Client) SetInventoryLevel(ctx context.Context, inventoryItemID, locationID int64, available int) error {
	req := map[string]interface{}{
		"location_id":       locationID,
		"inventory_item_id": inventoryItemID,
		"available":         available,
	}
	_, err := c.do(ctx, http.MethodPost, "/inventory_levels/set.json", nil, req, nil)
	return err
}

// CreateImage uploads an image by source URL
func (c *Client) CreateImage(ctx context.Context, productID int64, image *domain.RemoteImage) (*domain.RemoteImage, error) {
	req := map[string]interface{}{"image": image}
	var resp struct {
		Image domain.RemoteImage `json:"image"`
	}
	if _, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/products/%d/images.json", productID), nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Image, nil
}

// DeleteImage removes an image from a product
func (c *Client) DeleteImage(ctx context.Context, productID, imageID int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/products/%d/images/%d.json", productID, imageID), nil, nil, nil)
	return err
}

// ListMetafields returns the product metafields of one namespace
func (c *Client) ListMetafields(ctx context.Context, productID int64, namespace string) ([]domain.Metafield, error) {
	var resp struct {
		Metafields []domain.Metafield `json:"metafields"`
	}
	query := url.Values{"namespace": {namespace}}
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/products/%d/metafields.json", productID), query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Metafields, nil
}

// UpsertMetafield updates field when it has an id, otherwise creates it
func (c *Client) UpsertMetafield(ctx context.Context, productID int64, field *domain.Metafield) error {
	req := map[string]interface{}{"metafield": field}
	if field.ID != 0 {
		_, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/products/%d/metafields/%d.json", productID, field.ID), nil, req, nil)
		return err
	}
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/products/%d/metafields.json", productID), nil, req, nil)
	return err
}

// SetPublished marks the product as published through the REST product resource
func (c *Client) SetPublished(ctx context.Context, productID int64) error {
	req := map[string]interface{}{
		"product": map[string]interface{}{
			"id":        productID,
			"published": true,
		},
	}
	_, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/products/%d.json", productID), nil, req, nil)
	return err
}

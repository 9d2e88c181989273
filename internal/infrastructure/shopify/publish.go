package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/feedsync/backend/internal/domain"
	"github.com/tidwall/gjson"
)

const publicationsQuery = `query { publications(first: 25) { edges { node { id name } } } }`

const publishMutation = `mutation publish($id: ID!, $input: [PublicationInput!]!) {
  publishablePublish(id: $id, input: $input) {
    userErrors { field message }
  }
}`

// graphql runs a GraphQL Admin API document and returns the data object.
// Top-level errors become ErrUnauthorized for access problems, ErrCatalogAPI otherwise.
func (c *Client) graphql(ctx context.Context, query string, variables map[string]interface{}) (gjson.Result, error) {
	req := map[string]interface{}{"query": query}
	if len(variables) > 0 {
		req["variables"] = variables
	}

	var raw json.RawMessage
	if _, err := c.do(ctx, http.MethodPost, "/graphql.json", nil, req, &raw); err != nil {
		return gjson.Result{}, err
	}

	result := gjson.ParseBytes(raw)
	if errs := result.Get("errors"); errs.Exists() && len(errs.Array()) > 0 {
		first := errs.Array()[0]
		message := first.Get("message").String()
		code := first.Get("extensions.code").String()
		if code == "ACCESS_DENIED" || strings.Contains(strings.ToLower(message), "access denied") {
			return gjson.Result{}, fmt.Errorf("%w: %s", domain.ErrUnauthorized, message)
		}
		return gjson.Result{}, fmt.Errorf("%w: graphql: %s", domain.ErrCatalogAPI, message)
	}
	return result.Get("data"), nil
}

// ListPublications returns the sales channels of the shop
func (c *Client) ListPublications(ctx context.Context) ([]domain.Publication, error) {
	data, err := c.graphql(ctx, publicationsQuery, nil)
	if err != nil {
		return nil, err
	}

	var publications []domain.Publication
	data.Get("publications.edges.#.node").ForEach(func(_, node gjson.Result) bool {
		publications = append(publications, domain.Publication{
			ID:   node.Get("id").String(),
			Name: node.Get("name").String(),
		})
		return true
	})
	return publications, nil
}

// Publish makes the product visible on the given publication
func (c *Client) Publish(ctx context.Context, productID int64, publicationID string) error {
	data, err := c.graphql(ctx, publishMutation, map[string]interface{}{
		"id":    fmt.Sprintf("gid://shopify/Product/%d", productID),
		"input": []map[string]string{{"publicationId": publicationID}},
	})
	if err != nil {
		return err
	}

	if userErrors := data.Get("publishablePublish.userErrors").Array(); len(userErrors) > 0 {
		return fmt.Errorf("%w: publish product %d: %s", domain.ErrCatalogAPI, productID, userErrors[0].Get("message").String())
	}
	return nil
}

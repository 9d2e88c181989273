package feed

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/antchfx/xmlquery"
	"github.com/feedsync/backend/internal/domain"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxImages = 5

// Reader downloads and parses the supplier XML feed
type Reader struct {
	httpClient *http.Client
	debug      bool
}

// NewReader creates a new feed reader. Redirects are followed by the underlying client.
func NewReader(timeout time.Duration) *Reader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Reader{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetDebug enables or disables debug logging
func (r *Reader) SetDebug(enabled bool) {
	r.debug = enabled
}

// Fetch downloads the feed at url and parses it into feed items
func (r *Reader) Fetch(ctx context.Context, url string) ([]domain.FeedItem, error) {
	log.Printf("[FEED] Fetching feed from %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	req.Header.Set("User-Agent", "feedsync/1.0")
	req.Header.Set("Accept", "application/xml, text/xml")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if r.debug {
		log.Printf("[FEED] GET %s -> %d", url, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrFeedUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	items, err := Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	log.Printf("[FEED] Parsed %d products", len(items))
	return items, nil
}

// Parse reads a Products/Product document
func Parse(rd io.Reader) ([]domain.FeedItem, error) {
	doc, err := xmlquery.Parse(rd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFeedMalformed, err)
	}

	if xmlquery.FindOne(doc, "//Products") == nil && xmlquery.FindOne(doc, "//Product") == nil {
		return nil, fmt.Errorf("%w: no Products element", domain.ErrFeedMalformed)
	}

	nodes := xmlquery.Find(doc, "//Product")
	items := make([]domain.FeedItem, 0, len(nodes))
	for _, node := range nodes {
		items = append(items, parseItem(node))
	}
	return items, nil
}

func parseItem(node *xmlquery.Node) domain.FeedItem {
	item := domain.FeedItem{
		Brand:        childText(node, "Brand"),
		MPN:          childText(node, "Mpn"),
		ProductCode:  childText(node, "ProductCode"),
		Name:         childText(node, "Name"),
		Description:  childText(node, "Description"),
		MainCategory: childText(node, "mainCategory"),
		Category:     childText(node, "category"),
		Price:        ParseNumber(childText(node, "Price")),
		Tax:          ParseNumber(childText(node, "Tax")),
	}

	seen := make(map[string]bool)
	for i := 1; i <= maxImages; i++ {
		src := childText(node, fmt.Sprintf("Image%d", i))
		if !isHTTPURL(src) || seen[src] {
			continue
		}
		seen[src] = true
		item.Images = append(item.Images, src)
	}

	for _, vn := range xmlquery.Find(node, "variants/variant") {
		item.Variants = append(item.Variants, parseVariant(vn, item.Price))
	}
	return item
}

func parseVariant(node *xmlquery.Node, itemPrice float64) domain.FeedVariant {
	v := domain.FeedVariant{
		SKU:     childText(node, "productCode"),
		Barcode: childText(node, "barcode"),
	}
	if v.Barcode == "" {
		v.Barcode = v.SKU
	}

	v.Quantity = parseQuantity(childText(node, "quantity"))

	v.Price = ParseNumber(childText(node, "price"))
	if v.Price <= 0 {
		v.Price = itemPrice
	}

	for _, spec := range xmlquery.Find(node, "spec") {
		switch specRole(spec.SelectAttr("name")) {
		case roleColor:
			v.Color = textOf(spec)
		case roleSize:
			v.Size = textOf(spec)
		}
	}
	return v
}

// parseQuantity truncates a stock count to a whole number in [0, MaxInt32]
func parseQuantity(s string) int {
	qty := ParseNumber(s)
	switch {
	case qty <= 0:
		return 0
	case qty >= math.MaxInt32:
		return math.MaxInt32
	}
	return int(qty)
}

type role int

const (
	roleNone role = iota
	roleColor
	roleSize
)

// specRole maps a variant spec name to its role
func specRole(name string) role {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToUpper(strings.TrimSpace(name)))
	if err != nil {
		folded = strings.ToUpper(strings.TrimSpace(name))
	}
	switch folded {
	case "RENK", "COLOR", "COLOUR":
		return roleColor
	case "BEDEN", "SIZE", "NUMARA":
		return roleSize
	}
	return roleNone
}

// textOf returns the trimmed text of a node, unwrapping CDATA sections
func textOf(node *xmlquery.Node) string {
	if node == nil {
		return ""
	}
	return strings.TrimSpace(node.InnerText())
}

func childText(node *xmlquery.Node, name string) string {
	return textOf(node.SelectElement(name))
}

func isHTTPURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// ParseNumber coerces feed numbers to float64. Comma or dot decimal separators and
// thousands separators are accepted; anything unparsable yields 0.
func ParseNumber(s string) float64 {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// 1,234.56
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0
	}
	return n
}

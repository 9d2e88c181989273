package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"maps"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/feedsync/backend/internal/domain"
)

const (
	imageAltPrefix     = "feedsync:"
	metafieldNamespace = "feedsync"
	metafieldKey       = "image_signatures"
	inventoryManaged   = "shopify"
	onlineStoreChannel = "Online Store"

	// DefaultOptionValue fills empty size or finish option values
	DefaultOptionValue = "STD"
)

// OptionNames are the localized product option names
type OptionNames struct {
	Color  string
	Size   string
	Finish string
}

// ReconcilerOptions configures the reconciliation of logical products
type ReconcilerOptions struct {
	OptionNames     OptionNames
	OpenTag         string
	ClosedTag       string
	CleanupImages   bool
	CleanupVariants bool
	Publish         bool
}

// RunContext carries the remote state resolved once per run
type RunContext struct {
	LocationID    int64
	PublicationID string
	Index         map[string]int64 // family key -> remote product id
}

// Reconciler converges the remote catalog towards logical products
type Reconciler struct {
	catalog domain.CatalogClient
	opts    ReconcilerOptions
}

// NewReconciler creates a new reconciler
func NewReconciler(catalog domain.CatalogClient, opts ReconcilerOptions) *Reconciler {
	if opts.OptionNames.Color == "" {
		opts.OptionNames.Color = "Renk"
	}
	if opts.OptionNames.Size == "" {
		opts.OptionNames.Size = "Beden"
	}
	if opts.OptionNames.Finish == "" {
		opts.OptionNames.Finish = "Model"
	}
	if opts.OpenTag == "" {
		opts.OpenTag = "satis:acik"
	}
	if opts.ClosedTag == "" {
		opts.ClosedTag = "satis:kapali"
	}
	return &Reconciler{catalog: catalog, opts: opts}
}

// NewRunContext resolves the inventory location, the publication and the
// family-key index of existing remote products
func (r *Reconciler) NewRunContext(ctx context.Context) (*RunContext, error) {
	locations, err := r.catalog.ListLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}

	rc := &RunContext{Index: make(map[string]int64)}
	for _, loc := range locations {
		if loc.Active {
			rc.LocationID = loc.ID
			break
		}
	}
	if rc.LocationID == 0 && len(locations) > 0 {
		rc.LocationID = locations[0].ID
	}
	if rc.LocationID == 0 {
		log.Printf("[RECONCILE] No location found, inventory levels will not be set")
	}

	products, err := r.catalog.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	for _, p := range products {
		key := familyKeyFromTags(p.Tags)
		if key == "" {
			continue
		}
		if existing, ok := rc.Index[key]; ok {
			log.Printf("[RECONCILE] Products %d and %d share family %q, using %d", existing, p.ID, key, existing)
			continue
		}
		rc.Index[key] = p.ID
	}

	if r.opts.Publish {
		pubs, err := r.catalog.ListPublications(ctx)
		if err != nil {
			log.Printf("[RECONCILE] Publications unavailable, falling back to the published flag: %v", err)
		}
		for _, pub := range pubs {
			if rc.PublicationID == "" || pub.Name == onlineStoreChannel {
				rc.PublicationID = pub.ID
			}
		}
	}

	log.Printf("[RECONCILE] Run context ready: location %d, %d indexed products", rc.LocationID, len(rc.Index))
	return rc, nil
}

// familyKeyFromTags extracts the family key from a remote tag string
func familyKeyFromTags(tags string) string {
	for _, tag := range splitTags(tags) {
		if strings.HasPrefix(tag, TagFamilyPrefix) {
			return strings.TrimPrefix(tag, TagFamilyPrefix)
		}
	}
	return ""
}

// optionLayout is the ordered option declaration of a product
type optionLayout struct {
	names  []string
	finish bool
}

func (r *Reconciler) layout(variants []domain.Variant) optionLayout {
	l := optionLayout{names: []string{r.opts.OptionNames.Color, r.opts.OptionNames.Size}}
	for _, v := range variants {
		if v.Finish != "" {
			l.finish = true
			l.names = append(l.names, r.opts.OptionNames.Finish)
			break
		}
	}
	return l
}

// values returns option1..3 for a variant
func (l optionLayout) values(v domain.Variant) (string, string, string) {
	o3 := ""
	if l.finish {
		o3 = orDefault(v.Finish)
	}
	return orDefault(v.Color), orDefault(v.Size), o3
}

func orDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return DefaultOptionValue
	}
	return s
}

// Reconcile converges one logical product. The error is non-nil only when the
// product itself could not be created, loaded or updated; variant, image and
// status failures are counted on the outcome.
func (r *Reconciler) Reconcile(ctx context.Context, rc *RunContext, p *domain.LogicalProduct) (*domain.ProductOutcome, error) {
	outcome := &domain.ProductOutcome{
		FamilyKey: p.FamilyKey,
		Title:     p.Title,
		At:        time.Now().UTC(),
	}

	variants := p.AllVariants()
	if len(variants) == 0 {
		outcome.Action = domain.ActionSkipped
		outcome.Error = "no variants"
		log.Printf("[RECONCILE] skipped %q: no variants", p.Title)
		return outcome, nil
	}
	layout := r.layout(variants)

	remote, created, err := r.ensureShell(ctx, rc, p, layout, outcome)
	if err != nil {
		outcome.Action = domain.ActionFailed
		outcome.Error = truncate(err.Error(), maxErrorRunes)
		return outcome, err
	}
	outcome.ProductID = remote.ID

	byColor := r.reconcileVariants(ctx, rc, remote, p, layout, outcome)
	r.reconcileImages(ctx, remote, p, byColor, outcome)
	r.finalize(ctx, rc, remote, p, created, outcome)

	switch {
	case created:
		outcome.Action = domain.ActionCreated
	case outcome.Writes > 0:
		outcome.Action = domain.ActionUpdated
	default:
		outcome.Action = domain.ActionUnchanged
	}

	log.Printf("[RECONCILE] %s %q (product %d, variants: %d, +%d ~%d -%d, images: +%d -%d, failures: %d)",
		outcome.Action, p.Title, remote.ID, len(variants),
		outcome.VariantsCreated, outcome.VariantsUpdated, outcome.VariantsDeleted,
		outcome.ImagesCreated, outcome.ImagesDeleted, outcome.Failures)
	return outcome, nil
}

// ensureShell resolves the remote product through the run index, creating it when absent
func (r *Reconciler) ensureShell(ctx context.Context, rc *RunContext, p *domain.LogicalProduct, layout optionLayout, outcome *domain.ProductOutcome) (*domain.RemoteProduct, bool, error) {
	if id, ok := rc.Index[p.FamilyKey]; ok {
		remote, err := r.catalog.GetProduct(ctx, id)
		switch {
		case err == nil:
			return remote, false, r.updateShell(ctx, remote, p, layout, outcome)
		case errors.Is(err, domain.ErrNotFound):
			log.Printf("[RECONCILE] Product %d of family %q no longer exists, recreating", id, p.FamilyKey)
			delete(rc.Index, p.FamilyKey)
		default:
			return nil, false, fmt.Errorf("failed to load product %d: %w", id, err)
		}
	}

	remote, err := r.createShell(ctx, p, layout)
	if err != nil {
		return nil, false, err
	}
	outcome.Writes++
	rc.Index[p.FamilyKey] = remote.ID
	return remote, true, nil
}

func (r *Reconciler) createShell(ctx context.Context, p *domain.LogicalProduct, layout optionLayout) (*domain.RemoteProduct, error) {
	stock := p.SellableStock()

	options := make([]domain.RemoteOption, len(layout.names))
	for i, name := range layout.names {
		options[i] = domain.RemoteOption{Name: name}
	}

	product := &domain.RemoteProduct{
		Title:       p.Title,
		BodyHTML:    p.Description,
		Vendor:      p.Vendor,
		ProductType: p.ProductType,
		Tags:        formatTags(r.desiredTags("", p, stock)),
		Status:      r.status(stock),
		Options:     options,
		Variants:    []domain.RemoteVariant{*r.toRemoteVariant(seedVariant(p.AllVariants()), layout)},
	}
	if images := p.AllImages(); len(images) > 0 {
		sig := ImageSignature(images[0])
		product.Images = []domain.RemoteImage{{Src: images[0], Alt: imageAltPrefix + sig}}
	}

	created, err := r.catalog.CreateProduct(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return created, nil
}

// seedVariant picks the first sellable variant, else the first one
func seedVariant(variants []domain.Variant) domain.Variant {
	for _, v := range variants {
		if v.Price > 0 && v.Quantity > 0 {
			return v
		}
	}
	return variants[0]
}

// updateShell patches only the changed product-level fields
func (r *Reconciler) updateShell(ctx context.Context, remote *domain.RemoteProduct, p *domain.LogicalProduct, layout optionLayout, outcome *domain.ProductOutcome) error {
	patch := map[string]interface{}{"id": remote.ID}
	if remote.Title != p.Title {
		patch["title"] = p.Title
	}
	if p.Description != "" && strings.TrimSpace(remote.BodyHTML) != p.Description {
		patch["body_html"] = p.Description
	}
	if remote.Vendor != p.Vendor {
		patch["vendor"] = p.Vendor
	}
	if remote.ProductType != p.ProductType {
		patch["product_type"] = p.ProductType
	}
	if options := optionPatch(remote.Options, layout.names); options != nil {
		patch["options"] = options
	}
	if len(patch) == 1 {
		return nil
	}

	updated, err := r.catalog.UpdateProduct(ctx, remote.ID, patch)
	if err != nil {
		return fmt.Errorf("failed to update product %d: %w", remote.ID, err)
	}
	outcome.Writes++

	remote.Title = p.Title
	remote.Vendor = p.Vendor
	remote.ProductType = p.ProductType
	if _, ok := patch["body_html"]; ok {
		remote.BodyHTML = p.Description
	}
	if updated != nil && len(updated.Options) > 0 {
		remote.Options = updated.Options
	}
	return nil
}

// optionPatch renames declared options that carry the wrong name. A product
// declaring a different number of options is left alone.
func optionPatch(current []domain.RemoteOption, names []string) []map[string]interface{} {
	if len(current) != len(names) {
		if len(current) > 0 {
			log.Printf("[RECONCILE] Product declares %d options, expected %d; options left unchanged", len(current), len(names))
		}
		return nil
	}

	wrong := false
	for i, opt := range current {
		if opt.Name != names[i] {
			wrong = true
		}
	}
	if !wrong {
		return nil
	}

	out := make([]map[string]interface{}, len(current))
	for i, opt := range current {
		out[i] = map[string]interface{}{"id": opt.ID, "name": names[i]}
	}
	return out
}

// reconcileVariants matches, patches or creates every variant and sets its inventory.
// It returns the remote variants per folded bucket color.
func (r *Reconciler) reconcileVariants(ctx context.Context, rc *RunContext, remote *domain.RemoteProduct, p *domain.LogicalProduct, layout optionLayout, outcome *domain.ProductOutcome) map[string][]*domain.RemoteVariant {
	pool := make([]*domain.RemoteVariant, 0, len(remote.Variants))
	for i := range remote.Variants {
		pool = append(pool, &remote.Variants[i])
	}
	claimed := make(map[int64]bool)
	byColor := make(map[string][]*domain.RemoteVariant)

	for _, bucket := range p.Buckets {
		for _, v := range bucket.Variants {
			label := variantLabel(v)

			match := matchVariant(pool, claimed, v, layout)
			created := false
			if match == nil {
				var err error
				match, created, err = r.createVariant(ctx, remote.ID, v, layout, claimed, &pool)
				if err != nil {
					r.fail(outcome, "create variant "+label, err)
					continue
				}
			}
			claimed[match.ID] = true
			byColor[Fold(bucket.Color)] = append(byColor[Fold(bucket.Color)], match)

			if created {
				outcome.VariantsCreated++
				outcome.Writes++
			} else if err := r.patchVariant(ctx, match, v, layout, outcome); err != nil {
				r.fail(outcome, "update variant "+label, err)
			}

			if err := r.syncInventory(ctx, rc, match, v, outcome); err != nil {
				r.fail(outcome, "set inventory "+label, err)
			}
		}
	}

	if r.opts.CleanupVariants {
		r.deleteStaleVariants(ctx, remote.ID, pool, claimed, outcome)
	}
	return byColor
}

func variantLabel(v domain.Variant) string {
	label := v.Color + "/" + v.Size
	if v.Finish != "" {
		label += "/" + v.Finish
	}
	return label
}

// matchVariant finds an unclaimed remote variant by barcode, then SKU, then option values
func matchVariant(pool []*domain.RemoteVariant, claimed map[int64]bool, v domain.Variant, layout optionLayout) *domain.RemoteVariant {
	if v.Barcode != "" {
		for _, rv := range pool {
			if !claimed[rv.ID] && rv.Barcode == v.Barcode {
				return rv
			}
		}
	}
	if v.SKU != "" {
		for _, rv := range pool {
			if !claimed[rv.ID] && rv.SKU == v.SKU {
				return rv
			}
		}
	}
	for _, rv := range pool {
		if !claimed[rv.ID] && optionsMatch(rv, v, layout) {
			return rv
		}
	}
	return nil
}

func optionsMatch(rv *domain.RemoteVariant, v domain.Variant, layout optionLayout) bool {
	o1, o2, o3 := layout.values(v)
	if Fold(rv.Option1) != Fold(o1) || Fold(rv.Option2) != Fold(o2) {
		return false
	}
	return !layout.finish || Fold(rv.Option3) == Fold(o3)
}

// createVariant creates v. When the catalog reports that the variant already exists,
// the product is re-read and the option match is adopted instead; created is false then.
func (r *Reconciler) createVariant(ctx context.Context, productID int64, v domain.Variant, layout optionLayout, claimed map[int64]bool, pool *[]*domain.RemoteVariant) (*domain.RemoteVariant, bool, error) {
	result, err := r.catalog.CreateVariant(ctx, productID, r.toRemoteVariant(v, layout))
	if err != nil {
		return nil, false, err
	}
	if !result.AlreadyExists {
		*pool = append(*pool, result.Variant)
		return result.Variant, true, nil
	}

	fresh, err := r.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, false, fmt.Errorf("re-read after duplicate variant: %w", err)
	}
	for i := range fresh.Variants {
		rv := &fresh.Variants[i]
		if claimed[rv.ID] || !optionsMatch(rv, v, layout) {
			continue
		}
		log.Printf("[RECONCILE] Variant %s already existed on product %d, adopted %d", variantLabel(v), productID, rv.ID)
		*pool = append(*pool, rv)
		return rv, false, nil
	}
	return nil, false, fmt.Errorf("%w: variant %s reported as duplicate but not found", domain.ErrNotFound, variantLabel(v))
}

func (r *Reconciler) toRemoteVariant(v domain.Variant, layout optionLayout) *domain.RemoteVariant {
	o1, o2, o3 := layout.values(v)
	return &domain.RemoteVariant{
		Option1:             o1,
		Option2:             o2,
		Option3:             o3,
		Price:               FormatPrice(v.Price),
		SKU:                 v.SKU,
		Barcode:             v.Barcode,
		InventoryManagement: inventoryManaged,
	}
}

// variantPatch returns the changed fields among price and option values plus the id,
// or nil when nothing differs
func variantPatch(rv *domain.RemoteVariant, v domain.Variant, layout optionLayout) map[string]interface{} {
	o1, o2, o3 := layout.values(v)
	patch := make(map[string]interface{})
	if !samePrice(rv.Price, v.Price) {
		patch["price"] = FormatPrice(v.Price)
	}
	if rv.Option1 != o1 {
		patch["option1"] = o1
	}
	if rv.Option2 != o2 {
		patch["option2"] = o2
	}
	if layout.finish && rv.Option3 != o3 {
		patch["option3"] = o3
	}
	if len(patch) == 0 {
		return nil
	}
	patch["id"] = rv.ID
	return patch
}

func (r *Reconciler) patchVariant(ctx context.Context, rv *domain.RemoteVariant, v domain.Variant, layout optionLayout, outcome *domain.ProductOutcome) error {
	patch := variantPatch(rv, v, layout)
	if patch == nil {
		return nil
	}
	if _, err := r.catalog.UpdateVariant(ctx, rv.ID, patch); err != nil {
		return err
	}
	outcome.VariantsUpdated++
	outcome.Writes++

	rv.Price = FormatPrice(v.Price)
	rv.Option1, rv.Option2, rv.Option3 = layout.values(v)
	return nil
}

// syncInventory sets the available quantity when it differs from the remote one
func (r *Reconciler) syncInventory(ctx context.Context, rc *RunContext, rv *domain.RemoteVariant, v domain.Variant, outcome *domain.ProductOutcome) error {
	if rc.LocationID == 0 || rv.InventoryItemID == 0 {
		return nil
	}
	qty := v.Quantity
	if qty < 0 {
		qty = 0
	}
	if rv.InventoryQuantity == qty {
		return nil
	}
	if err := r.catalog.SetInventoryLevel(ctx, rv.InventoryItemID, rc.LocationID, qty); err != nil {
		return err
	}
	rv.InventoryQuantity = qty
	outcome.Writes++
	return nil
}

// deleteStaleVariants removes remote variants no feed variant matched, keeping at least one
func (r *Reconciler) deleteStaleVariants(ctx context.Context, productID int64, pool []*domain.RemoteVariant, claimed map[int64]bool, outcome *domain.ProductOutcome) {
	if len(claimed) == 0 {
		return
	}
	for _, rv := range pool {
		if claimed[rv.ID] {
			continue
		}
		if err := r.catalog.DeleteVariant(ctx, productID, rv.ID); err != nil {
			r.fail(outcome, fmt.Sprintf("delete variant %d", rv.ID), err)
			continue
		}
		outcome.VariantsDeleted++
		outcome.Writes++
	}
}

// reconcileImages uploads missing bucket images, optionally deletes images we
// uploaded that are no longer wanted, and links each color's primary image to
// the variants of that color. Uploaded images are recognized by their alt marker,
// or by the image id recorded in the signature metafield when the alt was edited.
func (r *Reconciler) reconcileImages(ctx context.Context, remote *domain.RemoteProduct, p *domain.LogicalProduct, byColor map[string][]*domain.RemoteVariant, outcome *domain.ProductOutcome) {
	record, recordErr := r.loadSignatures(ctx, remote.ID)
	if recordErr != nil {
		r.fail(outcome, "read image signatures", recordErr)
	}

	existing := make(map[string]*domain.RemoteImage)
	tracked := make(map[int64]string) // image id -> signature of images we uploaded
	byID := make(map[int64]*domain.RemoteImage)
	for i := range remote.Images {
		img := &remote.Images[i]
		byID[img.ID] = img
		if sig, ok := signatureOf(*img); ok {
			existing[sig] = img
			tracked[img.ID] = sig
		}
	}
	for sig, id := range record.ids {
		if _, ok := existing[sig]; ok {
			continue
		}
		img, ok := byID[id]
		if _, claimed := tracked[id]; !ok || claimed {
			continue
		}
		existing[sig] = img
		tracked[id] = sig
	}

	wanted := make(map[string]bool)
	uploaded := make(map[string]int64)
	for _, bucket := range p.Buckets {
		var primary int64
		for _, src := range bucket.Images {
			sig := ImageSignature(src)
			if wanted[sig] {
				continue
			}
			wanted[sig] = true

			img, ok := existing[sig]
			if !ok {
				created, err := r.catalog.CreateImage(ctx, remote.ID, &domain.RemoteImage{Src: src, Alt: imageAltPrefix + sig})
				if err != nil {
					r.fail(outcome, "upload image "+src, err)
					continue
				}
				existing[sig] = created
				img = created
				outcome.ImagesCreated++
				outcome.Writes++
			}
			uploaded[sig] = img.ID
			if primary == 0 {
				primary = img.ID
			}
		}
		if primary != 0 {
			r.assignImage(ctx, primary, byColor[Fold(bucket.Color)], outcome)
		}
	}

	if r.opts.CleanupImages {
		for _, img := range remote.Images {
			sig, ok := tracked[img.ID]
			if !ok || wanted[sig] {
				continue
			}
			if err := r.catalog.DeleteImage(ctx, remote.ID, img.ID); err != nil {
				r.fail(outcome, fmt.Sprintf("delete image %d", img.ID), err)
				continue
			}
			outcome.ImagesDeleted++
			outcome.Writes++
		}
	}

	if recordErr == nil {
		r.recordSignatures(ctx, remote.ID, record, uploaded, outcome)
	}
}

// signatureOf returns the origin signature smuggled in the alt text of images we uploaded.
// Unsigned images were added by hand and are never touched.
func signatureOf(img domain.RemoteImage) (string, bool) {
	if !strings.HasPrefix(img.Alt, imageAltPrefix) {
		return "", false
	}
	return strings.TrimPrefix(img.Alt, imageAltPrefix), true
}

func (r *Reconciler) assignImage(ctx context.Context, imageID int64, variants []*domain.RemoteVariant, outcome *domain.ProductOutcome) {
	for _, rv := range variants {
		if rv.ImageID != nil && *rv.ImageID == imageID {
			continue
		}
		patch := map[string]interface{}{"id": rv.ID, "image_id": imageID}
		if _, err := r.catalog.UpdateVariant(ctx, rv.ID, patch); err != nil {
			r.fail(outcome, fmt.Sprintf("assign image %d to variant %d", imageID, rv.ID), err)
			continue
		}
		id := imageID
		rv.ImageID = &id
		outcome.Writes++
	}
}

// signatureRecord is the image signature metafield of a product
type signatureRecord struct {
	field *domain.Metafield
	ids   map[string]int64 // signature -> image id
	valid bool
}

// loadSignatures reads the signature -> image id map kept in the product metafield
func (r *Reconciler) loadSignatures(ctx context.Context, productID int64) (signatureRecord, error) {
	fields, err := r.catalog.ListMetafields(ctx, productID, metafieldNamespace)
	if err != nil {
		return signatureRecord{}, err
	}

	for i := range fields {
		if fields[i].Key != metafieldKey {
			continue
		}
		record := signatureRecord{field: &fields[i]}
		if err := json.Unmarshal([]byte(fields[i].Value), &record.ids); err != nil {
			log.Printf("[RECONCILE] Ignoring unreadable image signatures of product %d: %v", productID, err)
			record.ids = nil
		} else {
			record.valid = true
		}
		return record, nil
	}
	return signatureRecord{}, nil
}

// recordSignatures stores the ids of the desired images when they changed
func (r *Reconciler) recordSignatures(ctx context.Context, productID int64, record signatureRecord, ids map[string]int64, outcome *domain.ProductOutcome) {
	if record.field == nil && len(ids) == 0 {
		return
	}
	if record.valid && maps.Equal(record.ids, ids) {
		return
	}

	value, err := json.Marshal(ids)
	if err != nil {
		r.fail(outcome, "encode image signatures", err)
		return
	}
	field := &domain.Metafield{
		Namespace: metafieldNamespace,
		Key:       metafieldKey,
		Value:     string(value),
		Type:      "json",
	}
	if record.field != nil {
		field.ID = record.field.ID
	}
	if err := r.catalog.UpsertMetafield(ctx, productID, field); err != nil {
		r.fail(outcome, "write image signatures", err)
		return
	}
	outcome.Writes++
}

// finalize sets status and availability tags from sellable stock and publishes
// products that just became active
func (r *Reconciler) finalize(ctx context.Context, rc *RunContext, remote *domain.RemoteProduct, p *domain.LogicalProduct, created bool, outcome *domain.ProductOutcome) {
	stock := p.SellableStock()
	status := r.status(stock)
	outcome.Status = status

	tags := r.desiredTags(remote.Tags, p, stock)
	becameActive := status == domain.StatusActive && (created || remote.Status != domain.StatusActive)

	patch := map[string]interface{}{"id": remote.ID}
	if !equalStrings(sortedTags(remote.Tags), tags) {
		patch["tags"] = formatTags(tags)
	}
	if remote.Status != status {
		patch["status"] = status
	}
	if len(patch) > 1 {
		if _, err := r.catalog.UpdateProduct(ctx, remote.ID, patch); err != nil {
			r.fail(outcome, "update status", err)
			return
		}
		outcome.Writes++
		remote.Status = status
		remote.Tags = formatTags(tags)
	}

	if r.opts.Publish && becameActive {
		r.publish(ctx, rc, remote.ID, outcome)
	}
}

func (r *Reconciler) publish(ctx context.Context, rc *RunContext, productID int64, outcome *domain.ProductOutcome) {
	if rc.PublicationID != "" {
		err := r.catalog.Publish(ctx, productID, rc.PublicationID)
		if err == nil {
			outcome.Writes++
			return
		}
		if !errors.Is(err, domain.ErrUnauthorized) {
			r.fail(outcome, "publish", err)
			return
		}
		log.Printf("[RECONCILE] Publishing product %d is not permitted, setting the published flag instead", productID)
	}
	if err := r.catalog.SetPublished(ctx, productID); err != nil {
		r.fail(outcome, "set published", err)
		return
	}
	outcome.Writes++
}

func (r *Reconciler) status(stock int) string {
	if stock > 0 {
		return domain.StatusActive
	}
	return domain.StatusDraft
}

// desiredTags keeps the remote tags we do not manage and sets ours,
// including exactly one availability tag
func (r *Reconciler) desiredTags(current string, p *domain.LogicalProduct, stock int) []string {
	seen := make(map[string]bool)
	var tags []string
	add := func(tag string) {
		if tag != "" && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	for _, tag := range splitTags(current) {
		if !r.managedTag(tag) {
			add(tag)
		}
	}
	for _, tag := range p.Tags {
		add(tag)
	}
	if stock > 0 {
		add(r.opts.OpenTag)
	} else {
		add(r.opts.ClosedTag)
	}

	sort.Strings(tags)
	return tags
}

func (r *Reconciler) managedTag(tag string) bool {
	switch {
	case tag == TagSource, tag == r.opts.OpenTag, tag == r.opts.ClosedTag:
		return true
	case strings.HasPrefix(tag, TagBrandPrefix),
		strings.HasPrefix(tag, TagFamilyPrefix),
		strings.HasPrefix(tag, TagCategoryPrefix):
		return true
	}
	return false
}

func splitTags(tags string) []string {
	var out []string
	for _, tag := range strings.Split(tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func sortedTags(tags string) []string {
	out := splitTags(tags)
	sort.Strings(out)
	return out
}

func formatTags(tags []string) string {
	return strings.Join(tags, ", ")
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// FormatPrice renders a price the way the catalog stores it
func FormatPrice(price float64) string {
	if price <= 0 || math.IsNaN(price) {
		return "0.00"
	}
	return strconv.FormatFloat(price, 'f', 2, 64)
}

func samePrice(remote string, want float64) bool {
	current, err := strconv.ParseFloat(strings.TrimSpace(remote), 64)
	if err != nil {
		return false
	}
	if want < 0 {
		want = 0
	}
	return math.Abs(current-want) < 0.005
}

func (r *Reconciler) fail(outcome *domain.ProductOutcome, what string, err error) {
	msg := truncate(fmt.Sprintf("%s: %v", what, err), maxErrorRunes)
	log.Printf("[RECONCILE] WARN %s: %s", outcome.FamilyKey, msg)
	outcome.Failures++
	if outcome.Error == "" {
		outcome.Error = msg
	}
}

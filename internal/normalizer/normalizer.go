package normalizer

import (
	"strings"
	"time"

	"github.com/BearBump/DelayBoard/internal/models"
)

// RawRecord is one decoded upstream order payload (JSON decoded with UseNumber).
type RawRecord = any

// extractor locates the order object inside one of the observed payload
// shapes. It reports false instead of failing so the next shape can be tried.
type extractor func(v any) (map[string]any, bool)

var orderExtractors = []extractor{
	plainOrder,
	dataWrappedOrder,
	firstOrderInList,
	firstOrderInWrappedList,
}

func looksLikeOrder(m map[string]any) bool {
	for _, k := range []string{"orderNumber", "agreedDeliveryDate", "lines"} {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func plainOrder(v any) (map[string]any, bool) {
	m, ok := object(v)
	if !ok || !looksLikeOrder(m) {
		return nil, false
	}
	return m, true
}

func dataWrappedOrder(v any) (map[string]any, bool) {
	m, ok := object(v)
	if !ok {
		return nil, false
	}
	return plainOrder(m["data"])
}

func firstOrderInList(v any) (map[string]any, bool) {
	for _, m := range objects(v) {
		if looksLikeOrder(m) {
			return m, true
		}
	}
	return nil, false
}

func firstOrderInWrappedList(v any) (map[string]any, bool) {
	m, ok := object(v)
	if !ok {
		return nil, false
	}
	for _, k := range []string{"content", "data"} {
		if o, ok := firstOrderInList(m[k]); ok {
			return o, true
		}
	}
	return nil, false
}

type lineExtractor func(order map[string]any) ([]map[string]any, bool)

var lineExtractors = []lineExtractor{
	func(o map[string]any) ([]map[string]any, bool) {
		_, isList := o["lines"].([]any)
		return objects(o["lines"]), isList
	},
	func(o map[string]any) ([]map[string]any, bool) {
		w, ok := object(o["lines"])
		if !ok {
			return nil, false
		}
		for _, k := range []string{"data", "items"} {
			if _, isList := w[k].([]any); isList {
				return objects(w[k]), true
			}
		}
		return nil, false
	},
}

type Normalizer struct {
	zone *time.Location
}

// New returns a normalizer that expresses every timestamp in zone.
func New(zone *time.Location) *Normalizer {
	if zone == nil {
		zone = time.UTC
	}
	return &Normalizer{zone: zone}
}

// Normalize turns one raw record into an Order. It reports false only when no
// deadline can be derived; every other defect degrades to a default value.
func (n *Normalizer) Normalize(raw RawRecord) (models.Order, bool) {
	var src map[string]any
	for _, ex := range orderExtractors {
		if m, ok := ex(raw); ok {
			src = m
			break
		}
	}
	if src == nil {
		return models.Order{}, false
	}

	deadlineMs, ok := integer(src, "agreedDeliveryDate")
	if !ok || deadlineMs <= 0 {
		return models.Order{}, false
	}

	packageID := str(src, "id")
	orderNumber := str(src, "orderNumber")

	o := models.Order{
		InternalID:      packageID + "_" + orderNumber,
		PackageID:       packageID,
		OrderNumber:     orderNumber,
		CustomerName:    strings.TrimSpace(str(src, "customerFirstName") + " " + str(src, "customerLastName")),
		Status:          models.OrderStatus(str(src, "status")),
		DeadlineAt:      time.UnixMilli(deadlineMs).In(n.zone),
		FastDelivery:    boolean(src, "fastDelivery"),
		InvoiceUploaded: str(src, "invoiceLink") != "",
		TrackingCode:    str(src, "cargoTrackingNumber"),
		Lines:           []models.LineItem{},
	}
	if ms, ok := integer(src, "orderDate"); ok && ms > 0 {
		o.OrderedAt = time.UnixMilli(ms).In(n.zone)
	}
	if micro, ok := optBool(src, "micro"); ok {
		o.Micro = &micro
	}

	var lines []map[string]any
	for _, ex := range lineExtractors {
		if l, ok := ex(src); ok {
			lines = l
			break
		}
	}
	barcodes := make([]string, 0, len(lines))
	codes := make([]string, 0, len(lines))
	for _, l := range lines {
		qty, _ := integer(l, "quantity")
		li := models.LineItem{
			Barcode:     str(l, "barcode"),
			ProductCode: str(l, "productCode"),
			ProductName: str(l, "productName"),
			Size:        str(l, "productSize"),
			Color:       str(l, "productColor"),
			Quantity:    int(qty),
		}
		o.Lines = append(o.Lines, li)
		barcodes = append(barcodes, li.Barcode)
		codes = append(codes, li.ProductCode)
	}
	o.Barcodes = joinNonEmpty(barcodes)
	o.ProductCodes = joinNonEmpty(codes)

	return o, true
}

// NormalizeBatch normalizes every record of one fetch. Records without a
// deadline and repeated internal ids are dropped; dropped reports how many.
func (n *Normalizer) NormalizeBatch(records []RawRecord) (orders []*models.Order, dropped int) {
	orders = make([]*models.Order, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		o, ok := n.Normalize(r)
		if !ok {
			dropped++
			continue
		}
		if _, dup := seen[o.InternalID]; dup {
			dropped++
			continue
		}
		seen[o.InternalID] = struct{}{}
		oc := o
		orders = append(orders, &oc)
	}
	return orders, dropped
}

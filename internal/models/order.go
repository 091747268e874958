package models

import "time"

// OrderStatus is the marketplace package status. Upstream values outside the
// tracked set are kept verbatim.
type OrderStatus string

const (
	OrderStatusCreated  OrderStatus = "Created"
	OrderStatusPicking  OrderStatus = "Picking"
	OrderStatusInvoiced OrderStatus = "Invoiced"
)

// TrackedStatuses are the statuses fetched on every refresh, in fetch order.
var TrackedStatuses = []OrderStatus{OrderStatusCreated, OrderStatusPicking, OrderStatusInvoiced}

type LineItem struct {
	Barcode     string `json:"barcode"`
	ProductCode string `json:"productCode"`
	ProductName string `json:"productName"`
	Size        string `json:"size"`
	Color       string `json:"color"`
	Quantity    int    `json:"quantity"`
}

type Order struct {
	// Row is the 1-based position of the order inside its delay bucket.
	Row int `json:"row"`

	InternalID   string      `json:"internalId"`
	PackageID    string      `json:"packageId"`
	OrderNumber  string      `json:"orderNumber"`
	CustomerName string      `json:"customerName"`
	Status       OrderStatus `json:"status"`

	OrderedAt  time.Time `json:"orderedAt"`
	DeadlineAt time.Time `json:"deadlineAt"`

	FastDelivery    bool  `json:"fastDelivery"`
	InvoiceUploaded bool  `json:"invoiceUploaded"`
	Micro           *bool `json:"micro"`

	Lines        []LineItem `json:"lines"`
	Barcodes     string     `json:"barcodes"`
	ProductCodes string     `json:"productCodes"`

	TrackingCode string `json:"trackingCode"`

	Delay Delay `json:"delay"`

	WarehouseCode string `json:"warehouseCode,omitempty"`
	ResolvedStore string `json:"resolvedStore"`
}

// IsOverdue reports whether the order has already been classified as overdue.
func (o *Order) IsOverdue() bool {
	return o.Delay.Bucket == BucketOverdue
}

// IsUninvoicedMicro reports a micro export order whose invoice is still missing.
func (o *Order) IsUninvoicedMicro() bool {
	return o.Micro != nil && *o.Micro && !o.InvoiceUploaded
}

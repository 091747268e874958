package warehouse

import "context"

// Client looks up the warehouse code holding a shipment. An empty code with a
// nil error means the service knows nothing about the identifier.
type Client interface {
	WarehouseCode(ctx context.Context, trackerCode string) (string, error)
}

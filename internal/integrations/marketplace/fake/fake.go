package fake

import (
	"context"
	"sync"
	"time"

	"github.com/BearBump/DelayBoard/internal/integrations/marketplace"
	"github.com/BearBump/DelayBoard/internal/normalizer"
	"github.com/brianvoe/gofakeit/v6"
)

var products = []string{"Tişört", "Sweatshirt", "Eşofman Altı", "Şort", "Gömlek", "Mont", "Elbise", "Kot Pantolon"}
var sizes = []string{"XS", "S", "M", "L", "XL", "XXL"}

// FakeClient serves generated orders offline. Every status gets one page of
// PerStatus orders; later pages are empty. Deadlines spread from two days
// overdue to three days ahead so every bucket gets populated.
type FakeClient struct {
	mu        sync.Mutex
	faker     *gofakeit.Faker
	now       func() time.Time
	PerStatus int
}

func New(seed int64) *FakeClient {
	return &FakeClient{
		faker:     gofakeit.New(seed),
		now:       time.Now,
		PerStatus: 25,
	}
}

func (f *FakeClient) ListPage(ctx context.Context, q marketplace.PageQuery) ([]normalizer.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Page > 0 {
		return []normalizer.RawRecord{}, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	out := make([]normalizer.RawRecord, 0, f.PerStatus)
	for i := 0; i < f.PerStatus; i++ {
		out = append(out, f.order(now, string(q.Status)))
	}
	return out, nil
}

func (f *FakeClient) order(now time.Time, status string) map[string]any {
	fk := f.faker
	ordered := now.Add(-time.Duration(fk.Number(1, 72*60)) * time.Minute)
	agreed := now.Add(time.Duration(fk.Number(-48*60, 72*60)) * time.Minute)

	n := fk.Number(1, 3)
	lines := make([]any, 0, n)
	for j := 0; j < n; j++ {
		lines = append(lines, map[string]any{
			"barcode":      fk.Numerify("868#########"),
			"productCode":  int64(fk.Number(100000, 999999)),
			"productName":  fk.RandomString(products),
			"productSize":  fk.RandomString(sizes),
			"productColor": fk.Color(),
			"quantity":     int64(fk.Number(1, 3)),
		})
	}

	rec := map[string]any{
		"id":                  int64(fk.Number(1_000_000_000, 2_000_000_000)),
		"orderNumber":         fk.Numerify("10#########"),
		"customerFirstName":   fk.FirstName(),
		"customerLastName":    fk.LastName(),
		"status":              status,
		"orderDate":           ordered.UnixMilli(),
		"agreedDeliveryDate":  agreed.UnixMilli(),
		"fastDelivery":        fk.Number(0, 4) == 0,
		"micro":               fk.Number(0, 5) == 0,
		"cargoTrackingNumber": fk.Numerify("7330#########"),
		"lines":               lines,
	}
	if status == "Invoiced" || fk.Bool() {
		rec["invoiceLink"] = "https://invoices.example/" + fk.Numerify("########") + ".pdf"
	}
	return rec
}

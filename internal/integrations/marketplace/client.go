package marketplace

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/DelayBoard/internal/models"
	"github.com/BearBump/DelayBoard/internal/normalizer"
)

const (
	DefaultPageSize = 200
	DefaultWindow   = 14 * 24 * time.Hour
	// DefaultMaxPages guards against an upstream that never returns an empty page.
	DefaultMaxPages = 500
)

type PageQuery struct {
	Status models.OrderStatus
	Page   int
	Size   int
	Start  time.Time
	End    time.Time
}

// Lister returns one page of raw order records for one seller account.
type Lister interface {
	ListPage(ctx context.Context, q PageQuery) ([]normalizer.RawRecord, error)
}

type ListerFunc func(ctx context.Context, q PageQuery) ([]normalizer.RawRecord, error)

func (f ListerFunc) ListPage(ctx context.Context, q PageQuery) ([]normalizer.RawRecord, error) {
	return f(ctx, q)
}

type StatusFailure struct {
	Status models.OrderStatus
	Page   int
	Err    error
}

func (f StatusFailure) Error() string {
	return fmt.Sprintf("status %s page %d: %v", f.Status, f.Page, f.Err)
}

type FetchResult struct {
	Records  []normalizer.RawRecord
	Pages    int
	Statuses int
	Failures []StatusFailure
}

// AllFailed reports that every status failed before yielding a single record.
func (r FetchResult) AllFailed() bool {
	return r.Statuses > 0 && len(r.Failures) >= r.Statuses && len(r.Records) == 0
}

type FetchOptions struct {
	Statuses []models.OrderStatus
	PageSize int
	Window   time.Duration
	MaxPages int
	Now      time.Time
}

// FetchAll pages through every status until an empty page. A failing page
// aborts that status only: pages already read are kept and the failure is
// reported in the result.
func FetchAll(ctx context.Context, l Lister, opts FetchOptions) FetchResult {
	if opts.Statuses == nil {
		opts.Statuses = models.TrackedStatuses
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	res := FetchResult{
		Records:  []normalizer.RawRecord{},
		Statuses: len(opts.Statuses),
	}
	start := opts.Now.Add(-opts.Window)

	for _, status := range opts.Statuses {
		for page := 0; ; page++ {
			if page >= opts.MaxPages {
				res.Failures = append(res.Failures, StatusFailure{
					Status: status, Page: page, Err: fmt.Errorf("page limit %d reached", opts.MaxPages),
				})
				break
			}
			recs, err := l.ListPage(ctx, PageQuery{
				Status: status,
				Page:   page,
				Size:   opts.PageSize,
				Start:  start,
				End:    opts.Now,
			})
			if err != nil {
				slog.Warn("list orders page", "status", string(status), "page", page, "error", err.Error())
				res.Failures = append(res.Failures, StatusFailure{Status: status, Page: page, Err: err})
				break
			}
			if len(recs) == 0 {
				break
			}
			res.Pages++
			res.Records = append(res.Records, recs...)
		}
	}
	return res
}

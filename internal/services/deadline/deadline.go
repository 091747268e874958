package deadline

import (
	"fmt"
	"time"

	"github.com/BearBump/DelayBoard/internal/models"
)

// DefaultOffsetHours is the marketplace operating timezone (Türkiye, UTC+3).
const DefaultOffsetHours = 3

type threshold struct {
	upTo   time.Duration
	bucket models.Bucket
}

// Upper bounds are inclusive: exactly 2h remaining is still "within 2h".
var thresholds = []threshold{
	{0, models.BucketOverdue},
	{2 * time.Hour, models.BucketWithin2h},
	{4 * time.Hour, models.BucketWithin4h},
	{6 * time.Hour, models.BucketWithin6h},
	{12 * time.Hour, models.BucketWithin12h},
	{24 * time.Hour, models.BucketWithin24h},
}

// OperatingZone builds the fixed zone every deadline and reference time is
// expressed in.
func OperatingZone(offsetHours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*int(time.Hour/time.Second))
}

// Clock captures reference times and converts upstream epoch timestamps into
// the operating zone. Both go through the same zone, exactly once.
type Clock struct {
	zone *time.Location
	now  func() time.Time
}

func NewClock(zone *time.Location, now func() time.Time) *Clock {
	if zone == nil {
		zone = OperatingZone(DefaultOffsetHours)
	}
	if now == nil {
		now = time.Now
	}
	return &Clock{zone: zone, now: now}
}

func (c *Clock) Zone() *time.Location { return c.zone }

// Now is read once per refresh and shared by every order of the batch.
func (c *Clock) Now() time.Time { return c.now().In(c.zone) }

func (c *Clock) FromUnixMilli(ms int64) time.Time { return time.UnixMilli(ms).In(c.zone) }

// Classify buckets a deadline against the reference time.
func Classify(deadlineAt, now time.Time) models.Delay {
	remaining := deadlineAt.Sub(now)
	for _, t := range thresholds {
		if remaining <= t.upTo {
			d := models.Delay{Bucket: t.bucket, Remaining: remaining}
			if t.bucket == models.BucketOverdue {
				d.Detail = FormatElapsed(-remaining)
			} else {
				d.Detail = FormatRemaining(remaining)
			}
			return d
		}
	}
	return models.Delay{
		Bucket:    models.BucketAmple,
		Remaining: remaining,
		Detail:    FormatRemaining(remaining),
	}
}

// ClassifyAll sets the delay of every order against the same reference time.
func ClassifyAll(orders []*models.Order, now time.Time) {
	for _, o := range orders {
		o.Delay = Classify(o.DeadlineAt, now)
	}
}

// FormatElapsed renders an overdue duration as days, hours and minutes.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	mins := int64(d / time.Minute)
	return fmt.Sprintf("%d Gün %d Saat %d Dakika", mins/(24*60), (mins/60)%24, mins%60)
}

// FormatRemaining renders a remaining duration as hours and minutes.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	mins := int64(d / time.Minute)
	return fmt.Sprintf("%d Saat %d Dakika", mins/60, mins%60)
}

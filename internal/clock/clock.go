package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock is injected wherever TTLs, receipt years or due dates are computed.
type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return System{} }),
)

// Lagos is the wall-clock zone schools operate in. Receipt years and due
// dates are computed here rather than in UTC.
var Lagos = loadLagos()

func loadLagos() *time.Location {
	loc, err := time.LoadLocation("Africa/Lagos")
	if err != nil {
		return time.FixedZone("WAT", 60*60)
	}
	return loc
}

// Date truncates t to midnight in the Lagos zone.
func Date(t time.Time) time.Time {
	local := t.In(Lagos)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, Lagos)
}

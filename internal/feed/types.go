package feed

import (
	"context"
	"math/rand"
	"time"

	"github.com/marketwire/quotefeed/pkg/models"
)

// for deterministic testing
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// for deterministic values
type Rand interface {
	Float64() float64
}

// Sink receives every generated quote. The simulator is the sole writer in
// the system; everything downstream hangs off whichever sink it is given.
type Sink interface {
	Publish(ctx context.Context, q models.Quote) error
}

type RealClock struct{}

func (RealClock) Now() time.Time        { return time.Now() }
func (RealClock) Sleep(d time.Duration) { time.Sleep(d) }

type RealRand struct{ *rand.Rand }

func (r RealRand) Float64() float64 { return r.Rand.Float64() }

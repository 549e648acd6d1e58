package feed

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/marketwire/quotefeed/pkg/models"
)

// Simulator produces one synthetic quote per tracked symbol every interval,
// with bid and ask drawn independently from a bounded uniform range. A real
// exchange adapter would replace this loop wholesale.
type Simulator struct {
	logger   *zap.Logger
	sink     Sink
	symbols  []string
	interval time.Duration
	priceMin float64
	priceMax float64
	rand     Rand
	clock    Clock
	seq      map[string]int64
}

func NewSimulator(
	logger *zap.Logger,
	sink Sink,
	symbols []string,
	interval time.Duration,
	priceMin, priceMax float64,
	rnd Rand,
	clock Clock,
) *Simulator {
	return &Simulator{
		logger:   logger,
		sink:     sink,
		symbols:  symbols,
		interval: interval,
		priceMin: priceMin,
		priceMax: priceMax,
		rand:     rnd,
		clock:    clock,
		seq:      make(map[string]int64),
	}
}

// Run generates quotes until ctx is cancelled. Shutdown joins this loop by
// cancelling the context and waiting for Run to return.
func (s *Simulator) Run(ctx context.Context) {
	s.logger.Info("Feed simulator started",
		zap.Strings("symbols", s.symbols),
		zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Feed simulator stopped")
			return
		default:
			for _, symbol := range s.symbols {
				s.seq[symbol]++
				q := models.Quote{
					Symbol:    symbol,
					Bid:       s.price(),
					Ask:       s.price(),
					Timestamp: s.clock.Now().UnixMicro(),
					SeqID:     s.seq[symbol],
				}

				if err := s.sink.Publish(ctx, q); err != nil {
					s.logger.Error("Quote publish error", zap.String("symbol", symbol), zap.Error(err))
				} else {
					s.logger.Debug("Generated quote",
						zap.String("symbol", symbol),
						zap.Float64("bid", q.Bid),
						zap.Float64("ask", q.Ask),
						zap.Int64("seq_id", q.SeqID))
				}
			}

			s.clock.Sleep(s.interval)
		}
	}
}

// price draws a uniform value in [priceMin, priceMax) rounded to cents.
func (s *Simulator) price() float64 {
	p := s.priceMin + s.rand.Float64()*(s.priceMax-s.priceMin)
	return math.Round(p*100) / 100
}

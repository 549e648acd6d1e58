package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/marketwire/quotefeed/internal/store"
	"github.com/marketwire/quotefeed/pkg/models"
)

// KafkaReader abstracts the input stream
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Pipeline consumes quote messages from Kafka and writes them into the
// quote store through a pool of workers sharded by symbol, so per-symbol
// order is preserved while symbols proceed in parallel.
type Pipeline struct {
	logger     *zap.Logger
	store      store.QuoteStore
	reader     KafkaReader
	numWorkers int
}

func NewPipeline(logger *zap.Logger, st store.QuoteStore, reader KafkaReader, numWorkers int) *Pipeline {
	return &Pipeline{
		logger:     logger,
		store:      st,
		reader:     reader,
		numWorkers: numWorkers,
	}
}

func (p *Pipeline) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, p.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < p.numWorkers; i++ {
		workerChans[i] = make(chan []byte, 100)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.logger.Info("Ingest pipeline started", zap.Int("workers", p.numWorkers))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				p.logger.Error("Kafka read error", zap.Error(err))
				continue
			}

			// Deterministic sharding: same symbol always goes to same worker
			workerID := shardFor(m.Key, p.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				// Channel full: latest beats complete for live quotes.
				p.logger.Warn("Dropping slow quote", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping ingest...")

	// The reader goroutine may hold a message it is about to shard; the
	// channels stay open until it has exited.
	<-readerDone
	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (p *Pipeline) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	// Background context so an in-flight store write is not cancelled mid-pipeline
	ctx := context.Background()

	// Per-worker dedup state, valid because sharding is deterministic
	lastSeq := make(map[string]int64)

	for payload := range msgs {
		var q models.Quote
		if err := json.Unmarshal(payload, &q); err != nil {
			p.logger.Error("JSON unmarshal error", zap.Error(err))
			continue
		}

		if q.SeqID <= lastSeq[q.Symbol] {
			p.logger.Debug("Skipping duplicate quote", zap.String("symbol", q.Symbol), zap.Int64("seq_id", q.SeqID))
			continue
		}

		if err := p.store.Put(ctx, q); err != nil {
			p.logger.Error("Store write error", zap.Error(err), zap.String("symbol", q.Symbol))
		} else {
			p.logger.Debug("Ingested", zap.String("symbol", q.Symbol), zap.Int("worker_id", id), zap.Int64("seq_id", q.SeqID))
			lastSeq[q.Symbol] = q.SeqID
		}
	}
}

func shardFor(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32()) % numWorkers
}

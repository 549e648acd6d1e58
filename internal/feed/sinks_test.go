package feed_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/marketwire/quotefeed/internal/feed"
	"github.com/marketwire/quotefeed/internal/testutil"
	"github.com/marketwire/quotefeed/pkg/models"
)

func TestKafkaSink_KeysBySymbol(t *testing.T) {
	writer := &testutil.MockKafkaWriter{}
	sink := feed.KafkaSink{Writer: writer}

	q := models.Quote{Symbol: "AAPL", Bid: 150.25, Ask: 150.75, Timestamp: 1, SeqID: 42}
	if err := sink.Publish(context.Background(), q); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	writer.Mu.Lock()
	defer writer.Mu.Unlock()

	if len(writer.Messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(writer.Messages))
	}
	if string(writer.Messages[0].Key) != "AAPL" {
		t.Errorf("Expected key AAPL, got %s", writer.Messages[0].Key)
	}

	var got models.Quote
	if err := json.Unmarshal(writer.Messages[0].Value, &got); err != nil {
		t.Fatalf("Message value is not valid JSON: %v", err)
	}
	if got != q {
		t.Errorf("Round-tripped quote %+v, want %+v", got, q)
	}
}

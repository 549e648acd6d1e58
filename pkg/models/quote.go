package models

import "time"

// Quote represents a single bid/ask snapshot for a symbol.
// Bid and ask are generated independently by the simulator and may cross.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp int64   `json:"timestamp"` // unix micro
	SeqID     int64   `json:"seq_id"`    // monotonic counter per symbol
}

// Time converts the wire timestamp back to a time.Time.
func (q Quote) Time() time.Time {
	return time.UnixMicro(q.Timestamp)
}

package channel

import "time"

// Message is the unit of data carried on a channel: a monotonic sequence
// number (unique and increasing across the whole registry, not just within
// one channel), a UUID, the UTF-8 payload, and the producer's timestamp.
type Message struct {
	Seq       uint64
	ID        string
	Payload   string
	Timestamp time.Time
}

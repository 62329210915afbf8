package digest

import "fmt"

// Failure records one subscription that could not complete its digest
// this cycle. The subscription stays due and is retried next cycle.
type Failure struct {
	SubscriptionID string
	Stage          string // list, send, mark_sent, reschedule
	Err            error
}

func (f Failure) String() string {
	return fmt.Sprintf("subscription %s failed at %s: %v", f.SubscriptionID, f.Stage, f.Err)
}

// Report aggregates the outcome of one digest cycle. It exists for
// observability; nothing in the pipeline branches on it.
type Report struct {
	Processed      int
	DigestsSent    int
	DigestsDropped int
	EmptyDigests   int
	EventsIncluded int
	Failures       []Failure
}

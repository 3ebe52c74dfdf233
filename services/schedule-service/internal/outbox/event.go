package outbox

// Event is an outbox row before insert. The Kafka topic is EventType and the
// message key is AggregateID, so one owner's events stay ordered on one partition.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Record is a stored, not yet published event.
type Record struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
}

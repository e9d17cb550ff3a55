package enums

// OutboxAggregateType identifies the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregateCheckoutAttempt OutboxAggregateType = "checkout_attempt"
)

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderConfirmed     OutboxEventType = "order_confirmed"
	EventOrderCancelled     OutboxEventType = "order_cancelled"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventCheckoutSettled    OutboxEventType = "checkout_settled"
	EventCheckoutFailed     OutboxEventType = "checkout_failed"
)

// eventAggregates fixes the aggregate each event type belongs to.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventOrderCreated:       AggregateOrder,
	EventOrderConfirmed:     AggregateOrder,
	EventOrderCancelled:     AggregateOrder,
	EventOrderStatusChanged: AggregateOrder,
	EventCheckoutSettled:    AggregateCheckoutAttempt,
	EventCheckoutFailed:     AggregateCheckoutAttempt,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e is emitted for, or "" when e is unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder || a == AggregateCheckoutAttempt
}

// OutboxEventTypes lists every known event type.
func OutboxEventTypes() []OutboxEventType {
	out := make([]OutboxEventType, 0, len(eventAggregates))
	for e := range eventAggregates {
		out = append(out, e)
	}
	return out
}

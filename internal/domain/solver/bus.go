package solver

import "github.com/matiasleandrokruk/tutora/internal/infra/eventbus"

// BusObserver publishes solver events on the in-memory event bus.
type BusObserver struct {
	bus eventbus.EventBus
}

// NewBusObserver returns an Observer publishing Attempt and Outcome payloads.
func NewBusObserver(bus eventbus.EventBus) *BusObserver {
	return &BusObserver{bus: bus}
}

func (b *BusObserver) ObserveAttempt(a Attempt) {
	b.bus.Publish(eventbus.TopicSolverAttempt, a)
}

func (b *BusObserver) ObserveOutcome(o Outcome) {
	b.bus.Publish(eventbus.TopicSolverOutcome, o)
}

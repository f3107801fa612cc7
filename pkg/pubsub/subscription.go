package pubsub

// Subscription is one subscriber's ordered stream of payloads.
type Subscription struct {
	id    string
	topic string
	ch    chan interface{}
	done  chan struct{}
	reg   *Registry
}

func (s *Subscription) ID() string { return s.id }

// C delivers payloads in publish order. It is closed when the subscription
// ends.
func (s *Subscription) C() <-chan interface{} { return s.ch }

// Close deregisters the subscription. Further calls are no-ops.
func (s *Subscription) Close() {
	s.reg.remove(s)
}

package events

// Envelope pairs an event name with its payload for channel consumers.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Stream bridges the registry to channel consumers (the SSE endpoint).
// Messages are dropped when a reader falls behind.
func (r *Registry) Stream(eventTypes []string, buffer int) (<-chan Envelope, func()) {
	if buffer < 1 {
		buffer = 64
	}
	ch := make(chan Envelope, buffer)

	unsubs := make([]func(), 0, len(eventTypes))
	for _, eventType := range eventTypes {
		et := eventType
		unsubs = append(unsubs, r.Subscribe(et, func(payload any) {
			select {
			case ch <- Envelope{Event: et, Payload: payload}:
			default:
				// drop slow consumer
			}
		}))
	}

	return ch, func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

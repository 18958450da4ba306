package notify

type Broadcaster interface {
	Broadcast(evt Event)
}

// Fanout delivers each event to every sink in order.
type Fanout []Broadcaster

func (f Fanout) Broadcast(evt Event) {
	for _, b := range f {
		if b != nil {
			b.Broadcast(evt)
		}
	}
}

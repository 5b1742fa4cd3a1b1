package localcart

import "sync"

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventItemAdded       EventKind = "item_added"
	EventQuantityUpdated EventKind = "quantity_updated"
	EventItemRemoved     EventKind = "item_removed"
	EventReplaced        EventKind = "replaced"
	EventCleared         EventKind = "cleared"
	EventTaken           EventKind = "taken"
)

// Event carries the collection as it stands after a mutation.
type Event struct {
	Kind      EventKind
	SessionID string
	Items     []Item
	Count     int
}

// Listener receives change notifications. Listeners run synchronously on the
// mutating goroutine and must not call back into the Store.
type Listener func(Event)

type subscribers struct {
	mu     sync.RWMutex
	nextID int
	byID   map[int]Listener
	order  []int
}

func (s *subscribers) add(listener Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byID == nil {
		s.byID = map[int]Listener{}
	}
	id := s.nextID
	s.nextID++
	s.byID[id] = listener
	s.order = append(s.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *subscribers) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	for i, candidate := range s.order {
		if candidate == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *subscribers) snapshot() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Listener, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *subscribers) notify(event Event) {
	for _, listener := range s.snapshot() {
		listener(event)
	}
}

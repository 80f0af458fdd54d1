package finance

// ChangeKind says what happened to the working set.
type ChangeKind int

const (
	Added ChangeKind = iota + 1
	Updated
	Removed
	Reloaded
	Cleared
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	case Reloaded:
		return "reloaded"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Entity names the collection a Change applies to.
type Entity string

const (
	EntityTransaction Entity = "transaction"
	EntityCategory    Entity = "category"
)

// Change describes one mutation of the working set. Entity and ID are empty
// for Reloaded and Cleared, which replace both collections.
type Change struct {
	Kind   ChangeKind
	Entity Entity
	ID     int64
}

type listener struct {
	id int
	fn func(Change)
}

// Subscribe registers fn to be called after every change, on the goroutine
// that made it. The returned function removes the subscription.
func (s *Service) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.nextListener++
	id := s.nextListener
	s.listeners = append(s.listeners, listener{id: id, fn: fn})

	return func() {
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Service) notify(c Change) {
	for _, l := range s.listeners {
		l.fn(c)
	}
}

package topicsync

// listeners is an ordered list of callbacks. Removing one while the list is
// being notified is allowed; the removal takes effect on the next notify.
type listeners[F any] struct {
	nextID  uint64
	entries []listenerEntry[F]
}

type listenerEntry[F any] struct {
	id uint64
	fn F
}

// add registers fn and returns a function that unregisters it.
func (l *listeners[F]) add(fn F) func() {
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, listenerEntry[F]{id: id, fn: fn})
	return func() {
		for i, e := range l.entries {
			if e.id == id {
				l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
				return
			}
		}
	}
}

// each calls visit for every callback registered when each was called.
func (l *listeners[F]) each(visit func(F)) {
	snapshot := l.entries
	for _, e := range snapshot {
		visit(e.fn)
	}
}

func (l *listeners[F]) len() int {
	return len(l.entries)
}

// Package topicsync is the client-side consistency engine of the topicsync
// protocol.
//
// State lives in named, typed topics. Every mutation is a Change: an atomic,
// serializable and invertible edit of exactly one topic. Local mutations are
// grouped into actions by StateManager.Record, applied speculatively (the
// preview) so the caller sees the result immediately, and later reconciled
// against the authoritative updates echoed by the server:
//
//	m := topicsync.NewStateManager(
//		topicsync.WithActionProduced(func(changes []topicsync.Change, actionID string) {
//			// ship the action to the server
//		}),
//	)
//	t, _ := m.AddSubscription("room/title", topicsync.KindString)
//	title := t.(*topicsync.StringTopic)
//
//	err := m.Record(func() error {
//		if err := title.Set("hello"); err != nil {
//			return err
//		}
//		return title.Insert(5, " world")
//	})
//
// When the server confirms the action with the same change ids the preview is
// simply dropped. Any other update, or a reject, rolls the preview back in
// reverse order before the authoritative change is applied.
//
// # Threading
//
// A StateManager is not safe for concurrent use. All calls, including those
// made by topic listeners, must happen on one goroutine. pkg/client provides
// an event loop that serializes inbound messages and user work for this
// purpose.
package topicsync

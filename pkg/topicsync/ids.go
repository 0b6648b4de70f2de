package topicsync

import (
	"strconv"
	"sync/atomic"
)

// IDAllocator hands out change and action ids unique to one client.
//
// Ids have the form "<clientID>-<n>" with n increasing monotonically. The
// client id is assigned by the server during the handshake; until then it is
// "0". Safe for concurrent use.
type IDAllocator struct {
	clientID atomic.Pointer[string]
	counter  atomic.Uint64
}

// NewIDAllocator returns an allocator using the placeholder client id.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{}
}

// SetClientID sets the prefix of subsequently allocated ids.
func (a *IDAllocator) SetClientID(id string) {
	a.clientID.Store(&id)
}

// ClientID returns the current prefix.
func (a *IDAllocator) ClientID() string {
	if p := a.clientID.Load(); p != nil {
		return *p
	}
	return "0"
}

// Next returns a fresh id.
func (a *IDAllocator) Next() string {
	n := a.counter.Add(1)
	return a.ClientID() + "-" + strconv.FormatUint(n, 10)
}

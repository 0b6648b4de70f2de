// Package client connects a topicsync StateManager to a server over a
// WebSocket.
//
// A Client owns one StateManager. The StateManager is not safe for concurrent
// use, so the Client runs every call to it on a single event loop goroutine:
// inbound messages from the server and work submitted with Do, Dispatch or
// Record. Topic values must only be read and changed on that loop.
//
// Basic usage:
//
//	c, err := client.Dial(ctx, "ws://localhost:8765/ws")
//	if err != nil {
//	    return err
//	}
//	go c.Run(ctx)
//
//	doc, err := client.SubscribeAs[*topicsync.StringTopic](ctx, c, "doc", topicsync.KindString)
//	if err != nil {
//	    return err
//	}
//	err = c.Record(ctx, func() error {
//	    return doc.Insert(0, "hello ")
//	})
//
// Listeners registered on topics run on the event loop and may change other
// topics directly; they must not call Do or Record, which would wait on the
// loop they are running on.
package client

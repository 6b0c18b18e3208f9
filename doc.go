// Package pusher implements the connection lifecycle of a Pusher realtime
// client: WebSocket transport, event framing, keepalive ping/pong, a
// two-layer Transport+Connection state machine with reconnect/backoff,
// channel multiplexing, and Pusher error-code handling.
//
// A minimal client:
//
//	c := pusher.NewClient(pusher.Config{Key: "app-key"})
//	c.Connect()
//	defer c.Disconnect()
//
//	ch, err := c.Subscribe("my-channel")
//	if err != nil {
//		log.Fatal(err)
//	}
//	ch.Bind("my-event", pusher.NewFuncListener(func(ev pusher.Event) {
//		fmt.Println(ev.Name, string(ev.Data))
//	}))
//
// Private and presence channel authentication, HTTP long-polling fallback,
// and binary WebSocket frames are out of scope.
package pusher

// Package chatrelay provides a WebSocket chat relay for Go.
//
// Clients connect over a duplex channel, register an identity, and send
// messages. Messages are not broadcast directly: each one is submitted to an
// external delivery service, which later calls back with a status. A
// delivered message is broadcast to the room; a failed one is reported only
// to its sender. Joins and departures are announced to everyone.
//
// Key features:
//   - One registry of live connections keyed by identity, with eviction on
//     re-registration
//   - Non-blocking submissions with tracking of unconfirmed messages
//   - JSON Schema validation of every inbound frame and confirmation
//   - Optional HMAC-SHA256 signing of the submission and confirmation calls
//   - Memory and Redis backends for pending confirmations
//   - A delivery-service simulator for local runs
//
// Quick start:
//
//	r, err := chatrelay.New(
//	    chatrelay.WithStore(memory.New()),
//	    chatrelay.WithDeliveryURL("https://delivery.example.com/api/v1/message/proxy"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r.Start(ctx)
//	defer r.Stop(ctx)
//
//	http.ListenAndServe(":8080", r.Handler())
package chatrelay

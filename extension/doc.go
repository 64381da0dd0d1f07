// Package extension provides the Forge extension for mounting the chat relay.
//
// The extension integrates the relay into a Forge application by:
//   - Building the relay from YAML or programmatic configuration
//   - Sourcing relay metrics from the application's metrics system
//   - Mounting the socket, confirmation and stats routes under a
//     configurable prefix
//   - Starting the pending-confirmation sweep on application start
//   - Gracefully stopping the relay on application shutdown
//   - Providing health checks via store.Ping
//
// Usage:
//
//	ext := extension.New(
//	    extension.WithStore(memory.New()),
//	    extension.WithMetricFactory(fapp.Metrics()),
//	    extension.WithConfig(extension.Config{
//	        Config:   chatrelay.Config{DeliveryURL: "https://delivery.example/api/v1/message/proxy"},
//	        BasePath: "/chat",
//	    }),
//	)
//	if err := ext.Init(ctx); err != nil { ... }
//	if err := ext.RegisterRoutes(fapp.Router()); err != nil { ... }
package extension

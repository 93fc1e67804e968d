// ABOUTME: High-level Resonate client library API
// ABOUTME: Player is the entry point most hosts embed directly
// Package resonate provides the high-level Player API for the synchronized
// network audio player client: endpoint-driven transport selection,
// auto-reconnect, clock synchronization, and decode/playout scheduling.
//
// For lower-level control, see the internal session, supervisor,
// timefilter, and scheduler packages this Player wires together.
//
// Example:
//
//	player, err := resonate.NewPlayer(resonate.PlayerConfig{
//	    Endpoint: endpoint.Endpoint{
//	        ID:   "living-room",
//	        Name: "Living Room",
//	        Local: &endpoint.LocalAddress{Host: "192.168.1.20", Port: 8927, Path: "/ws"},
//	    },
//	    PlayerName: "Kitchen Speaker",
//	    OnStateChange: func(s resonate.PlayerState) { log.Printf("state: %+v", s) },
//	})
//	player.Connect(ctx)
//	defer player.Close()
package resonate

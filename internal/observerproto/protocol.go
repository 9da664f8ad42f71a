// Package observerproto holds the wire types of the read-only spectator
// stream. It is versioned separately from the player protocol.
package observerproto

import "grovecraft.io/internal/protocol"

const Version = "0.1"

const TypeSubscribe = "SUBSCRIBE"

// SubscribeMsg is the first message on a spectator connection. Radius is
// clamped to the world's spawn radius.
type SubscribeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Radius          float64 `json:"radius,omitempty"`
}

// BootstrapResponse is returned by GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string               `json:"protocol_version"`
	WorldID         string               `json:"world_id"`
	Tick            uint64               `json:"tick"`
	Params          protocol.WorldParams `json:"params"`
	Participants    int                  `json:"participants"`
	Observers       int                  `json:"observers"`
}

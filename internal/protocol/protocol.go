package protocol

import (
	"encoding/json"
	"time"
)

const Version = "1.0"

// Message types.
const (
	// Session lifecycle.
	TypeJoin         = "JOIN"
	TypeAccept       = "ACCEPT"
	TypeReject       = "REJECT"
	TypeLeave        = "LEAVE"
	TypePlayerJoined = "PLAYER_JOINED"
	TypePlayerLeft   = "PLAYER_LEFT"
	TypeHeartbeat    = "HEARTBEAT"
	TypeHeartbeatAck = "HEARTBEAT_ACK"

	// Player state.
	TypePlayerMove  = "PLAYER_MOVE"
	TypePlayerState = "PLAYER_STATE"
	TypeConsume     = "CONSUME"
	TypeInventory   = "INVENTORY"

	// World mutation.
	TypeAttack            = "ATTACK"
	TypePickup            = "PICKUP"
	TypePlant             = "PLANT"
	TypeResourceCreated   = "RESOURCE_CREATED"
	TypeResourceDamaged   = "RESOURCE_DAMAGED"
	TypeResourceDestroyed = "RESOURCE_DESTROYED"
	TypeItemDropped       = "ITEM_DROPPED"
	TypeItemRemoved       = "ITEM_REMOVED"
	TypePlanted           = "PLANTED"
	TypePlantTransformed  = "PLANT_TRANSFORMED"
	TypeWeather           = "WEATHER"
	TypeActionRejected    = "ACTION_REJECTED"

	// Snapshots.
	TypeWorldSnapshot = "WORLD_SNAPSHOT"
	TypeRegionRequest = "REGION_REQUEST"

	// Latency probes.
	TypePing = "PING"
	TypePong = "PONG"
)

// ServerSenderID is the sender id stamped on every server-originated message.
const ServerSenderID = "server"

// Envelope is the common header of every message on the wire.
type Envelope struct {
	Type            string `json:"type" jsonschema:"required,minLength=1"`
	ProtocolVersion string `json:"protocol_version" jsonschema:"required"`
	SenderID        string `json:"sender_id,omitempty"`
	TS              int64  `json:"ts"`
}

func (e Envelope) Header() Envelope { return e }

// Message is implemented by every typed message via the embedded Envelope.
type Message interface {
	Header() Envelope
}

// NewEnvelope stamps a header with the current wall clock.
func NewEnvelope(typ, sender string) Envelope {
	return Envelope{
		Type:            typ,
		ProtocolVersion: Version,
		SenderID:        sender,
		TS:              NowMillis(),
	}
}

func NowMillis() int64 { return time.Now().UnixMilli() }

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

func IsSupportedVersion(v string) bool {
	return v == Version
}

// IsClientType reports whether typ may be sent by a client.
func IsClientType(typ string) bool {
	_, ok := clientTypes[typ]
	return ok
}

package protocol

// Records shared by several messages. Each one carries the full state of its
// entity so a message never depends on an earlier one.

type ResourceRecord struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Health float64 `json:"health"`
	Exists bool    `json:"exists"`
}

type ItemRecord struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Count     int     `json:"count"`
	Collected bool    `json:"collected,omitempty"`
}

type PlantedRecord struct {
	ID             string  `json:"id"`
	Kind           string  `json:"kind"`
	GrowsInto      string  `json:"grows_into"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	RemainingTicks int     `json:"remaining_ticks"`
	Occupied       bool    `json:"occupied"`
}

type PlayerRecord struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Facing    float64 `json:"facing"`
	Moving    bool    `json:"moving"`
	Health    float64 `json:"health"`
	Hunger    float64 `json:"hunger"`
	RTTMillis int64   `json:"rtt_ms"`
}

type RespawnRecord struct {
	TargetID       string  `json:"target_id"`
	Category       string  `json:"category"`
	Kind           string  `json:"kind"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	RemainingTicks int     `json:"remaining_ticks"`
}

type WeatherZone struct {
	ID             string  `json:"id"`
	Kind           string  `json:"kind"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Radius         float64 `json:"radius"`
	RemainingTicks int     `json:"remaining_ticks"`
}

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type WorldParams struct {
	Seed          int64   `json:"seed"`
	TickRateHz    int     `json:"tick_rate_hz"`
	TileSize      int     `json:"tile_size"`
	SpawnRadius   float64 `json:"spawn_radius"`
	ActionRange   float64 `json:"action_range"`
	SpawnX        float64 `json:"spawn_x"`
	SpawnY        float64 `json:"spawn_y"`
	HeartbeatMS   int64   `json:"heartbeat_ms"`
	ClientTimeout int64   `json:"client_timeout_ms"`
}

// Snapshot is the bounded-radius view of the world sent inside ACCEPT and in
// reply to REGION_REQUEST.
type Snapshot struct {
	CenterX   float64          `json:"center_x"`
	CenterY   float64          `json:"center_y"`
	Radius    float64          `json:"radius"`
	Tick      uint64           `json:"tick"`
	Resources []ResourceRecord `json:"resources"`
	Items     []ItemRecord     `json:"items"`
	Planted   []PlantedRecord  `json:"planted"`
	Players   []PlayerRecord   `json:"players"`
	Cleared   []string         `json:"cleared"`
	Weather   []WeatherZone    `json:"weather"`
}

// JOIN (client -> server)
type JoinMsg struct {
	Envelope
	Name string `json:"name" jsonschema:"required,minLength=1,maxLength=32"`
}

// ACCEPT (server -> client)
type AcceptMsg struct {
	Envelope
	PlayerID        string          `json:"player_id"`
	SessionID       string          `json:"session_id"`
	Params          WorldParams     `json:"world_params"`
	Snapshot        Snapshot        `json:"snapshot"`
	PendingRespawns []RespawnRecord `json:"pending_respawns"`
	Inventory       []ItemStack     `json:"inventory"`
}

// REJECT (server -> client), followed by close.
type RejectMsg struct {
	Envelope
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// LEAVE (client -> server)
type LeaveMsg struct {
	Envelope
}

type PlayerJoinedMsg struct {
	Envelope
	Player PlayerRecord `json:"player"`
}

type PlayerLeftMsg struct {
	Envelope
	PlayerID string `json:"player_id"`
	Reason   string `json:"reason,omitempty"`
}

// HEARTBEAT (client -> server)
type HeartbeatMsg struct {
	Envelope
}

type HeartbeatAckMsg struct {
	Envelope
	ServerTime int64 `json:"server_time"`
	ClientTime int64 `json:"client_time"`
}

// PLAYER_MOVE (client -> server)
type PlayerMoveMsg struct {
	Envelope
	X      float64 `json:"x" jsonschema:"required"`
	Y      float64 `json:"y" jsonschema:"required"`
	Facing float64 `json:"facing"`
	Moving bool    `json:"moving"`
}

type PlayerStateMsg struct {
	Envelope
	Player PlayerRecord `json:"player"`
}

// CONSUME (client -> server)
type ConsumeMsg struct {
	Envelope
	Item string `json:"item" jsonschema:"required,minLength=1"`
}

// INVENTORY (server -> originator)
type InventoryMsg struct {
	Envelope
	PlayerID string      `json:"player_id"`
	Items    []ItemStack `json:"items"`
}

// ATTACK (client -> server). X/Y is where the client believes the target is.
type AttackMsg struct {
	Envelope
	TargetID string  `json:"target_id" jsonschema:"required,minLength=1,maxLength=64"`
	X        float64 `json:"x" jsonschema:"required"`
	Y        float64 `json:"y" jsonschema:"required"`
}

// PICKUP (client -> server)
type PickupMsg struct {
	Envelope
	ItemID string `json:"item_id" jsonschema:"required,minLength=1,maxLength=64"`
}

// PLANT (client -> server)
type PlantMsg struct {
	Envelope
	Item string  `json:"item" jsonschema:"required,minLength=1"`
	X    float64 `json:"x" jsonschema:"required"`
	Y    float64 `json:"y" jsonschema:"required"`
}

// RESOURCE_CREATED causes.
const (
	CauseMaterialized = "materialized"
	CauseRespawned    = "respawned"
)

type ResourceCreatedMsg struct {
	Envelope
	Resource ResourceRecord `json:"resource"`
	// Cause is CauseMaterialized or CauseRespawned.
	Cause string `json:"cause"`
}

type ResourceDamagedMsg struct {
	Envelope
	Resource ResourceRecord `json:"resource"`
	By       string         `json:"by"`
}

type ResourceDestroyedMsg struct {
	Envelope
	Resource ResourceRecord `json:"resource"`
	By       string         `json:"by"`
	Respawn  *RespawnRecord `json:"respawn,omitempty"`
}

type ItemDroppedMsg struct {
	Envelope
	Item ItemRecord `json:"item"`
}

type ItemRemovedMsg struct {
	Envelope
	ItemID string `json:"item_id"`
	By     string `json:"by"`
}

type PlantedMsg struct {
	Envelope
	Planted PlantedRecord `json:"planted"`
	By      string        `json:"by"`
}

type PlantTransformedMsg struct {
	Envelope
	PlantedID string         `json:"planted_id"`
	Resource  ResourceRecord `json:"resource"`
}

type WeatherMsg struct {
	Envelope
	Zones []WeatherZone `json:"zones"`
}

// ACTION_REJECTED (server -> originator)
type ActionRejectedMsg struct {
	Envelope
	Action   string `json:"action"`
	TargetID string `json:"target_id,omitempty"`
	Code     string `json:"code"`
	Reason   string `json:"reason"`
}

type WorldSnapshotMsg struct {
	Envelope
	Snapshot Snapshot `json:"snapshot"`
}

// REGION_REQUEST (client -> server)
type RegionRequestMsg struct {
	Envelope
	X      float64 `json:"x" jsonschema:"required"`
	Y      float64 `json:"y" jsonschema:"required"`
	Radius float64 `json:"radius" jsonschema:"required,minimum=0"`
}

// PING (server -> client)
type PingMsg struct {
	Envelope
	Nonce      uint64 `json:"nonce"`
	ServerTime int64  `json:"server_time"`
}

// PONG (client -> server)
type PongMsg struct {
	Envelope
	Nonce      uint64 `json:"nonce"`
	ServerTime int64  `json:"server_time" jsonschema:"required,minimum=0"`
}

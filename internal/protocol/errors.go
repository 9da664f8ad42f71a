package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"
	ErrServerFull      = "E_SERVER_FULL"

	// Action validation.
	ErrOutOfRange    = "E_OUT_OF_RANGE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrOccupied      = "E_OCCUPIED"

	// Session.
	ErrRateLimit = "E_RATE_LIMIT"
	ErrTimeout   = "E_TIMEOUT"
	ErrInternal  = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrServerFull:      {},
	ErrOutOfRange:      {},
	ErrInvalidTarget:   {},
	ErrNoResource:      {},
	ErrOccupied:        {},
	ErrRateLimit:       {},
	ErrTimeout:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

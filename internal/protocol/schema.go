package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	schemagen "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxMessageBytes bounds every inbound frame.
const MaxMessageBytes = 64 << 10

var (
	ErrUnknownType = errors.New("protocol: unknown message type")
	ErrSchema      = errors.New("protocol: schema violation")
	ErrVersion     = errors.New("protocol: unsupported version")
	ErrTooLarge    = errors.New("protocol: message too large")
)

// clientTypes maps every client -> server type to a constructor of its struct.
var clientTypes = map[string]func() Message{
	TypeJoin:          func() Message { return &JoinMsg{} },
	TypeLeave:         func() Message { return &LeaveMsg{} },
	TypeHeartbeat:     func() Message { return &HeartbeatMsg{} },
	TypePlayerMove:    func() Message { return &PlayerMoveMsg{} },
	TypeConsume:       func() Message { return &ConsumeMsg{} },
	TypeAttack:        func() Message { return &AttackMsg{} },
	TypePickup:        func() Message { return &PickupMsg{} },
	TypePlant:         func() Message { return &PlantMsg{} },
	TypeRegionRequest: func() Message { return &RegionRequestMsg{} },
	TypePong:          func() Message { return &PongMsg{} },
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

// Schemas returns the compiled inbound schema for every client message type.
func Schemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		schemas, schemasErr = compileSchemas()
	})
	return schemas, schemasErr
}

// SchemaDocument reflects the JSON schema of a client message type.
func SchemaDocument(typ string) ([]byte, error) {
	ctor, ok := clientTypes[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	r := schemagen.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		AllowAdditionalProperties:  true,
	}
	s := r.ReflectFromType(reflect.TypeOf(ctor()).Elem())
	if s == nil {
		return nil, fmt.Errorf("reflect schema for %s", typ)
	}
	s.Version = ""
	s.Title = typ
	return json.Marshal(s)
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	out := make(map[string]*jsonschema.Schema, len(clientTypes))
	for typ := range clientTypes {
		doc, err := SchemaDocument(typ)
		if err != nil {
			return nil, err
		}
		url := "mem://grovecraft/" + typ + ".schema.json"
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", typ, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", typ, err)
		}
		out[typ] = s
	}
	return out, nil
}

// Decode routes a raw client frame by type, validates it against the schema of
// that type and unmarshals it into the typed message.
func Decode(raw []byte) (Message, error) {
	if len(raw) > MaxMessageBytes {
		return nil, ErrTooLarge
	}
	base, err := DecodeBase(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	ctor, ok := clientTypes[base.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
	if !IsSupportedVersion(base.ProtocolVersion) {
		return nil, fmt.Errorf("%w: %q", ErrVersion, base.ProtocolVersion)
	}
	all, err := Schemas()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := all[base.Type].Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	m := ctor()
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return m, nil
}

// Encode marshals any outbound message.
func Encode(m any) ([]byte, error) {
	return json.Marshal(m)
}

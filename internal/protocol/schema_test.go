package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestSchemas_CompileEveryClientType(t *testing.T) {
	all, err := Schemas()
	if err != nil {
		t.Fatalf("Schemas: %v", err)
	}
	for typ := range clientTypes {
		if all[typ] == nil {
			t.Fatalf("missing schema for %s", typ)
		}
	}
}

func TestDecode_Valid(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`{"type":"JOIN","protocol_version":"1.0","ts":1,"name":"alice"}`, TypeJoin},
		{`{"type":"PLAYER_MOVE","protocol_version":"1.0","x":10.5,"y":-3,"facing":1.2,"moving":true}`, TypePlayerMove},
		{`{"type":"ATTACK","protocol_version":"1.0","target_id":"r-100-200","x":100,"y":200}`, TypeAttack},
		{`{"type":"PICKUP","protocol_version":"1.0","item_id":"i-7"}`, TypePickup},
		{`{"type":"PLANT","protocol_version":"1.0","item":"APPLE_SEED","x":64,"y":64}`, TypePlant},
		{`{"type":"REGION_REQUEST","protocol_version":"1.0","x":0,"y":0,"radius":256}`, TypeRegionRequest},
		{`{"type":"PONG","protocol_version":"1.0","nonce":3,"server_time":1700000000000}`, TypePong},
		{`{"type":"HEARTBEAT","protocol_version":"1.0","extra":"ignored"}`, TypeHeartbeat},
	}
	for _, c := range cases {
		m, err := Decode([]byte(c.raw))
		if err != nil {
			t.Fatalf("Decode(%s): %v", c.raw, err)
		}
		if got := m.Header().Type; got != c.want {
			t.Fatalf("type: got %q want %q", got, c.want)
		}
	}

	m, err := Decode([]byte(`{"type":"ATTACK","protocol_version":"1.0","target_id":"r-100-200","x":100,"y":200}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	a, ok := m.(*AttackMsg)
	if !ok {
		t.Fatalf("expected *AttackMsg, got %T", m)
	}
	if a.TargetID != "r-100-200" || a.X != 100 || a.Y != 200 {
		t.Fatalf("unexpected attack: %+v", a)
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `{"type":`, ErrSchema},
		{"unknown type", `{"type":"FLY","protocol_version":"1.0"}`, ErrUnknownType},
		{"server type", `{"type":"ACCEPT","protocol_version":"1.0"}`, ErrUnknownType},
		{"version", `{"type":"JOIN","protocol_version":"0.9","name":"a"}`, ErrVersion},
		{"missing name", `{"type":"JOIN","protocol_version":"1.0"}`, ErrSchema},
		{"empty name", `{"type":"JOIN","protocol_version":"1.0","name":""}`, ErrSchema},
		{"missing target", `{"type":"ATTACK","protocol_version":"1.0","x":1,"y":2}`, ErrSchema},
		{"wrong type", `{"type":"PLAYER_MOVE","protocol_version":"1.0","x":"far","y":2}`, ErrSchema},
		{"negative radius", `{"type":"REGION_REQUEST","protocol_version":"1.0","x":0,"y":0,"radius":-1}`, ErrSchema},
	}
	for _, c := range cases {
		if _, err := Decode([]byte(c.raw)); !errors.Is(err, c.want) {
			t.Fatalf("%s: got %v want %v", c.name, err, c.want)
		}
	}
}

func TestDecode_TooLarge(t *testing.T) {
	raw := `{"type":"JOIN","protocol_version":"1.0","name":"` + strings.Repeat("a", MaxMessageBytes) + `"}`
	if _, err := Decode([]byte(raw)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestNewEnvelope(t *testing.T) {
	e := NewEnvelope(TypePing, ServerSenderID)
	if e.Type != TypePing || e.ProtocolVersion != Version || e.SenderID != ServerSenderID {
		t.Fatalf("unexpected envelope: %+v", e)
	}
	if e.TS <= 0 {
		t.Fatalf("expected timestamp")
	}
	if !IsClientType(TypeAttack) || IsClientType(TypeResourceCreated) {
		t.Fatalf("client type table mismatch")
	}
}

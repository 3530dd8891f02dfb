package network

import (
	"encoding/json"
	"fmt"
	"sort"

	reflectschema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// clientPayloads lists the payload type of every client message that carries data.
var clientPayloads = map[string]any{
	MsgTypeChat:             ChatPayload{},
	MsgTypePosition:         PositionPayload{},
	MsgTypeInventoryMove:    InventoryMovePayload{},
	MsgTypeInventoryLoot:    InventoryLootPayload{},
	MsgTypeInventoryDrop:    InventoryDropPayload{},
	MsgTypeInventoryRotate:  InventoryRotatePayload{},
	MsgTypeInventoryConsume: InventoryConsumePayload{},
	MsgTypeInteractBegin:    InteractPayload{},
	MsgTypeInteractEnd:      InteractPayload{},
}

// Validator checks client payloads against JSON schemas generated from the
// payload types.
type Validator struct {
	raw      map[string][]byte
	compiled map[string]*jsonschema.Schema
}

// NewValidator reflects and compiles a schema for every client payload.
func NewValidator() (*Validator, error) {
	reflector := reflectschema.Reflector{
		Anonymous:                  true,
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	v := &Validator{
		raw:      make(map[string][]byte, len(clientPayloads)),
		compiled: make(map[string]*jsonschema.Schema, len(clientPayloads)),
	}
	for msgType, payload := range clientPayloads {
		s := reflector.Reflect(payload)
		s.Title = msgType
		data, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("marshal %s schema: %w", msgType, err)
		}
		compiled, err := jsonschema.CompileString(msgType+".schema.json", string(data))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", msgType, err)
		}
		v.raw[msgType] = data
		v.compiled[msgType] = compiled
	}
	return v, nil
}

// Validate checks a payload. Message types without a schema always pass.
func (v *Validator) Validate(msgType string, payload json.RawMessage) error {
	s, ok := v.compiled[msgType]
	if !ok {
		return nil
	}
	if len(payload) == 0 || string(payload) == "null" {
		payload = json.RawMessage(`{}`)
	}
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("invalid %s payload: %w", msgType, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("invalid %s payload: %w", msgType, err)
	}
	return nil
}

// Schema returns the generated JSON schema for a message type.
func (v *Validator) Schema(msgType string) ([]byte, bool) {
	b, ok := v.raw[msgType]
	return b, ok
}

// Types returns every message type with a schema, sorted.
func (v *Validator) Types() []string {
	out := make([]string, 0, len(v.raw))
	for t := range v.raw {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

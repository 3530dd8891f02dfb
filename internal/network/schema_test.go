package network

import (
	"encoding/json"
	"testing"
)

func TestValidatorAcceptsWellFormedPayloads(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("validator error: %v", err)
	}
	cases := map[string]string{
		MsgTypeInventoryMove:    `{"item":"abc","tile":{"x":1,"y":2}}`,
		MsgTypeInventoryLoot:    `{"item":"abc"}`,
		MsgTypeInventoryDrop:    `{"item":"abc","quantity":3}`,
		MsgTypeInventoryConsume: `{"item":"abc","quantity":1,"command_id":"01HZX3J7Q4"}`,
		MsgTypePosition:         `{"x":1.5,"y":-2,"z":0}`,
		MsgTypeInteractBegin:    ``,
		MsgTypeChat:             `{"message":"hi"}`,
		MsgTypePing:             `{"anything":true}`,
	}
	for msgType, payload := range cases {
		if err := v.Validate(msgType, json.RawMessage(payload)); err != nil {
			t.Fatalf("%s: unexpected error: %v", msgType, err)
		}
	}
}

func TestValidatorRejectsMalformedPayloads(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("validator error: %v", err)
	}
	cases := map[string]string{
		MsgTypeInventoryMove: `{"item":"abc"}`,
		MsgTypeInventoryDrop: `{"item":"abc","quantity":-1}`,
		MsgTypeInventoryLoot: `{"item":""}`,
		MsgTypeChat:          `{"message":""}`,
		MsgTypePosition:      `{"x":"left","y":0}`,
	}
	for msgType, payload := range cases {
		if err := v.Validate(msgType, json.RawMessage(payload)); err == nil {
			t.Fatalf("%s: expected %s to be rejected", msgType, payload)
		}
	}
	if err := v.Validate(MsgTypeInventoryMove, json.RawMessage(`{not json`)); err == nil {
		t.Fatalf("expected invalid JSON to be rejected")
	}
}

func TestValidatorExposesSchemas(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("validator error: %v", err)
	}
	raw, ok := v.Schema(MsgTypeInventoryMove)
	if !ok {
		t.Fatalf("expected schema for %s", MsgTypeInventoryMove)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if doc["type"] != "object" {
		t.Fatalf("expected object schema, got %v", doc["type"])
	}
	if len(v.Types()) != len(clientPayloads) {
		t.Fatalf("expected %d schemas, got %d", len(clientPayloads), len(v.Types()))
	}
}

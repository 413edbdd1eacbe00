package natsadapter

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Event types carried in the envelope.
const (
	EventSpotSelected   = "spot.selected"
	EventCatalogUpdated = "catalog.updated"
	EventSnapshot       = "nearby.snapshot"
)

// Encode wraps v in a protobuf Struct envelope:
//
//	{type: <eventType>, emitted_at: <RFC 3339>, data: <v as JSON object>}
//
// v must marshal to a JSON object.
func Encode(eventType string, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", eventType, err)
	}
	data := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("convert %s: %w", eventType, err)
	}

	env := &structpb.Struct{Fields: map[string]*structpb.Value{
		"type":       structpb.NewStringValue(eventType),
		"emitted_at": structpb.NewStringValue(time.Now().UTC().Format(time.RFC3339Nano)),
		"data":       structpb.NewStructValue(data),
	}}
	return proto.Marshal(env)
}

// Decode unpacks an envelope into dst and returns its event type.
func Decode(b []byte, dst any) (string, error) {
	env := &structpb.Struct{}
	if err := proto.Unmarshal(b, env); err != nil {
		return "", fmt.Errorf("unmarshal envelope: %w", err)
	}
	eventType := env.GetFields()["type"].GetStringValue()

	data := env.GetFields()["data"].GetStructValue()
	if data == nil {
		return eventType, fmt.Errorf("envelope %q has no data", eventType)
	}
	raw, err := protojson.Marshal(data)
	if err != nil {
		return eventType, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return eventType, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return eventType, nil
}

// EnvelopeJSON renders an envelope as JSON for browser clients.
func EnvelopeJSON(b []byte) ([]byte, error) {
	env := &structpb.Struct{}
	if err := proto.Unmarshal(b, env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return protojson.Marshal(env)
}

type catalogUpdate struct {
	SpotIDs []int64 `json:"spot_ids"`
}

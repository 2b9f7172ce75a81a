// Package contracttests checks the wire contracts of the running stack:
// the HTTP JSON-RPC envelope, the status document, the control line
// protocol and the UDP telemetry format.
package contracttests

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lanerace/racecontrol/internal/race"
	"github.com/lanerace/racecontrol/internal/telemetry"
)

// JSONRPCEnvelope validates JSON-RPC 2.0 envelope structure
type JSONRPCEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// ValidateEnvelope validates JSON-RPC 2.0 response envelope compliance.
// The id member must be present, but may be null for parse errors.
func ValidateEnvelope(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if _, ok := members["id"]; !ok {
		return fmt.Errorf("id field is required")
	}

	var envelope JSONRPCEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}

	if envelope.JSONRPC != "2.0" {
		return fmt.Errorf("jsonrpc must be '2.0', got '%s'", envelope.JSONRPC)
	}

	hasResult := len(envelope.Result) > 0
	hasError := len(envelope.Error) > 0

	if hasResult && hasError {
		return fmt.Errorf("both result and error cannot be present")
	}
	if !hasResult && !hasError {
		return fmt.Errorf("either result or error must be present")
	}

	if hasError {
		return ValidateErrorResponse(envelope.Error)
	}
	return nil
}

// ErrorCode extracts error.code from a response envelope, or 0 if absent
func ErrorCode(data []byte) (int, error) {
	var envelope struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return 0, fmt.Errorf("invalid JSON: %w", err)
	}
	if envelope.Error == nil {
		return 0, nil
	}
	return envelope.Error.Code, nil
}

// ValidateErrorResponse validates JSON-RPC error structure
func ValidateErrorResponse(errorData json.RawMessage) error {
	var errorObj map[string]interface{}
	if err := json.Unmarshal(errorData, &errorObj); err != nil {
		return fmt.Errorf("error must be an object: %w", err)
	}

	code, hasCode := errorObj["code"]
	if !hasCode {
		return fmt.Errorf("error object must have 'code' field")
	}
	message, hasMessage := errorObj["message"]
	if !hasMessage {
		return fmt.Errorf("error object must have 'message' field")
	}

	if _, ok := code.(float64); !ok {
		return fmt.Errorf("error code must be numeric")
	}
	if _, ok := message.(string); !ok {
		return fmt.Errorf("error message must be string")
	}
	return nil
}

// ValidateSnapshot validates a status document as served by GET /status
// and the race.status method
func ValidateSnapshot(data []byte) error {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("status must be an object: %w", err)
	}

	for _, field := range []string{"status", "reportedStatus"} {
		name, ok := doc[field].(string)
		if !ok {
			return fmt.Errorf("%s field must be a string", field)
		}
		if _, err := race.ParseStatus(name); err != nil {
			return fmt.Errorf("%s %q is not a race stage", field, name)
		}
	}

	for _, field := range []string{"tick", "laps", "tracksReady", "carsFinished", "raceTicks"} {
		if _, ok := doc[field].(float64); !ok {
			return fmt.Errorf("%s field must be a number", field)
		}
	}

	tracks, ok := doc["tracks"].([]interface{})
	if !ok {
		return fmt.Errorf("tracks field must be an array")
	}
	for i, raw := range tracks {
		track, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("track %d must be an object", i)
		}
		if id, ok := track["id"].(float64); !ok || id < 1 {
			return fmt.Errorf("track %d id must be a positive number", i)
		}
		if _, ok := track["lap"].(float64); !ok {
			return fmt.Errorf("track %d lap must be a number", i)
		}
		for _, flag := range []string{"offTrack", "finished"} {
			if _, ok := track[flag].(bool); !ok {
				return fmt.Errorf("track %d %s must be a boolean", i, flag)
			}
		}
	}
	return nil
}

// ValidateRaceMessage validates one telemetry datagram:
// { "track": N, "key": value } with the track member optional, one other
// member, and at most telemetry.MaxMessageLen bytes
func ValidateRaceMessage(msg string) error {
	if len(msg) > telemetry.MaxMessageLen {
		return fmt.Errorf("message is %d bytes, limit is %d", len(msg), telemetry.MaxMessageLen)
	}
	if !strings.HasPrefix(msg, "{ ") || !strings.HasSuffix(msg, " }") {
		return fmt.Errorf("message must be framed as '{ ... }', got %q", msg)
	}

	var members map[string]interface{}
	if err := json.Unmarshal([]byte(msg), &members); err != nil {
		return fmt.Errorf("message must be a JSON object: %w", err)
	}

	if track, ok := members["track"]; ok {
		n, isNum := track.(float64)
		if !isNum || n < 1 {
			return fmt.Errorf("track must be a positive number, got %v", track)
		}
		if !strings.HasPrefix(msg, `{ "track": `) {
			return fmt.Errorf("track must be the first member")
		}
		delete(members, "track")
	}

	if len(members) != 1 {
		return fmt.Errorf("message must carry exactly one key besides track, got %d", len(members))
	}
	return nil
}

// MessageKey returns the non-track key of a telemetry message
func MessageKey(msg string) string {
	var members map[string]interface{}
	if err := json.Unmarshal([]byte(msg), &members); err != nil {
		return ""
	}
	for k := range members {
		if k != "track" {
			return k
		}
	}
	return ""
}

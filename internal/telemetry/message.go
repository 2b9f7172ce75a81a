// Package telemetry builds race messages and sends them to listeners.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxMessageLen is the largest message, in bytes, that listeners accept
const MaxMessageLen = 100

var (
	// ErrMessageTooLong is returned when a message would exceed MaxMessageLen.
	// Over-long messages are rejected rather than cut, since a cut message
	// is no longer valid JSON.
	ErrMessageTooLong = errors.New("telemetry message exceeds maximum length")
	// ErrInvalidKey is returned for an empty message key
	ErrInvalidKey = errors.New("telemetry message key is empty")
)

// RGB is a color sensor reading
type RGB struct {
	R, G, B uint8
}

// HexColor renders a reading as #rrggbb
func HexColor(c RGB) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// RaceMessage builds { "track": N, "key": "value" }.
// The track field is omitted when track <= 0.
func RaceMessage(track int, key, value string) (string, error) {
	quoted, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return build(track, key, string(quoted))
}

// RaceMessageInt builds { "track": N, "key": value } with an integer value
func RaceMessageInt(track int, key string, value int) (string, error) {
	return build(track, key, strconv.Itoa(value))
}

// RawColorMessage builds the raw-channel color report for a lane
func RawColorMessage(track int, hex string) (string, error) {
	return RaceMessage(track, "color", hex)
}

func build(track int, key, encoded string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	quotedKey, err := json.Marshal(key)
	if err != nil {
		return "", fmt.Errorf("failed to encode key: %w", err)
	}

	var b strings.Builder
	b.Grow(MaxMessageLen)
	b.WriteString("{ ")
	if track > 0 {
		b.WriteString(`"track": `)
		b.WriteString(strconv.Itoa(track))
		b.WriteString(", ")
	}
	b.Write(quotedKey)
	b.WriteString(": ")
	b.WriteString(encoded)
	b.WriteString(" }")

	if b.Len() > MaxMessageLen {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLong, b.Len(), MaxMessageLen)
	}
	return b.String(), nil
}

package telemetry

import (
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanerace/racecontrol/internal/config"
)

func TestRaceMessage(t *testing.T) {
	tests := []struct {
		name  string
		track int
		key   string
		value string
		want  string
	}{
		{"with track", 2, "status", "Racing", `{ "track": 2, "status": "Racing" }`},
		{"no track", 0, "status", "Show Winner", `{ "status": "Show Winner" }`},
		{"negative track", -1, "status", "Go", `{ "status": "Go" }`},
		{"escaped value", 1, "note", `say "hi"`, `{ "track": 1, "note": "say \"hi\"" }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RaceMessage(tt.track, tt.key, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)))
		})
	}
}

func TestRaceMessageInt(t *testing.T) {
	got, err := RaceMessageInt(1, "winner", 1)
	require.NoError(t, err)
	assert.Equal(t, `{ "track": 1, "winner": 1 }`, got)

	var decoded map[string]int
	require.NoError(t, json.Unmarshal([]byte(got), &decoded))
	assert.Equal(t, map[string]int{"track": 1, "winner": 1}, decoded)
}

func TestRaceMessageRejectsOverLong(t *testing.T) {
	_, err := RaceMessage(1, "color", strings.Repeat("f", MaxMessageLen))
	assert.True(t, errors.Is(err, ErrMessageTooLong))

	// exactly at the limit is accepted
	frame := len(`{ "track": 1, "k": "" }`)
	msg, err := RaceMessage(1, "k", strings.Repeat("a", MaxMessageLen-frame))
	require.NoError(t, err)
	assert.Len(t, msg, MaxMessageLen)
}

func TestRaceMessageRejectsEmptyKey(t *testing.T) {
	_, err := RaceMessage(1, "", "x")
	assert.True(t, errors.Is(err, ErrInvalidKey))
}

func TestHexColor(t *testing.T) {
	assert.Equal(t, "#000000", HexColor(RGB{}))
	assert.Equal(t, "#0a10ff", HexColor(RGB{R: 10, G: 16, B: 255}))
}

func TestRawColorMessage(t *testing.T) {
	got, err := RawColorMessage(2, "#ff8000")
	require.NoError(t, err)
	assert.Equal(t, `{ "track": 2, "color": "#ff8000" }`, got)
}

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readDatagram(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestUDPChannelSendsToSeparatePorts(t *testing.T) {
	raw := listenLoopback(t)
	race := listenLoopback(t)

	cfg := config.TelemetryConfig{
		Address:  "127.0.0.1",
		RawPort:  raw.LocalAddr().(*net.UDPAddr).Port,
		RacePort: race.LocalAddr().(*net.UDPAddr).Port,
	}
	ch, err := NewUDPChannel(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.SendRaw(`{ "track": 1, "color": "#102030" }`))
	require.NoError(t, ch.SendRace(`{ "status": "Racing" }`))

	assert.Equal(t, `{ "track": 1, "color": "#102030" }`, readDatagram(t, raw))
	assert.Equal(t, `{ "status": "Racing" }`, readDatagram(t, race))
}

func TestUDPChannelRejectsOverLongSend(t *testing.T) {
	ch, err := NewUDPChannel(config.TelemetryConfig{Address: "127.0.0.1", RawPort: 9, RacePort: 10}, zerolog.Nop())
	require.NoError(t, err)
	defer ch.Close()

	err = ch.SendRace(strings.Repeat("x", MaxMessageLen+1))
	assert.True(t, errors.Is(err, ErrMessageTooLong))
}

func TestNewUDPChannelRejectsInvalidAddress(t *testing.T) {
	free := listenLoopback(t)
	port := free.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, free.Close())

	_, err := NewUDPChannel(config.TelemetryConfig{Address: "not-an-ip", RawPort: 9, RacePort: 10, ListenPort: port}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-ip")

	// the listen port is still free
	again, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	require.NoError(t, err)
	again.Close()
}

func TestUDPChannelReceive(t *testing.T) {
	out, err := net.ListenUDP("udp4", nil)
	require.NoError(t, err)
	in := listenLoopback(t)

	ch := newUDPChannel(config.TelemetryConfig{RawPort: 9, RacePort: 10}, net.IPv4(127, 0, 0, 1), out, in, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- ch.Serve() }()

	_, ok := ch.Receive()
	assert.False(t, ok, "nothing queued yet")

	sender, err := net.DialUDP("udp4", nil, in.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer sender.Close()
	_, err = sender.Write([]byte("go"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		data, ok := ch.Receive()
		return ok && string(data) == "go"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ch.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Close")
	}
}

func TestUDPChannelServeWithoutListener(t *testing.T) {
	ch, err := NewUDPChannel(config.TelemetryConfig{Address: "127.0.0.1", RawPort: 9, RacePort: 10}, zerolog.Nop())
	require.NoError(t, err)
	defer ch.Close()

	assert.NoError(t, ch.Serve())
	assert.NoError(t, ch.Close())
}

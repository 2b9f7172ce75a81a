package contracttests

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lanerace/racecontrol/internal/config"
	"github.com/lanerace/racecontrol/internal/control"
	"github.com/lanerace/racecontrol/internal/lane"
	"github.com/lanerace/racecontrol/internal/race"
)

// controlClient is one TCP session with the control server
type controlClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func (s *testStack) dialControl(t *testing.T) *controlClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.controlAddr, 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect to control server: %v", err)
	}
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	t.Cleanup(func() { conn.Close() })
	return &controlClient{conn: conn, reader: bufio.NewReader(conn)}
}

// send writes one line and returns the reply without its newline
func (c *controlClient) send(t *testing.T, line string) string {
	t.Helper()
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		t.Fatalf("Failed to send %q: %v", line, err)
	}
	reply, err := c.reader.ReadString('\n')
	if err != nil {
		t.Fatalf("Failed to read reply to %q: %v", line, err)
	}
	return strings.TrimRight(reply, "\r\n")
}

func TestTCPLineReplies(t *testing.T) {
	stack := newTestStack(t)
	client := stack.dialControl(t)

	tests := []struct {
		line  string
		reply string
	}{
		{"go", "ok"},
		{"GO", "ok"},
		{"5", "ok"},
		{"ready 1", "ok"},
		{"offtrack 2 off", "ok"},
		{"color 1 #00ff00", "ok"},
		{"lap 3", "error: unknown lane: 3"},
		{"lap", "error: lap: missing lane"},
		{"warp 9", `error: unknown command: "warp 9"`},
	}

	for _, tt := range tests {
		if got := client.send(t, tt.line); got != tt.reply {
			t.Errorf("%q: expected reply %q, got %q", tt.line, tt.reply, got)
		}
	}
}

func TestTCPLocalOnlyPolicy(t *testing.T) {
	cfg := config.ControlConfig{
		Port:         0,
		AllowedCIDRs: []string{"192.168.1.0/24"},
	}
	server := control.NewServer(cfg, lane.NewBank(1, 2), zerolog.Nop())
	defer server.Close()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create TCP listener: %v", err)
	}
	go server.Serve(listener)

	conn, err := net.DialTimeout("tcp", listener.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	fmt.Fprintf(conn, "go\n")
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err == nil && n > 0 {
		t.Errorf("Expected connection from outside allowed CIDRs to be closed, got %q", buf[:n])
	}

	if _, ok := server.Receive(); ok {
		t.Error("Expected no command queued from rejected connection")
	}
}

func TestTCPRaceOverTCP(t *testing.T) {
	stack := newTestStack(t)
	client := stack.dialControl(t)

	for _, line := range []string{"ready 1", "ready 2"} {
		if got := client.send(t, line); got != "ok" {
			t.Fatalf("%q: %s", line, got)
		}
	}
	stack.tick(1)
	if got := stack.controller.TracksReady(); got != 2 {
		t.Errorf("Expected 2 tracks ready, got %d", got)
	}

	stack.tickUntil(t, race.Racing)

	// lane 2 finishes first, lane 1 second
	for _, line := range []string{"lap 2", "lap 2", "lap 2", "lap 1", "lap 1", "lap 1"} {
		if got := client.send(t, line); got != "ok" {
			t.Fatalf("%q: %s", line, got)
		}
		stack.tick(1)
	}

	if got := stack.controller.Status(); got != race.ShowWinner {
		t.Errorf("Expected Show Winner, got %s", got)
	}
	if got := stack.controller.StatusTrack(); got != 2 {
		t.Errorf("Expected lane 2 to win, got %d", got)
	}
	if got := stack.controller.CarsFinished(); got != 2 {
		t.Errorf("Expected both lanes finished, got %d", got)
	}

	stack.race.waitFor(t, `{ "track": 2, "winner": 2 }`)
}

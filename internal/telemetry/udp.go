package telemetry

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lanerace/racecontrol/internal/config"
)

const (
	inboundQueueSize = 16
	maxDatagramSize  = 1024
)

// UDPChannel sends fire-and-forget datagrams to the raw and race ports of a
// broadcast or multicast address, and optionally queues inbound datagrams.
type UDPChannel struct {
	rawAddr  *net.UDPAddr
	raceAddr *net.UDPAddr
	conn     *net.UDPConn
	listener *net.UDPConn
	inbound  chan []byte
	stopChan chan struct{}
	once     sync.Once
	logger   zerolog.Logger
}

// NewUDPChannel opens the outbound socket and, if cfg.ListenPort > 0, the inbound one
func NewUDPChannel(cfg config.TelemetryConfig, logger zerolog.Logger) (*UDPChannel, error) {
	ip := net.ParseIP(cfg.Address)
	if ip == nil {
		return nil, fmt.Errorf("invalid telemetry address %q", cfg.Address)
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry socket: %w", err)
	}

	var listener *net.UDPConn
	if cfg.ListenPort > 0 {
		listener, err = net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.ListenPort})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to listen on telemetry port %d: %w", cfg.ListenPort, err)
		}
	}

	return newUDPChannel(cfg, ip, conn, listener, logger), nil
}

func newUDPChannel(cfg config.TelemetryConfig, ip net.IP, conn, listener *net.UDPConn, logger zerolog.Logger) *UDPChannel {
	return &UDPChannel{
		rawAddr:  &net.UDPAddr{IP: ip, Port: cfg.RawPort},
		raceAddr: &net.UDPAddr{IP: ip, Port: cfg.RacePort},
		conn:     conn,
		listener: listener,
		inbound:  make(chan []byte, inboundQueueSize),
		stopChan: make(chan struct{}),
		logger:   logger,
	}
}

// SendRaw sends an arbitrary message on the raw channel
func (c *UDPChannel) SendRaw(msg string) error {
	return c.send(msg, c.rawAddr)
}

// SendRace sends a keyed race event on the race channel
func (c *UDPChannel) SendRace(msg string) error {
	return c.send(msg, c.raceAddr)
}

func (c *UDPChannel) send(msg string, addr *net.UDPAddr) error {
	if len(msg) > MaxMessageLen {
		return ErrMessageTooLong
	}
	if _, err := c.conn.WriteToUDP([]byte(msg), addr); err != nil {
		return fmt.Errorf("failed to send to %s: %w", addr, err)
	}
	return nil
}

// Serve reads inbound datagrams until Close. Datagrams arriving while the
// queue is full are dropped. It returns immediately when no listen port
// was configured.
func (c *UDPChannel) Serve() error {
	if c.listener == nil {
		return nil
	}

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := c.listener.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.stopChan:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			c.logger.Warn().Err(err).Msg("telemetry read failed")
			continue
		}

		data := append([]byte(nil), buf[:n]...)
		select {
		case c.inbound <- data:
		default:
			c.logger.Debug().Str("from", from.String()).Msg("inbound queue full, dropping datagram")
		}
	}
}

// Receive returns the next queued inbound datagram without blocking
func (c *UDPChannel) Receive() ([]byte, bool) {
	select {
	case data := <-c.inbound:
		return data, true
	default:
		return nil, false
	}
}

// Close shuts down both sockets. It is safe to call more than once.
func (c *UDPChannel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.stopChan)
		if c.listener != nil {
			err = c.listener.Close()
		}
		if cerr := c.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

// Package control accepts operator commands over TCP. Race commands are
// queued for the race controller, which drains them from its tick loop;
// lane commands are injected straight into the lane monitors.
package control

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/lanerace/racecontrol/internal/config"
	"github.com/lanerace/racecontrol/internal/lane"
)

const (
	inboundQueueSize = 16
	maxLineLen       = 256
)

// ErrQueueFull is returned when the race command queue cannot take more input
var ErrQueueFull = errors.New("race command queue full")

// LaneRouter delivers lane events to lane monitors
type LaneRouter interface {
	RouteLane(id int, ev lane.Event) error
}

// Server handles control TCP connections
type Server struct {
	config            config.ControlConfig
	router            LaneRouter
	logger            zerolog.Logger
	inbound           chan []byte
	stopChan          chan struct{}
	closeOnce         sync.Once
	mu                sync.Mutex
	listener          net.Listener
	conns             map[net.Conn]struct{}
	handlers          conc.WaitGroup
	allowed           []*net.IPNet
	connectionTimeout time.Duration
}

// NewServer creates a new control server
func NewServer(cfg config.ControlConfig, router LaneRouter, logger zerolog.Logger) *Server {
	s := &Server{
		config:            cfg,
		router:            router,
		logger:            logger.With().Str("component", "control").Logger(),
		inbound:           make(chan []byte, inboundQueueSize),
		stopChan:          make(chan struct{}),
		conns:             make(map[net.Conn]struct{}),
		connectionTimeout: 5 * time.Minute,
	}

	for _, cidr := range cfg.AllowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			s.logger.Warn().Str("cidr", cidr).Msg("invalid CIDR in config")
			continue
		}
		s.allowed = append(s.allowed, network)
	}

	return s
}

// ListenAndServe listens on the configured port and serves until Close
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Close
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	select {
	case <-s.stopChan:
		s.mu.Unlock()
		listener.Close()
		return nil
	default:
	}
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("control server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn().Err(err).Msg("failed to accept connection")
			continue
		}

		if !s.isAllowedConnection(conn) {
			s.logger.Warn().Str("remote", conn.RemoteAddr().String()).Msg("rejected connection, not in allowed CIDRs")
			conn.Close()
			continue
		}

		if !s.trackConnection(conn) {
			conn.Close()
			return nil
		}
	}
}

// trackConnection starts a handler for conn unless the server is closing
func (s *Server) trackConnection(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.stopChan:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	s.handlers.Go(func() { s.handleConnection(conn) })
	return true
}

// handleConnection reads one command per line and answers each with
// "ok" or "error: <reason>"
func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, maxLineLen), maxLineLen)

	for {
		conn.SetReadDeadline(time.Now().Add(s.connectionTimeout))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				s.logger.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("control connection closed")
			}
			return
		}

		reply := "ok"
		if err := s.Submit(scanner.Text()); err != nil {
			reply = "error: " + err.Error()
		}
		if _, err := fmt.Fprintln(conn, reply); err != nil {
			return
		}
	}
}

// Submit parses a command line and dispatches it. It is safe for
// concurrent use.
func (s *Server) Submit(line string) error {
	cmd, err := Parse(line)
	if err != nil {
		s.logger.Debug().Err(err).Msg("ignoring control input")
		return err
	}

	switch cmd.Target {
	case ToLane:
		if err := s.router.RouteLane(cmd.Lane, cmd.Event); err != nil {
			return err
		}
		s.logger.Debug().Int("lane", cmd.Lane).Stringer("event", cmd.Event.Kind).Msg("lane command")
		return nil
	default:
		select {
		case s.inbound <- []byte(cmd.Raw):
			s.logger.Debug().Str("command", cmd.Raw).Msg("race command queued")
			return nil
		default:
			return ErrQueueFull
		}
	}
}

// Receive returns the next queued race command without blocking
func (s *Server) Receive() ([]byte, bool) {
	select {
	case data := <-s.inbound:
		return data, true
	default:
		return nil, false
	}
}

// isAllowedConnection checks if the connection is from an allowed CIDR
func (s *Server) isAllowedConnection(conn net.Conn) bool {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return false
	}

	clientIP := net.ParseIP(host)
	if clientIP == nil {
		return false
	}

	for _, network := range s.allowed {
		if network.Contains(clientIP) {
			return true
		}
	}
	return false
}

// Close stops accepting, drops open control connections and waits for
// their handlers to return
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.stopChan)
		if s.listener != nil {
			err = s.listener.Close()
		}
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()

		s.handlers.Wait()
	})
	return err
}

package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chatd/chat"
	"chatd/protocol"
)

type Server struct {
	svc      *chat.Service
	config   *ServerConfig
	listener net.Listener
	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup
	closing  atomic.Bool
}

// DefaultMaxLineSize bounds one inbound line when ServerConfig leaves it unset.
const DefaultMaxLineSize = 64 << 10

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration // 0 disables the idle timeout
	WriteTimeout time.Duration
	MaxLineSize  int // longer lines are dropped
}

// Session is one client connection. It satisfies chat.Conn.
type Session struct {
	id           string
	Conn         net.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (s *Session) ID() string {
	return s.id
}

// Send writes payload as one newline-terminated frame.
func (s *Session) Send(payload []byte) error {
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, payload...)
	frame = append(frame, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeTimeout > 0 {
		s.Conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	_, err := s.Conn.Write(frame)
	return err
}

func New(svc *chat.Service, config *ServerConfig) *Server {
	return &Server{
		svc:      svc,
		config:   config,
		sessions: make(map[string]*Session),
	}
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	if s.closing.Load() {
		listener.Close()
		return nil
	}

	log.Printf("chat server started on %s", listener.Addr())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Error accepting connection: %v", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	session := &Session{
		id:           uuid.NewString(),
		Conn:         conn,
		writeTimeout: s.config.WriteTimeout,
	}
	s.addSession(session)

	defer func() {
		s.removeSession(session.id)
		conn.Close()
		for _, id := range s.svc.ConnectionClosed(context.Background(), session) {
			log.Printf("[%s] user %d went offline", session.id, id)
		}
		log.Printf("[%s] client disconnected", session.id)
	}()

	log.Printf("[%s] client connected from %s", session.id, conn.RemoteAddr())

	maxLine := s.config.MaxLineSize
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	reader := bufio.NewReaderSize(conn, maxLine)
	for {
		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		line, tooLong, err := readLine(reader)
		if tooLong {
			log.Printf("[%s] dropped line longer than %d bytes", session.id, maxLine)
		}
		if len(line) > 0 {
			// a final line without a terminator is still processed
			s.handleLine(session, line)
		}
		if err != nil {
			var netErr net.Error
			switch {
			case err == io.EOF, errors.Is(err, net.ErrClosed):
			case errors.As(err, &netErr) && netErr.Timeout():
				log.Printf("[%s] idle timeout", session.id)
			default:
				log.Printf("[%s] read: %v", session.id, err)
			}
			return
		}
	}
}

// readLine returns the next line from r. A line that does not fit in r's
// buffer is discarded up to its terminator and reported as too long.
func readLine(r *bufio.Reader) ([]byte, bool, error) {
	line, err := r.ReadSlice('\n')
	if !errors.Is(err, bufio.ErrBufferFull) {
		return line, false, err
	}
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = r.ReadSlice('\n')
	}
	return nil, true, err
}

func (s *Server) handleLine(session *Session, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	msg, err := protocol.Decode(line)
	if err != nil {
		log.Printf("[%s] dropped line: %v", session.id, err)
		return
	}

	// credentials stay out of the log
	if k := msg.Kind(); k != protocol.KindLogin && k != protocol.KindRegister {
		log.Printf("[%s] received %s: %q", session.id, k, line)
	}

	s.svc.Dispatch(context.Background(), session, msg, time.Now())
}

// Shutdown stops accepting, closes every connection and waits for the
// connection goroutines to finish their offline bookkeeping.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for _, session := range s.sessions {
		session.Conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) addSession(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		session.Conn.Close()
	}
	s.sessions[session.id] = session
}

func (s *Server) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// GetStats returns server statistics as a formatted string.
func (s *Server) GetStats() string {
	s.mu.RLock()
	open := len(s.sessions)
	s.mu.RUnlock()

	stats := s.svc.Stats()
	users := make([]string, 0, len(stats.Users))
	for _, id := range stats.Users {
		users = append(users, strconv.FormatInt(id, 10))
	}

	return "connections=" + strconv.Itoa(open) +
		",online=" + strconv.Itoa(stats.Connections) +
		",users=" + strings.Join(users, ";") +
		",unrecognized=" + strconv.FormatInt(stats.Unrecognized, 10)
}

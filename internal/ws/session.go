package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/HsiangNianian/AMonItor/neurosdk/internal/protocol"
)

// URLScheme is the only destination scheme the manager will dial.
const URLScheme = "ws://"

const (
	defaultInvalidURLPoll    = time.Second
	defaultReconnectInterval = 2 * time.Second
	defaultPingInterval      = 5 * time.Second
	writeWait                = 10 * time.Second
)

var ErrAlreadyRunning = errors.New("session manager already running")

type CloseReason int

const (
	ReasonNormal CloseReason = iota + 1
	ReasonReconnect
	ReasonInvalidURL
	ReasonError
)

func (r CloseReason) String() string {
	switch r {
	case ReasonNormal:
		return "NORMAL"
	case ReasonReconnect:
		return "RECONNECT"
	case ReasonInvalidURL:
		return "INVALID_URL"
	case ReasonError:
		return "ERROR"
	}
	return fmt.Sprintf("CloseReason(%d)", int(r))
}

// Code is the websocket close code sent for the reason, or 0 when no close
// frame is sent.
func (r CloseReason) Code() int {
	switch r {
	case ReasonNormal:
		return websocket.CloseNormalClosure
	case ReasonReconnect:
		return websocket.CloseServiceRestart
	case ReasonError:
		return websocket.CloseInternalServerErr
	}
	return 0
}

type CloseInfo struct {
	Reason  CloseReason
	Message string
	Cause   error
}

// CommandProcessor handles decoded inbound envelopes. A non-nil response is
// queued for sending. RegisteredActions is read on every new connection so
// the peer learns the current action set again.
type CommandProcessor interface {
	ProcessCommand(ctx context.Context, env protocol.Envelope) (*protocol.Envelope, error)
	RegisteredActions() []protocol.ActionInfo
}

type Option func(*Manager)

func WithInvalidURLPoll(d time.Duration) Option {
	return func(m *Manager) { m.invalidURLPoll = d }
}

func WithReconnectInterval(d time.Duration) Option {
	return func(m *Manager) { m.reconnectInterval = d }
}

func WithPingInterval(d time.Duration) Option {
	return func(m *Manager) { m.pingInterval = d }
}

func WithDialer(dialer *websocket.Dialer, header http.Header) Option {
	return func(m *Manager) {
		m.dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := dialer.DialContext(ctx, url, header)
			return conn, err
		}
	}
}

// Manager keeps one websocket to the peer alive at a time. Envelopes passed
// to Send are written in order, across reconnects, with the game name
// stamped on just before writing.
type Manager struct {
	game      string
	processor CommandProcessor
	out       *outbox
	dial      func(ctx context.Context, url string) (*websocket.Conn, error)

	invalidURLPoll    time.Duration
	reconnectInterval time.Duration
	pingInterval      time.Duration

	mu            sync.Mutex
	url           string
	closeInfo     *CloseInfo
	conn          *websocket.Conn
	cancelSession context.CancelFunc
	stop          context.CancelFunc
	running       bool
	shutdown      bool
}

func NewManager(game, url string, processor CommandProcessor, opts ...Option) *Manager {
	m := &Manager{
		game:              game,
		url:               url,
		processor:         processor,
		out:               newOutbox(),
		invalidURLPoll:    defaultInvalidURLPoll,
		reconnectInterval: defaultReconnectInterval,
		pingInterval:      defaultPingInterval,
	}
	WithDialer(websocket.DefaultDialer, nil)(m)
	for _, opt := range opts {
		opt(m)
	}
	if m.invalidURLPoll <= 0 {
		m.invalidURLPoll = defaultInvalidURLPoll
	}
	if m.reconnectInterval <= 0 {
		m.reconnectInterval = defaultReconnectInterval
	}
	if m.pingInterval <= 0 {
		m.pingInterval = defaultPingInterval
	}
	return m
}

// Send queues env. It never blocks; the envelope goes out once a
// connection is up.
func (m *Manager) Send(env protocol.Envelope) {
	m.out.push(env)
}

func (m *Manager) Pending() int {
	return m.out.len()
}

func (m *Manager) URL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.url
}

// SetURL changes the destination used by the next connection attempt.
func (m *Manager) SetURL(url string) {
	m.mu.Lock()
	m.url = url
	m.mu.Unlock()
}

// CloseInfo reports why the current session ended, or nil while connected
// or connecting.
func (m *Manager) CloseInfo() *CloseInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeInfo == nil {
		return nil
	}
	info := *m.closeInfo
	return &info
}

// Run connects and reconnects until Shutdown is called or ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running = true
	m.shutdown = false
	m.stop = stop
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.stop = nil
		m.mu.Unlock()
	}()

	for {
		for !m.targetValid() {
			if err := sleep(ctx, m.invalidURLPoll); err != nil {
				return m.exitErr(ctx)
			}
		}

		m.mu.Lock()
		m.closeInfo = nil
		m.mu.Unlock()

		connID := uuid.NewString()
		if err := m.runSession(ctx, connID); err != nil {
			m.CloseWithError("websocket errored", err)
		}

		info := m.CloseInfo()
		if info != nil && info.Reason == ReasonNormal {
			log.Printf("websocket closed normally: game=%s conn_id=%s", m.game, connID)
			return nil
		}
		if ctx.Err() != nil {
			return m.exitErr(ctx)
		}
		log.Printf("%s reconnecting in %s: game=%s conn_id=%s", describeClose(info), m.reconnectInterval, m.game, connID)
		if err := sleep(ctx, m.reconnectInterval); err != nil {
			return m.exitErr(ctx)
		}
	}
}

// Reconnect drops the current connection; Run dials again after the
// reconnect interval.
func (m *Manager) Reconnect(msg string) {
	if msg == "" {
		msg = "Reconnecting!"
	}
	m.close(CloseInfo{Reason: ReasonReconnect, Message: msg})
}

func (m *Manager) CloseWithError(msg string, cause error) {
	m.close(CloseInfo{Reason: ReasonError, Message: msg, Cause: cause})
}

// Shutdown closes the connection normally and stops Run, including while it
// is waiting on an invalid URL or between attempts.
func (m *Manager) Shutdown(msg string) {
	if msg == "" {
		msg = "Shutting down!"
	}
	m.close(CloseInfo{Reason: ReasonNormal, Message: msg})
	m.mu.Lock()
	m.shutdown = true
	stop := m.stop
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (m *Manager) close(info CloseInfo) {
	m.mu.Lock()
	if m.closeInfo != nil {
		m.mu.Unlock()
		return
	}
	m.closeInfo = &info
	conn, cancel := m.conn, m.cancelSession
	m.mu.Unlock()

	log.Printf("closing websocket: game=%s reason=%s message=%s", m.game, info.Reason, info.Message)
	if info.Cause != nil {
		log.Printf("websocket close cause: game=%s err=%v", m.game, info.Cause)
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if code := info.Reason.Code(); code != 0 {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, info.Message), time.Now().Add(writeWait))
		}
		_ = conn.Close()
	}
}

func (m *Manager) targetValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.HasPrefix(m.url, URLScheme) {
		return true
	}
	if m.closeInfo == nil || m.closeInfo.Reason != ReasonInvalidURL {
		log.Printf("invalid websocket url, waiting for a %s url: game=%s url=%q", URLScheme, m.game, m.url)
	}
	m.closeInfo = &CloseInfo{Reason: ReasonInvalidURL, Message: "Invalid URL: " + m.url}
	return false
}

func (m *Manager) runSession(ctx context.Context, connID string) error {
	url := m.URL()
	log.Printf("dial websocket: game=%s conn_id=%s url=%s", m.game, connID, url)
	conn, err := m.dial(ctx, url)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.closeInfo != nil {
		// closed while dialing
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.conn = conn
	m.cancelSession = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.conn = nil
		m.cancelSession = nil
		m.mu.Unlock()
		_ = conn.Close()
	}()
	log.Printf("websocket connected: game=%s conn_id=%s url=%s", m.game, connID, url)

	log.Printf("sending startup message: game=%s conn_id=%s", m.game, connID)
	if err := m.write(conn, protocol.Startup()); err != nil {
		return fmt.Errorf("send startup: %w", err)
	}
	if actions := m.processor.RegisteredActions(); len(actions) > 0 {
		log.Printf("re-registering actions: game=%s conn_id=%s actions=%s", m.game, connID, actionNames(actions))
		if err := m.write(conn, protocol.RegisterActions(actions)); err != nil {
			return fmt.Errorf("resend actions: %w", err)
		}
	}
	// An outstanding forced action is not asserted again here.

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.supervise("receive", func() error { return m.receiveLoop(sessionCtx, conn, connID) })
	}()
	go func() {
		defer wg.Done()
		m.supervise("send", func() error { return m.sendLoop(sessionCtx, conn) })
	}()
	wg.Wait()
	return nil
}

// supervise runs one session loop. Any exit that was not caused by a close
// request marks the session errored, which also stops the other loop.
func (m *Manager) supervise(name string, loop func() error) {
	err := loop()
	if m.CloseInfo() != nil {
		return
	}
	if err != nil {
		m.CloseWithError(name+" loop errored", err)
		return
	}
	m.CloseWithError(name+" loop stopped unexpectedly", nil)
}

func (m *Manager) sendLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case <-m.out.ready:
			items := m.out.drain()
			for i, env := range items {
				if ctx.Err() != nil {
					m.out.requeue(items[i:])
					return nil
				}
				if err := m.write(conn, env); err != nil {
					m.out.requeue(items[i:])
					return fmt.Errorf("send %s: %w", env.Command, err)
				}
			}
		}
	}
}

func (m *Manager) receiveLoop(ctx context.Context, conn *websocket.Conn, connID string) error {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		m.handleFrame(ctx, connID, strings.TrimSpace(string(data)))
	}
}

func (m *Manager) handleFrame(ctx context.Context, connID, text string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic while processing message: game=%s conn_id=%s panic=%v raw=%s", m.game, connID, r, text)
		}
	}()

	var env protocol.Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		log.Printf("decode message failed: game=%s conn_id=%s err=%v raw=%s", m.game, connID, err, text)
		return
	}
	log.Printf("recv peer->game: game=%s conn_id=%s command=%s", m.game, connID, env.Command)
	resp, err := m.processor.ProcessCommand(ctx, env)
	if err != nil {
		log.Printf("process message failed: game=%s conn_id=%s command=%s err=%v raw=%s", m.game, connID, env.Command, err, text)
		return
	}
	if resp != nil {
		m.out.push(*resp)
	}
}

func (m *Manager) write(conn *websocket.Conn, env protocol.Envelope) error {
	env.Game = m.game
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, raw)
}

func (m *Manager) exitErr(ctx context.Context) error {
	m.mu.Lock()
	shutdown := m.shutdown
	m.mu.Unlock()
	if shutdown {
		return nil
	}
	return ctx.Err()
}

func describeClose(info *CloseInfo) string {
	if info == nil {
		return "websocket ended without any information,"
	}
	switch info.Reason {
	case ReasonReconnect:
		return "websocket closed for reconnect,"
	case ReasonInvalidURL:
		return "websocket could not connect due to invalid url,"
	case ReasonError:
		return "websocket closed due to error,"
	}
	return "websocket closed,"
}

func actionNames(actions []protocol.ActionInfo) string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

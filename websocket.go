package alphasec

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnectionState is the lifecycle phase of a Stream.
type ConnectionState int32

// Stream lifecycle states.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StreamConfig tunes a Stream. The zero value is not usable; start from
// DefaultStreamConfig.
type StreamConfig struct {
	// URL is the websocket endpoint.
	URL string
	// MaxReconnectAttempts bounds consecutive failed dials. Zero means
	// retry forever.
	MaxReconnectAttempts int
	// ReconnectDelay is the initial backoff between dials. It doubles on
	// every failure up to MaxReconnectDelay and resets on success.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	// PingInterval is how often a client ping is written.
	PingInterval time.Duration
	// PongTimeout tears the connection down when no traffic arrives for
	// this long.
	PongTimeout time.Duration
	// MessageQueueSize caps the consumer channel; messages beyond it are
	// dropped with a warning.
	MessageQueueSize int
	// ResumeAfterDrop keeps reconnecting after a previously established
	// connection is lost. When false the stream stops at the first drop
	// and surfaces a DisconnectedMessage.
	ResumeAfterDrop bool
}

// DefaultStreamConfig returns the standard tuning for url.
func DefaultStreamConfig(url string) StreamConfig {
	return StreamConfig{
		URL:               url,
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      10 * time.Second,
		PongTimeout:       30 * time.Second,
		MessageQueueSize:  1000,
	}
}

// ConnectionStats are cumulative counters for one Stream.
type ConnectionStats struct {
	ConnectionAttempts    uint32
	SuccessfulConnections uint32
	MessagesSent          uint64
	MessagesReceived      uint64
	LastConnectedAt       time.Time
	LastDisconnectedAt    time.Time
}

type streamCmdKind int

const (
	cmdConnect streamCmdKind = iota
	cmdDisconnect
	cmdSubscribe
	cmdUnsubscribe
	cmdSendRaw
)

type streamCmd struct {
	kind    streamCmdKind
	id      int
	channel string
	raw     []byte
}

// Stream maintains a websocket connection with automatic reconnection
// and subscription replay. Typed messages arrive on the channel returned
// by TakeMessages; subscribe/unsubscribe acks are consumed internally.
type Stream struct {
	cfg StreamConfig
	log *zap.Logger

	state atomic.Int32

	mu      sync.Mutex
	subs    map[int]string
	nextID  int
	started bool
	rxTaken bool

	statsMu sync.Mutex
	stats   ConnectionStats

	ctrl     chan streamCmd
	messages chan StreamMessage
	done     chan struct{}

	dialer *websocket.Dialer
}

// NewStream builds a Stream over cfg. A nil logger disables logging.
// The stream is idle until Start.
func NewStream(cfg StreamConfig, log *zap.Logger) *Stream {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = 30 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 10 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 30 * time.Second
	}
	if cfg.MessageQueueSize <= 0 {
		cfg.MessageQueueSize = 1000
	}
	return &Stream{
		cfg:      cfg,
		log:      log,
		subs:     make(map[int]string),
		nextID:   1,
		ctrl:     make(chan streamCmd, 256),
		messages: make(chan StreamMessage, cfg.MessageQueueSize),
		done:     make(chan struct{}),
		dialer:   websocket.DefaultDialer,
	}
}

// State returns the current lifecycle state.
func (s *Stream) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

// IsConnected reports whether a connection is established.
func (s *Stream) IsConnected() bool {
	return s.State() == StateConnected
}

// Stats returns a snapshot of the cumulative counters.
func (s *Stream) Stats() ConnectionStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *Stream) setState(st ConnectionState) {
	s.state.Store(int32(st))
}

// TakeMessages hands out the receive channel. It can be taken once;
// later calls return ErrStreamClosed.
func (s *Stream) TakeMessages() (<-chan StreamMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rxTaken {
		return nil, errReceiverTaken
	}
	s.rxTaken = true
	return s.messages, nil
}

// Start launches the connection loop and requests the first dial.
func (s *Stream) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("stream already started")
	}
	s.started = true
	s.mu.Unlock()

	go s.run()
	s.ctrl <- streamCmd{kind: cmdConnect}
	return nil
}

// Stop closes the stream. It is terminal; a stopped stream cannot be
// restarted.
func (s *Stream) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		s.setState(StateClosed)
		return
	}
	select {
	case s.ctrl <- streamCmd{kind: cmdDisconnect}:
	case <-s.done:
	}
	<-s.done
}

// Subscribe registers a channel under a fresh request id and asks the
// connection to announce it. Registration survives reconnects: every
// established connection replays all registered channels in id order.
func (s *Stream) Subscribe(channel string) (int, error) {
	s.mu.Lock()
	if s.State() == StateClosed {
		s.mu.Unlock()
		return 0, ErrStreamClosed
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = channel
	s.mu.Unlock()

	select {
	case s.ctrl <- streamCmd{kind: cmdSubscribe, id: id, channel: channel}:
	case <-s.done:
		return 0, ErrStreamClosed
	}
	return id, nil
}

// Unsubscribe removes a registration by the id Subscribe returned.
func (s *Stream) Unsubscribe(id int) error {
	s.mu.Lock()
	channel, ok := s.subs[id]
	if ok {
		delete(s.subs, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: subscription %d", ErrNotFound, id)
	}
	select {
	case s.ctrl <- streamCmd{kind: cmdUnsubscribe, id: id, channel: channel}:
	case <-s.done:
		return ErrStreamClosed
	}
	return nil
}

// Send queues a raw text frame for the active connection. It fails when
// no connection is established.
func (s *Stream) Send(raw []byte) error {
	if !s.IsConnected() {
		return errNotConnected
	}
	select {
	case s.ctrl <- streamCmd{kind: cmdSendRaw, raw: raw}:
		return nil
	case <-s.done:
		return ErrStreamClosed
	}
}

// deliver pushes a message to the consumer, dropping it when the queue
// is full.
func (s *Stream) deliver(msg StreamMessage) {
	select {
	case s.messages <- msg:
	default:
		s.log.Warn("stream queue full, dropping message")
	}
}

// run is the connection loop. It owns the socket for its whole lifetime.
func (s *Stream) run() {
	defer close(s.done)
	defer close(s.messages)

	everConnected := false
	for {
		cmd := <-s.ctrl
		switch cmd.kind {
		case cmdDisconnect:
			s.setState(StateClosed)
			return
		case cmdConnect:
		case cmdSubscribe, cmdUnsubscribe, cmdSendRaw:
			// No connection yet; registrations replay on connect and raw
			// sends cannot be honored.
			continue
		}

		connected, closed := s.connectAndServe(&everConnected)
		if closed {
			s.setState(StateClosed)
			return
		}
		if !connected {
			// Dial attempts exhausted.
			s.setState(StateDisconnected)
			return
		}
		// A previously live connection dropped.
		if !s.cfg.ResumeAfterDrop {
			s.setState(StateDisconnected)
			return
		}
		// Feed the loop another connect request.
		select {
		case s.ctrl <- streamCmd{kind: cmdConnect}:
		default:
		}
	}
}

// connectAndServe dials with backoff, then serves the connection until
// it drops. connected reports whether a connection was established at
// least once; closed reports a Stop request.
func (s *Stream) connectAndServe(everConnected *bool) (connected, closed bool) {
	attempts := 0
	delay := s.cfg.ReconnectDelay
	for {
		if *everConnected {
			s.setState(StateReconnecting)
		} else {
			s.setState(StateConnecting)
		}
		s.statsMu.Lock()
		s.stats.ConnectionAttempts++
		s.statsMu.Unlock()

		conn, err := s.dial()
		if err != nil {
			attempts++
			s.log.Warn("dial failed",
				zap.String("url", s.cfg.URL),
				zap.Int("attempt", attempts),
				zap.Error(err))
			if s.cfg.MaxReconnectAttempts > 0 && attempts >= s.cfg.MaxReconnectAttempts {
				return *everConnected, false
			}
			if s.sleepOrClose(delay) {
				return *everConnected, true
			}
			delay *= 2
			if delay > s.cfg.MaxReconnectDelay {
				delay = s.cfg.MaxReconnectDelay
			}
			continue
		}

		*everConnected = true
		attempts = 0
		delay = s.cfg.ReconnectDelay
		s.setState(StateConnected)
		s.statsMu.Lock()
		s.stats.SuccessfulConnections++
		s.stats.LastConnectedAt = time.Now()
		s.statsMu.Unlock()
		s.log.Info("connected", zap.String("url", s.cfg.URL))

		closed := s.serve(conn)

		s.statsMu.Lock()
		s.stats.LastDisconnectedAt = time.Now()
		s.statsMu.Unlock()
		s.deliver(&DisconnectedMessage{})
		if closed {
			return true, true
		}
		return true, false
	}
}

func (s *Stream) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, resp, err := s.dialer.DialContext(ctx, s.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

// sleepOrClose waits out a backoff delay, returning true when a Stop
// request interrupts it.
func (s *Stream) sleepOrClose(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return false
		case cmd := <-s.ctrl:
			if cmd.kind == cmdDisconnect {
				return true
			}
			// Subscribe/unsubscribe updates already landed in the
			// registration map; they replay on the next connect.
		}
	}
}

type wsFrame struct {
	kind int // websocket.TextMessage, PingMessage or PongMessage
	data []byte
}

// serve pumps one established connection until it drops or Stop is
// requested. Returns true on Stop.
func (s *Stream) serve(conn *websocket.Conn) (closed bool) {
	defer conn.Close()

	frames := make(chan wsFrame, 64)
	readerDone := make(chan struct{})
	quit := make(chan struct{})
	defer close(quit)
	conn.SetPingHandler(func(payload string) error {
		select {
		case frames <- wsFrame{kind: websocket.PingMessage, data: []byte(payload)}:
		default:
		}
		return nil
	})
	conn.SetPongHandler(func(payload string) error {
		select {
		case frames <- wsFrame{kind: websocket.PongMessage, data: []byte(payload)}:
		default:
		}
		return nil
	})
	go func() {
		defer close(readerDone)
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
				select {
				case frames <- wsFrame{kind: websocket.TextMessage, data: data}:
				case <-quit:
					return
				}
			}
		}
	}()

	if !s.replaySubscriptions(conn) {
		return false
	}

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()
	lastActivity := time.Now()

	for {
		select {
		case <-readerDone:
			s.log.Info("connection closed by server")
			return false

		case frame := <-frames:
			lastActivity = time.Now()
			switch frame.kind {
			case websocket.PingMessage:
				if err := conn.WriteMessage(websocket.PongMessage, frame.data); err != nil {
					s.log.Warn("pong write failed", zap.Error(err))
					return false
				}
				s.deliver(&PingMessage{Payload: frame.data})
			case websocket.PongMessage:
				s.deliver(&PongMessage{Payload: frame.data})
			default:
				s.statsMu.Lock()
				s.stats.MessagesReceived++
				s.statsMu.Unlock()
				msg := parseStreamMessage(frame.data)
				if msg == nil {
					s.log.Warn("discarding unparseable frame")
					continue
				}
				if ack, ok := msg.(*AckMessage); ok {
					s.log.Debug("ack", zap.Int("id", ack.ID), zap.String("result", ack.Result))
					continue
				}
				s.deliver(msg)
			}

		case cmd := <-s.ctrl:
			switch cmd.kind {
			case cmdDisconnect:
				s.writeClose(conn)
				return true
			case cmdSubscribe:
				if !s.writeRequest(conn, "subscribe", cmd.id, cmd.channel) {
					return false
				}
			case cmdUnsubscribe:
				if !s.writeRequest(conn, "unsubscribe", cmd.id, cmd.channel) {
					return false
				}
			case cmdSendRaw:
				if err := conn.WriteMessage(websocket.TextMessage, cmd.raw); err != nil {
					s.log.Warn("send failed", zap.Error(err))
					return false
				}
				s.statsMu.Lock()
				s.stats.MessagesSent++
				s.statsMu.Unlock()
			}

		case <-pingTicker.C:
			if time.Since(lastActivity) > s.cfg.PongTimeout {
				s.log.Warn("pong timeout, dropping connection",
					zap.Duration("idle", time.Since(lastActivity)))
				return false
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Warn("ping write failed", zap.Error(err))
				return false
			}
		}
	}
}

// replaySubscriptions re-announces every registered channel in request
// id order so the server sees the same sequence the caller issued.
func (s *Stream) replaySubscriptions(conn *websocket.Conn) bool {
	s.mu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	channels := make(map[int]string, len(s.subs))
	for id, ch := range s.subs {
		channels[id] = ch
	}
	s.mu.Unlock()

	sort.Ints(ids)
	for _, id := range ids {
		if !s.writeRequest(conn, "subscribe", id, channels[id]) {
			return false
		}
	}
	return true
}

func (s *Stream) writeRequest(conn *websocket.Conn, method string, id int, channel string) bool {
	raw, err := wireJSON.Marshal(&wsRequest{
		Method: method,
		Params: wsRequestParams{Channels: []string{channel}},
		ID:     id,
	})
	if err != nil {
		s.log.Error("encode request", zap.Error(err))
		return false
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		s.log.Warn("request write failed", zap.String("method", method), zap.Error(err))
		return false
	}
	s.statsMu.Lock()
	s.stats.MessagesSent++
	s.statsMu.Unlock()
	s.log.Debug("request sent", zap.String("method", method), zap.Int("id", id), zap.String("channel", channel))
	return true
}

func (s *Stream) writeClose(conn *websocket.Conn) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
}

package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Callback receives messages delivered to a subscription. Called
// synchronously from the read loop; panics are isolated per callback.
type Callback func(Message)

// TokenSource supplies the auth token attached to the connection URL.
// Consulted on every connect so an externally refreshed token is picked
// up by the next attempt.
type TokenSource interface {
	Token() string
}

// subscription is one subscriber's interest in a channel.
type subscription struct {
	channel  string
	callback Callback
	filters  *Filters
}

// Manager owns one connection to the relay server and multiplexes
// logical channels over it. Construct with NewManager; a process may
// hold any number of independent managers.
type Manager struct {
	cfg    Config
	tokens TokenSource
	logger *slog.Logger

	mu                sync.Mutex
	status            Status
	reconnectAttempts int
	lastConnected     time.Time
	lastDisconnected  time.Time
	lastError         *CloseError
	intentional       bool

	conn Conn
	gen  int // connection generation; stale read loops bail out

	// Registry: channel → subscriptions, plus channel registration
	// order for replay after reconnect.
	subs     map[string][]*subscription
	subOrder []string

	queue *outboundQueue

	handlers Handlers

	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}
}

// NewManager creates a Manager. tokens may be nil for unauthenticated
// servers.
func NewManager(cfg Config, tokens TokenSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Manager{
		cfg:    cfg,
		tokens: tokens,
		logger: logger,
		status: StatusDisconnected,
		subs:   make(map[string][]*subscription),
		queue:  newOutboundQueue(cfg.MaxQueueSize),
	}
}

// Connect opens the connection. No-op if already connecting or
// connected. Blocks until the transport opens, the dial times out, or
// the transport reports an error. Reconnection after an unexpected
// close is automatic and does not go through the caller.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusConnecting || m.status == StatusConnected {
		m.mu.Unlock()
		return nil
	}
	m.status = StatusConnecting
	m.intentional = false
	m.mu.Unlock()

	var token string
	if m.tokens != nil {
		token = m.tokens.Token()
	}

	rawURL, err := buildURL(m.cfg.URL, m.cfg.Origin, token)
	if err != nil {
		m.connectFailed(err)
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	conn, err := m.cfg.Dialer.Dial(dialCtx, rawURL)
	if err != nil {
		m.connectFailed(err)
		return err
	}

	return m.handleOpen(conn)
}

func (m *Manager) connectFailed(err error) {
	m.mu.Lock()
	m.status = StatusDisconnected
	onError := m.handlers.OnError
	m.mu.Unlock()

	m.logger.Warn("connect failed", "url", m.cfg.URL, "error", err)
	if onError != nil {
		onError(err)
	}
}

// handleOpen installs a freshly opened connection: resets the attempt
// counter, starts the heartbeat, replays subscriptions in registration
// order, then drains the outbound queue.
func (m *Manager) handleOpen(conn Conn) error {
	m.mu.Lock()
	if m.intentional {
		// Disconnect raced the dial; discard the connection.
		m.mu.Unlock()
		conn.Close(1000, "")
		return ErrAlreadyClosed
	}

	m.conn = conn
	m.gen++
	gen := m.gen
	m.status = StatusConnected
	m.reconnectAttempts = 0
	m.lastConnected = time.Now()
	m.lastError = nil
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}

	m.stopHeartbeatLocked()
	stop := make(chan struct{})
	m.heartbeatStop = stop

	replay := m.replayFramesLocked()
	onOpen := m.handlers.OnOpen
	m.mu.Unlock()

	m.logger.Info("connected", "url", m.cfg.URL, "channels", len(replay))
	if onOpen != nil {
		onOpen()
	}

	// Resubscribe before draining the backlog so the server observes
	// "subscriptions, then queued traffic" on every reconnect.
	for _, frame := range replay {
		if err := m.transmit(conn, frame); err != nil {
			m.logger.Warn("resubscribe failed", "channel", frame.Channel, "error", err)
		}
	}
	m.drainQueue(conn)

	go m.heartbeatLoop(stop)
	go m.readLoop(conn, gen)

	return nil
}

// replayFramesLocked builds subscribe control frames for every
// registered channel in registration order. The server tracks one
// subscription per channel, so the first local subscription's filters
// stand in for the channel.
func (m *Manager) replayFramesLocked() []Message {
	frames := make([]Message, 0, len(m.subOrder))
	for _, ch := range m.subOrder {
		list := m.subs[ch]
		if len(list) == 0 {
			continue
		}
		frames = append(frames, controlMessage("subscribe", ch, list[0].filters))
	}
	return frames
}

// Disconnect closes the connection intentionally, suppressing
// auto-reconnect and cancelling any pending reconnect or heartbeat
// timer. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.intentional = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.stopHeartbeatLocked()

	conn := m.conn
	m.conn = nil
	m.gen++ // orphan the read loop so its close event is ignored
	if m.status != StatusDisconnected {
		m.lastDisconnected = time.Now()
	}
	m.status = StatusDisconnected
	m.mu.Unlock()

	if conn != nil {
		conn.Close(1000, "client disconnect")
		m.logger.Info("disconnected")
	}
}

// Subscribe registers interest in a channel. The returned function
// removes exactly this subscription; when it removes the last
// subscription on the channel, the channel is dropped from the
// registry and the server is told — individual filter sets are a
// client-side refinement only, the server tracks one subscription per
// channel.
func (m *Manager) Subscribe(channel string, callback Callback, filters *Filters) func() {
	sub := &subscription{
		channel:  channel,
		callback: callback,
		filters:  filters,
	}

	m.mu.Lock()
	if _, ok := m.subs[channel]; !ok {
		m.subOrder = append(m.subOrder, channel)
	}
	m.subs[channel] = append(m.subs[channel], sub)
	connected := m.connectedLocked()
	m.mu.Unlock()

	m.logger.Debug("subscribed", "channel", channel)

	if connected {
		m.Send(controlMessage("subscribe", channel, filters))
	}

	return func() { m.removeSubscription(sub) }
}

// removeSubscription drops one subscription. Server notification is
// sent only when the channel's last subscription goes away, and only
// while connected.
func (m *Manager) removeSubscription(sub *subscription) {
	m.mu.Lock()
	list := m.subs[sub.channel]
	for i, s := range list {
		if s == sub {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}

	notify := false
	if len(list) == 0 {
		delete(m.subs, sub.channel)
		m.dropChannelOrderLocked(sub.channel)
		notify = true
	} else {
		m.subs[sub.channel] = list
	}
	connected := m.connectedLocked()
	m.mu.Unlock()

	if notify {
		m.logger.Debug("channel released", "channel", sub.channel)
		if connected {
			m.Send(controlMessage("unsubscribe", sub.channel, nil))
		}
	}
}

// Unsubscribe removes every subscription on the channel at once.
func (m *Manager) Unsubscribe(channel string) {
	m.mu.Lock()
	_, existed := m.subs[channel]
	delete(m.subs, channel)
	m.dropChannelOrderLocked(channel)
	connected := m.connectedLocked()
	m.mu.Unlock()

	if !existed {
		return
	}

	m.logger.Debug("unsubscribed all", "channel", channel)
	if connected {
		m.Send(controlMessage("unsubscribe", channel, nil))
	}
}

func (m *Manager) dropChannelOrderLocked(channel string) {
	for i, ch := range m.subOrder {
		if ch == channel {
			m.subOrder = append(m.subOrder[:i], m.subOrder[i+1:]...)
			return
		}
	}
}

// Send transmits a message, fire-and-forget. Missing envelope fields
// are filled in. While disconnected, or when transmission fails, the
// message is queued for the next reconnect instead of being dropped;
// no error is ever surfaced to the caller.
func (m *Manager) Send(msg Message) {
	if msg.Type == "" {
		msg.Type = TypePing
	}
	if msg.Channel == "" {
		msg.Channel = ChannelDefault
	}
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}

	m.mu.Lock()
	conn := m.conn
	connected := m.connectedLocked()
	if !connected {
		evicted := m.queue.Push(msg)
		queued := m.queue.Len()
		m.mu.Unlock()

		if evicted {
			m.logger.Warn("outbound queue full, dropped oldest message",
				"max_queue_size", m.cfg.MaxQueueSize,
			)
		}
		m.logger.Debug("queued message while disconnected",
			"channel", msg.Channel,
			"queued", queued,
		)
		return
	}
	m.mu.Unlock()

	if err := m.transmit(conn, msg); err != nil {
		m.mu.Lock()
		m.queue.Push(msg)
		m.mu.Unlock()
		m.logger.Warn("send failed, message queued",
			"channel", msg.Channel,
			"error", err,
		)
	}
}

// transmit marshals and writes one frame on the given connection.
func (m *Manager) transmit(conn Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(data)
}

// drainQueue flushes queued messages strictly FIFO. A failed write
// re-fronts the message and halts until the next reconnect.
func (m *Manager) drainQueue(conn Conn) {
	for {
		m.mu.Lock()
		msg, ok := m.queue.Pop()
		m.mu.Unlock()
		if !ok {
			return
		}

		if err := m.transmit(conn, msg); err != nil {
			m.mu.Lock()
			m.queue.PushFront(msg)
			remaining := m.queue.Len()
			m.mu.Unlock()

			m.logger.Warn("queue drain halted",
				"error", err,
				"remaining", remaining,
			)
			return
		}
	}
}

// State returns a snapshot of the connection state. The snapshot is an
// independent copy; mutating it has no effect on the manager.
func (m *Manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := ConnectionState{
		Status:            m.status,
		IsConnected:       m.status == StatusConnected,
		ReconnectAttempts: m.reconnectAttempts,
		LastConnected:     m.lastConnected,
		LastDisconnected:  m.lastDisconnected,
	}
	if m.lastError != nil {
		e := *m.lastError
		st.LastError = &e
	}
	return st
}

// IsConnected reports whether both the manager status and the
// transport agree the connection is live.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectedLocked()
}

func (m *Manager) connectedLocked() bool {
	return m.status == StatusConnected && m.conn != nil && m.conn.Open()
}

// SetEventHandlers merges the given handlers into the existing set.
// Handlers omitted (nil) keep their previous value.
func (m *Manager) SetEventHandlers(h Handlers) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if h.OnOpen != nil {
		m.handlers.OnOpen = h.OnOpen
	}
	if h.OnClose != nil {
		m.handlers.OnClose = h.OnClose
	}
	if h.OnError != nil {
		m.handlers.OnError = h.OnError
	}
	if h.OnMessage != nil {
		m.handlers.OnMessage = h.OnMessage
	}
	if h.OnReconnect != nil {
		m.handlers.OnReconnect = h.OnReconnect
	}
	if h.OnReconnectFailed != nil {
		m.handlers.OnReconnectFailed = h.OnReconnectFailed
	}
}

// QueueLen reports the number of messages waiting for reconnect.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queue.Len()
}

// readLoop consumes frames until the connection dies, then hands the
// close event to the reconnect logic. gen guards against a stale loop
// acting on a connection the manager already replaced.
func (m *Manager) readLoop(conn Conn, gen int) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		m.route(data)
	}
}

// handleClose records the close event and decides whether to schedule
// a reconnect.
func (m *Manager) handleClose(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}

	ce, ok := err.(*CloseError)
	if !ok {
		// Abnormal termination without a close handshake.
		ce = &CloseError{
			Code:      1006,
			Reason:    err.Error(),
			WasClean:  false,
			Timestamp: time.Now(),
		}
	}

	m.conn = nil
	m.gen++
	m.lastError = ce
	m.lastDisconnected = ce.Timestamp
	m.stopHeartbeatLocked()

	onClose := m.handlers.OnClose

	switch {
	case !retryable(ce.Code):
		// Normal closure or an application-level rejection: settle and
		// wait for an explicit Connect.
		if ce.Code >= 4000 {
			m.status = StatusError
		} else {
			m.status = StatusDisconnected
		}
		m.mu.Unlock()

		m.logger.Info("connection closed, not retrying",
			"code", ce.Code,
			"reason", ce.Reason,
		)

	case m.reconnectAttempts >= m.cfg.MaxReconnectAttempts:
		m.status = StatusError
		onFailed := m.handlers.OnReconnectFailed
		m.mu.Unlock()

		m.logger.Error("reconnect budget exhausted",
			"attempts", m.cfg.MaxReconnectAttempts,
		)
		if onFailed != nil {
			onFailed()
		}

	default:
		m.scheduleReconnectLocked()
		m.mu.Unlock()

		m.logger.Warn("connection lost, reconnecting",
			"code", ce.Code,
			"reason", ce.Reason,
		)
	}

	if onClose != nil {
		onClose(*ce)
	}
}

// scheduleReconnectLocked arms the backoff timer for the next attempt.
// Status flips to reconnecting at scheduling time, not when the timer
// fires.
func (m *Manager) scheduleReconnectLocked() {
	m.status = StatusReconnecting

	attempt := m.reconnectAttempts + 1
	delay := backoffDelay(m.cfg.ReconnectBaseWait, m.cfg.ReconnectMaxWait, attempt)

	m.logger.Debug("reconnect scheduled",
		"attempt", attempt,
		"delay", delay,
	)
	m.reconnectTimer = time.AfterFunc(delay, m.reconnectFire)
}

// backoffDelay is min(base * 2^(attempt-1), max). No jitter: the
// schedule is deterministic.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt-1 >= 31 {
		return max
	}
	d := base << uint(attempt-1)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// reconnectFire runs one reconnect attempt.
func (m *Manager) reconnectFire() {
	m.mu.Lock()
	if m.intentional || m.status != StatusReconnecting {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.reconnectAttempts++
	attempt := m.reconnectAttempts
	onReconnect := m.handlers.OnReconnect
	m.mu.Unlock()

	m.logger.Info("reconnecting", "attempt", attempt)
	if onReconnect != nil {
		onReconnect(attempt)
	}

	if err := m.Connect(context.Background()); err != nil {
		m.mu.Lock()
		if m.intentional {
			m.mu.Unlock()
			return
		}
		if m.reconnectAttempts >= m.cfg.MaxReconnectAttempts {
			m.status = StatusError
			onFailed := m.handlers.OnReconnectFailed
			m.mu.Unlock()

			m.logger.Error("reconnect budget exhausted",
				"attempts", m.cfg.MaxReconnectAttempts,
			)
			if onFailed != nil {
				onFailed()
			}
			return
		}
		m.scheduleReconnectLocked()
		m.mu.Unlock()
	}
}

// heartbeatLoop pings while connected. The loop dies with its
// connection; no ping is ever sent while disconnected.
func (m *Manager) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !m.IsConnected() {
				continue
			}
			m.Send(Message{
				Type:    TypePing,
				Channel: ChannelHeartbeat,
			})
		}
	}
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

// route parses an inbound frame and delivers it to matching
// subscriptions in registration order. Malformed frames are dropped.
// Pongs acknowledge the heartbeat and are consumed here.
func (m *Manager) route(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	if msg.Type == TypePong {
		return
	}

	m.mu.Lock()
	subs := append([]*subscription(nil), m.subs[msg.Channel]...)
	onMessage := m.handlers.OnMessage
	m.mu.Unlock()

	if onMessage != nil {
		onMessage(msg)
	}

	for _, sub := range subs {
		if !sub.filters.Matches(&msg) {
			continue
		}
		m.dispatch(sub, msg)
	}
}

// dispatch invokes one callback with panic isolation so a misbehaving
// subscriber cannot break delivery to the rest of the channel.
func (m *Manager) dispatch(sub *subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("subscriber callback panicked",
				"channel", sub.channel,
				"panic", r,
			)
		}
	}()
	sub.callback(msg)
}

// controlMessage builds a system-channel subscribe/unsubscribe frame.
// Control traffic reuses the generic envelope; there is no dedicated
// control type.
func controlMessage(action, channel string, filters *Filters) Message {
	data, _ := json.Marshal(controlAction{
		Action:  action,
		Channel: channel,
		Filters: filters,
	})
	return Message{
		Type:      TypePing,
		Channel:   ChannelSystem,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		MessageID: uuid.NewString(),
	}
}

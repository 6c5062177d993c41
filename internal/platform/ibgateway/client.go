package ibgateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// Session errors.
var (
	// ErrNotConnected is returned when a request is issued on a session that
	// never became ready or has already been closed.
	ErrNotConnected = errors.New("ibgateway: session not connected")

	// ErrConnectionLost is returned when the session died underneath
	// outstanding requests. The session is unusable; the caller must dial a
	// new one.
	ErrConnectionLost = errors.New("ibgateway: connection lost")

	// ErrRequestTimeout is returned when no terminal event arrived for a
	// request within the configured bound. The session itself is still
	// usable; the request may be retried with a fresh id.
	ErrRequestTimeout = errors.New("ibgateway: request timed out")

	// ErrHandshakeTimeout is returned when the endpoint accepted the
	// connection but never acked the handshake. The session is dead;
	// retrying means dialing a new one.
	ErrHandshakeTimeout = errors.New("ibgateway: handshake timed out")
)

// ProviderError is an error event reported by the gateway for a request.
type ProviderError struct {
	ReqID int
	Code  int
	Msg   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ibgateway: error %d for request %d: %s", e.Code, e.ReqID, e.Msg)
}

// fatalCodes are gateway error codes that mean the whole session is gone,
// not just one request. All pending waiters are released when one arrives.
var fatalCodes = map[int]bool{
	502:  true, // couldn't connect to TWS
	504:  true, // not connected
	1100: true, // connectivity lost
}

// Fatal reports whether the error poisons the session.
func (e *ProviderError) Fatal() bool { return fatalCodes[e.Code] }

// RawBar is one historical bar event as it arrives off the wire. Date keeps
// the gateway's own format ("20060102" for daily bars, "20060102  15:04:05"
// with a double space for intraday) and is parsed by the adapter layer.
type RawBar struct {
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Gateway dials sessions against a configured endpoint. It tracks when each
// client identity last disconnected so the per-identity cooldown the remote
// side requires is respected across sessions.
type Gateway struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	released map[int]time.Time
}

// NewGateway creates a session factory for the configured endpoint.
func NewGateway(cfg Config, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{cfg: cfg, log: log, released: make(map[int]time.Time)}
}

// Connect opens a session under the given client identity. It blocks through
// the identity cooldown, the handshake and the post-connect settle delay, so
// the returned client is ready for requests.
func (g *Gateway) Connect(ctx context.Context, clientID int) (*Client, error) {
	if err := g.awaitCooldown(ctx, clientID); err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))
	conn, err := net.DialTimeout("tcp", addr, g.cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("ibgateway: dial %s: %w", addr, err)
	}

	c := &Client{
		conn:     conn,
		timeout:  g.cfg.RequestTimeout,
		log:      g.log.With("client_id", clientID),
		pending:  make(map[int]*pendingRequest),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		clientID: clientID,
		onClose: func() {
			g.mu.Lock()
			g.released[clientID] = time.Now()
			g.mu.Unlock()
		},
	}

	if err := c.send(msgStartAPI, strconv.Itoa(clientID)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ibgateway: handshake: %w", err)
	}

	go c.receiveLoop()

	select {
	case <-c.ready:
	case <-c.done:
		c.Close()
		return nil, fmt.Errorf("ibgateway: handshake: %w", c.sessionErr())
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	case <-time.After(g.cfg.ConnectTimeout):
		c.Close()
		return nil, ErrHandshakeTimeout
	}

	// The gateway acks before it is actually willing to serve requests;
	// issuing one immediately gets it silently dropped.
	select {
	case <-time.After(g.cfg.SettleDelay):
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}

	g.log.Info("gateway session established", "client_id", clientID, "addr", addr)
	return c, nil
}

// awaitCooldown blocks until the identity's disconnect cooldown has elapsed.
// The remote endpoint needs time to release an identity before the same id
// may connect again.
func (g *Gateway) awaitCooldown(ctx context.Context, clientID int) error {
	g.mu.Lock()
	wait := g.cfg.Cooldown - time.Since(g.released[clientID])
	g.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Client is one live gateway session. Its request state is ephemeral and
// owned by this session only; a new session starts from a clean slate.
type Client struct {
	conn     net.Conn
	timeout  time.Duration
	log      *slog.Logger
	clientID int
	onClose  func()

	wmu sync.Mutex // serializes writes to conn

	mu      sync.Mutex
	pending map[int]*pendingRequest
	nextID  int
	err     error
	closed  bool

	readyOnce sync.Once
	ready     chan struct{} // closed once the gateway acks the handshake
	done      chan struct{} // closed when the receive loop exits
	closeOnce sync.Once
}

// pendingRequest buffers streamed bars for one outstanding request until its
// terminal event releases the completion signal.
type pendingRequest struct {
	bars []RawBar
	err  error
	done chan struct{}
}

// FetchSeries issues one historical data request and blocks until its
// terminal event, a provider error, the context deadline or the request
// timeout. An empty slice with a nil error is a valid empty series.
func (c *Client) FetchSeries(ctx context.Context, contract Contract, endAnchor, duration, barSize, dataType string) ([]RawBar, error) {
	c.mu.Lock()
	if c.closed || c.err != nil {
		err := c.err
		c.mu.Unlock()
		if err == nil {
			err = ErrNotConnected
		}
		return nil, err
	}
	c.nextID++
	id := c.nextID
	p := &pendingRequest{done: make(chan struct{})}
	c.pending[id] = p
	c.mu.Unlock()

	includeExpired := "0"
	if contract.IncludeExpired {
		includeExpired = "1"
	}
	err := c.send(msgReqHist,
		strconv.Itoa(id),
		contract.Symbol,
		contract.SecType,
		contract.Exchange,
		contract.Currency,
		contract.expirationField(),
		contract.Strike.String(),
		contract.Right,
		contract.Multiplier,
		includeExpired,
		endAnchor,
		duration,
		barSize,
		dataType,
		"1", // regular trading hours only
		"1", // date format: yyyyMMdd{  HH:mm:ss}
		"0", // keepUpToDate off for historical snapshots
	)
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("ibgateway: send request %d: %w", id, err)
	}

	c.log.Debug("historical request dispatched",
		"req_id", id, "symbol", contract.Symbol, "data_type", dataType, "duration", duration)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		if p.err != nil {
			return nil, p.err
		}
		return p.bars, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-timer.C:
		c.forget(id)
		return nil, fmt.Errorf("request %d (%s %s): %w", id, contract.Symbol, dataType, ErrRequestTimeout)
	}
}

// Close tears the session down and releases the identity for reuse after the
// cooldown. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.conn.Close()
		<-c.done
		if c.onClose != nil {
			c.onClose()
		}
		c.log.Info("gateway session closed")
	})
	return nil
}

// Err returns the fatal session error, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) sessionErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrConnectionLost
}

func (c *Client) send(fields ...string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return writeMessage(c.conn, fields...)
}

func (c *Client) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// receiveLoop consumes inbound events and demultiplexes them into the
// pending request buffers by request id. It runs for the life of the
// session, independent of any particular caller.
func (c *Client) receiveLoop() {
	defer close(c.done)

	br := bufio.NewReader(c.conn)
	for {
		fields, err := readMessage(br)
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrConnectionLost, err))
			return
		}

		switch fields[0] {
		case msgAck:
			c.readyOnce.Do(func() { close(c.ready) })

		case msgHistBar:
			c.handleBar(fields)

		case msgHistEnd:
			if len(fields) < 2 {
				continue
			}
			id, _ := strconv.Atoi(fields[1])
			c.complete(id, nil)

		case msgErr:
			c.handleError(fields)

		default:
			c.log.Debug("ignoring unknown gateway message", "tag", fields[0])
		}
	}
}

func (c *Client) handleBar(fields []string) {
	// HIST_BAR: reqID, date, open, high, low, close, volume
	if len(fields) < 8 {
		return
	}
	id, _ := strconv.Atoi(fields[1])
	open, _ := strconv.ParseFloat(fields[3], 64)
	high, _ := strconv.ParseFloat(fields[4], 64)
	low, _ := strconv.ParseFloat(fields[5], 64)
	cls, _ := strconv.ParseFloat(fields[6], 64)
	vol, _ := strconv.ParseInt(fields[7], 10, 64)

	c.mu.Lock()
	if p, ok := c.pending[id]; ok {
		p.bars = append(p.bars, RawBar{
			Date: fields[2], Open: open, High: high, Low: low, Close: cls, Volume: vol,
		})
	}
	c.mu.Unlock()
}

func (c *Client) handleError(fields []string) {
	// ERR: reqID, code, message
	if len(fields) < 4 {
		return
	}
	id, _ := strconv.Atoi(fields[1])
	code, _ := strconv.Atoi(fields[2])
	perr := &ProviderError{ReqID: id, Code: code, Msg: fields[3]}

	c.log.Error("gateway error event", "req_id", id, "code", code, "message", perr.Msg)

	if perr.Fatal() {
		// Release every waiter instead of letting them hang on a dead session.
		c.fail(perr)
		return
	}
	c.complete(id, perr)
}

// complete releases the completion signal for one request.
func (c *Client) complete(id int, err error) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		p.err = err
	}
	c.mu.Unlock()
	if ok {
		close(p.done)
	}
}

// fail marks the session errored and releases all pending waiters.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	released := make([]*pendingRequest, 0, len(c.pending))
	for id, p := range c.pending {
		p.err = err
		released = append(released, p)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	for _, p := range released {
		close(p.done)
	}
}

package push

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/TrackSync/internal/broker/messages"
	"github.com/BearBump/TrackSync/internal/models"
	"github.com/BearBump/TrackSync/internal/services/deliveries"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

// ErrReadOnly is returned by Conn.Write on receive-only channels.
var ErrReadOnly = errors.New("push channel is receive-only")

// Conn is one open push connection. Read blocks until a frame arrives or the connection
// fails; it returns io.EOF when the peer closed cleanly and an error once Close has been called.
type Conn interface {
	Read() ([]byte, error)
	Write(frame []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Sink receives decoded updates and connection status changes from the Run goroutine.
type Sink interface {
	ApplyUpdate(u *models.DeliveryUpdate)
	SetConnection(st models.ConnectionState)
}

const DefaultReconnectDelay = 1500 * time.Millisecond

type input struct {
	ev    Event
	seq   uint64
	conn  Conn
	frame []byte
	err   error
}

// Client keeps one push connection alive for the lifetime of Run.
type Client struct {
	url    string
	dialer Dialer
	sink   Sink
	clk    clockwork.Clock

	reconnectDelay time.Duration

	inputs chan input

	mu     sync.Mutex
	state  models.ConnectionState
	conn   Conn
	seq    uint64 // identifies the current dial; inputs from older dials are dropped
	timer  clockwork.Timer
	frames int64
	drops  int64
}

func NewClient(url string, dialer Dialer, sink Sink, clk clockwork.Clock) *Client {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Client{
		url:            url,
		dialer:         dialer,
		sink:           sink,
		clk:            clk,
		reconnectDelay: DefaultReconnectDelay,
		inputs:         make(chan input),
		state:          models.DisabledState(),
	}
}

func (c *Client) WithReconnectDelay(d time.Duration) *Client {
	if d > 0 {
		c.reconnectDelay = d
	}
	return c
}

// WithDialer replaces the dialer; it must be called before Run.
func (c *Client) WithDialer(d Dialer) *Client {
	if d != nil {
		c.dialer = d
	}
	return c
}

func (c *Client) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type Stats struct {
	Frames  int64 `json:"frames"`
	Dropped int64 `json:"dropped"`
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Frames: c.frames, Dropped: c.drops}
}

// Send writes payload as a JSON frame. It reports false unless a live connection accepted it.
func (c *Client) Send(payload any) bool {
	b, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	c.mu.Lock()
	conn := c.conn
	live := c.state.Mode == models.ModeLivePush
	c.mu.Unlock()
	if conn == nil || !live {
		return false
	}
	if err := conn.Write(b); err != nil {
		slog.Warn("push send", "url", c.url, "error", err.Error())
		return false
	}
	return true
}

// Run connects and reconnects until ctx is cancelled. Cancellation is the user-initiated
// disconnect: the connection is closed, no reconnect stays scheduled and the state ends
// as disabled.
func (c *Client) Run(ctx context.Context) error {
	c.handle(ctx, input{ev: EventConnect})
	for {
		select {
		case <-ctx.Done():
			c.handle(ctx, input{ev: EventDisconnect})
			return ctx.Err()
		case in := <-c.inputs:
			c.handle(ctx, in)
		}
	}
}

func (c *Client) post(ctx context.Context, in input) bool {
	select {
	case c.inputs <- in:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) handle(ctx context.Context, in input) {
	c.mu.Lock()
	if in.ev != EventConnect && in.ev != EventDisconnect && in.seq != c.seq {
		c.mu.Unlock()
		if in.ev == EventOpened && in.conn != nil {
			_ = in.conn.Close()
		}
		return
	}
	prev := c.state
	next, actions := Transition(prev, in.ev)
	c.state = next
	if in.ev == EventOpened {
		c.conn = in.conn
	}
	if in.ev == EventClosed {
		c.conn = nil
	}
	c.mu.Unlock()

	switch in.ev {
	case EventOpened:
		slog.Info("push connected", "url", c.url)
	case EventErrored:
		slog.Warn("push error", "url", c.url, "error", errString(in.err))
	case EventClosed:
		slog.Info("push closed", "url", c.url, "reconnect_in", c.reconnectDelay)
	}

	if next != prev {
		c.sink.SetConnection(next)
	}
	for _, a := range actions {
		c.perform(ctx, a, in)
	}
}

func (c *Client) perform(ctx context.Context, a Action, in input) {
	switch a {
	case ActionDial:
		c.mu.Lock()
		c.seq++
		seq := c.seq
		c.mu.Unlock()
		go c.dial(ctx, seq)
	case ActionScheduleReconnect:
		c.mu.Lock()
		seq := c.seq
		if c.timer != nil {
			c.timer.Stop()
		}
		c.timer = c.clk.AfterFunc(c.reconnectDelay, func() {
			c.post(ctx, input{ev: EventReconnectDue, seq: seq})
		})
		c.mu.Unlock()
	case ActionCancelReconnect:
		c.mu.Lock()
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.mu.Unlock()
	case ActionClose:
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.seq++
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
	case ActionDeliver:
		c.deliver(in.frame)
	}
}

func (c *Client) dial(ctx context.Context, seq uint64) {
	conn, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		if c.post(ctx, input{ev: EventErrored, seq: seq, err: err}) {
			c.post(ctx, input{ev: EventClosed, seq: seq})
		}
		return
	}
	// закрываем при любом выходе из цикла чтения, в том числе после EOF от сервера
	defer func() { _ = conn.Close() }()
	if !c.post(ctx, input{ev: EventOpened, seq: seq, conn: conn}) {
		return
	}
	for {
		frame, err := conn.Read()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) && !c.closedByUs(seq) {
				c.post(ctx, input{ev: EventErrored, seq: seq, err: err})
			}
			c.post(ctx, input{ev: EventClosed, seq: seq})
			return
		}
		if !c.post(ctx, input{ev: EventMessageReceived, seq: seq, frame: frame}) {
			return
		}
	}
}

func (c *Client) closedByUs(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seq != c.seq
}

func (c *Client) deliver(frame []byte) {
	raw, ok := messages.ExtractDelivery(frame)
	var u *models.DeliveryUpdate
	if ok {
		u = deliveries.NormalizeUpdate(raw, c.clk.Now().UTC())
	}
	c.mu.Lock()
	c.frames++
	if u == nil || u.ID == "" {
		c.drops++
		c.mu.Unlock()
		slog.Debug("push frame ignored", "url", c.url, "bytes", len(frame))
		return
	}
	c.mu.Unlock()
	c.sink.ApplyUpdate(u)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

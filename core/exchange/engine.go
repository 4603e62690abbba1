// Package exchange turns the board's notification-only message stream into
// request/response calls.
//
// The board has no correlation token: a request is a single opcode and the
// response is just another board message. The Engine sends the opcode,
// watches the shared board-message stream with a per-request Matcher, and
// retransmits on timeout until the retry budget is spent. Every request is
// resolved exactly once, and its stream subscription and timer are released
// on every terminal path (match, exhaustion, cancel).
//
// Several requests may be pending at once, each with its own matcher; board
// messages that satisfy no matcher are ignored.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kabili207/apoxcan-go/core/codec"
	"github.com/kabili207/apoxcan-go/core/command"
)

// DefaultTimeout is how long each attempt waits for a matching response.
const DefaultTimeout = 1000 * time.Millisecond

// ErrCanceled resolves a request that was canceled before it completed.
var ErrCanceled = errors.New("request canceled")

// TimeoutError reports that no matching response arrived in any attempt.
type TimeoutError struct {
	Opcode   command.Opcode
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no response received for command %s after %d attempt(s)", e.Opcode, e.Attempts)
}

// Matcher decides whether a board message answers a pending request.
type Matcher func(msg codec.BoardMessage) bool

// EchoMatcher accepts a response whose command byte equals the low 7 bits of
// op, which is how the board acknowledges ordinary commands. The decoder has
// already cleared the response flag, so the comparison is exact.
func EchoMatcher(op command.Opcode) Matcher {
	want := op.Echo()
	return func(msg codec.BoardMessage) bool {
		return msg.Command == want
	}
}

// Callback receives the outcome of a request: the response data, or an error.
type Callback func(data []byte, err error)

// Request describes one command exchange.
type Request struct {
	// Opcode is sent on every attempt.
	Opcode command.Opcode
	// Retries is the number of retransmissions after the first attempt.
	// Zero means send once, wait once, then fail.
	Retries int
	// Match selects the response. Defaults to EchoMatcher(Opcode).
	Match Matcher
	// OnResolve is called exactly once with the outcome. May be nil, in which
	// case retries still happen but the outcome is discarded.
	OnResolve Callback
}

// Link is the part of a transport the engine needs.
type Link interface {
	SendCommand(opcode uint8) error
	SubscribeBoardMessages(fn func(codec.BoardMessage)) (unsubscribe func())
}

// Config configures an Engine.
type Config struct {
	// Timeout is the wait per attempt. Default: 1000 ms.
	Timeout time.Duration

	// Logger for exchange events. Falls back to slog.Default() if nil.
	Logger *slog.Logger
}

// Engine issues board commands and correlates their responses.
type Engine struct {
	cfg     Config
	link    Link
	log     *slog.Logger
	mu      sync.Mutex
	pending map[uint64]*Pending
	nextID  uint64

	// afterFunc allows overriding time.AfterFunc for testing. The returned
	// function stops the timer.
	afterFunc func(d time.Duration, f func()) (stop func() bool)
}

// New creates an Engine sending through link.
func New(link Link, cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:     cfg,
		link:    link,
		log:     logger.WithGroup("exchange"),
		pending: make(map[uint64]*Pending),
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
	}
}

// Send transmits req.Opcode and returns immediately. The outcome is delivered
// later through req.OnResolve.
func (e *Engine) Send(req Request) *Pending {
	if req.Retries < 0 {
		req.Retries = 0
	}
	match := req.Match
	if match == nil {
		match = EchoMatcher(req.Opcode)
	}

	p := &Pending{
		engine:    e,
		opcode:    req.Opcode,
		match:     match,
		onResolve: req.OnResolve,
		remaining: req.Retries,
	}

	e.mu.Lock()
	e.nextID++
	p.id = e.nextID
	e.pending[p.id] = p
	e.mu.Unlock()

	// Subscribe before the first transmission so a fast reply cannot be missed.
	p.mu.Lock()
	p.unsubscribe = e.link.SubscribeBoardMessages(p.handle)
	p.attempts = 1
	p.arm()
	p.mu.Unlock()

	e.transmit(p, 1)
	return p
}

// Do sends req and blocks until it resolves or ctx is done. Canceling ctx
// cancels the request.
func (e *Engine) Do(ctx context.Context, req Request) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	cb := req.OnResolve
	req.OnResolve = func(data []byte, err error) {
		if cb != nil {
			cb(data, err)
		}
		ch <- result{data, err}
	}

	p := e.Send(req)
	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		p.Cancel()
		r := <-ch
		if errors.Is(r.err, ErrCanceled) {
			return nil, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		}
		return r.data, r.err
	}
}

// PendingCount returns the number of unresolved requests.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *Engine) transmit(p *Pending, attempt int) {
	if err := e.link.SendCommand(uint8(p.opcode)); err != nil {
		e.log.Warn("send failed", "opcode", p.opcode, "attempt", attempt, "error", err)
		return
	}
	if attempt > 1 {
		e.log.Debug("retrying", "opcode", p.opcode, "attempt", attempt)
	} else {
		e.log.Debug("sent", "opcode", p.opcode)
	}
}

func (e *Engine) forget(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, id)
}

// Pending is an in-flight request. It is owned by the Engine; callers may
// only cancel it.
type Pending struct {
	id        uint64
	engine    *Engine
	opcode    command.Opcode
	match     Matcher
	onResolve Callback

	mu          sync.Mutex
	remaining   int
	attempts    int
	gen         uint64
	stopTimer   func() bool
	unsubscribe func()
	done        bool
}

// Opcode returns the command this request sends.
func (p *Pending) Opcode() command.Opcode {
	return p.opcode
}

// Cancel resolves the request with ErrCanceled if it is still pending.
// Returns false if the request had already resolved.
func (p *Pending) Cancel() bool {
	if !p.claim() {
		return false
	}
	p.release()
	p.engine.log.Debug("canceled", "opcode", p.opcode)
	p.resolve(nil, ErrCanceled)
	return true
}

// arm starts the timeout for the current attempt. Caller holds p.mu.
func (p *Pending) arm() {
	p.gen++
	gen := p.gen
	p.stopTimer = p.engine.afterFunc(p.engine.cfg.Timeout, func() { p.onTimeout(gen) })
}

// claim marks the request as finished. Only the first caller wins.
func (p *Pending) claim() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return false
	}
	p.done = true
	if p.stopTimer != nil {
		p.stopTimer()
	}
	return true
}

func (p *Pending) isDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// release drops the stream subscription and the engine's reference.
func (p *Pending) release() {
	p.mu.Lock()
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	p.engine.forget(p.id)
}

func (p *Pending) resolve(data []byte, err error) {
	if p.onResolve != nil {
		p.onResolve(data, err)
	}
}

func (p *Pending) handle(msg codec.BoardMessage) {
	if p.isDone() || !p.match(msg) {
		return
	}
	if !p.claim() {
		return
	}
	p.release()
	p.engine.log.Debug("response matched", "opcode", p.opcode, "id", msg.ID, "command", msg.Command)
	p.resolve(msg.Data, nil)
}

func (p *Pending) onTimeout(gen uint64) {
	p.mu.Lock()
	if p.done || gen != p.gen {
		p.mu.Unlock()
		return
	}
	if p.remaining > 0 {
		p.remaining--
		p.attempts++
		attempt := p.attempts
		p.arm()
		p.mu.Unlock()
		p.engine.transmit(p, attempt)
		return
	}
	p.done = true
	attempts := p.attempts
	p.mu.Unlock()

	p.release()
	p.engine.log.Debug("timed out", "opcode", p.opcode, "attempts", attempts)
	p.resolve(nil, &TimeoutError{Opcode: p.opcode, Attempts: attempts})
}

package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Correlator defaults.
const (
	DefaultTimeout       = 10 * time.Second
	DefaultMaxPendingAge = 5 * time.Minute
	DefaultSweepInterval = 60 * time.Second

	// DefaultClientID is the client segment of command and response topics.
	DefaultClientID = "rr"

	commandIDLength = 8
	replyLogLimit   = 200
)

// Logger defines the logging interface used by the Correlator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher is the transport used to send commands.
// This is typically implemented by the connection manager.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// Outcome is the terminal state of one command.
type Outcome string

// Command outcomes.
const (
	OutcomeReplied  Outcome = "replied"
	OutcomeTimedOut Outcome = "timed_out"
	OutcomeExpired  Outcome = "expired"
	OutcomeCanceled Outcome = "canceled"
	OutcomeRejected Outcome = "rejected"
)

// Result is the outcome of SendCommand.
type Result struct {
	Success    bool   `json:"success"`
	CommandID  string `json:"command_id,omitempty"`
	Command    string `json:"command"`
	Parameters string `json:"parameters,omitempty"`

	// Response is the decoded reply: a JSON value when the payload parses,
	// otherwise the trimmed string.
	Response any `json:"response,omitempty"`

	Error   string  `json:"error,omitempty"`
	Outcome Outcome `json:"outcome"`

	// RetryAfter is set when the rate limiter denied the call. It is
	// encoded as whole seconds.
	RetryAfter time.Duration `json:"-"`

	Err error `json:"-"`
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds.
func (r Result) RetryAfterSeconds() int {
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

// MarshalJSON encodes RetryAfter as "retry_after" in seconds.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	return json.Marshal(struct {
		plain
		RetryAfter int `json:"retry_after,omitempty"`
	}{plain(r), r.RetryAfterSeconds()})
}

// Config configures a Correlator.
type Config struct {
	// BaseTopic is "{prefix}/{account}/{vehicle}".
	BaseTopic string

	// ClientID is the client segment of command topics. Default "rr".
	ClientID string

	QoS           byte
	Timeout       time.Duration
	MaxPendingAge time.Duration
	SweepInterval time.Duration
}

// Stats are cumulative correlator counters.
type Stats struct {
	Pending  int    `json:"pending"`
	Sent     uint64 `json:"sent"`
	Replied  uint64 `json:"replied"`
	TimedOut uint64 `json:"timed_out"`
	Expired  uint64 `json:"expired"`
	Rejected uint64 `json:"rejected"`
	Late     uint64 `json:"late_replies"`

	// RateRemaining is the number of commands left in the current
	// rate-limit window.
	RateRemaining int `json:"rate_remaining"`
}

// reply settles one pending command.
type reply struct {
	payload string
	outcome Outcome
	err     error
}

// pending is one issued command awaiting its reply.
type pending struct {
	id      string
	command string
	issued  time.Time
	result  chan reply // buffered 1; written once by whoever removes the entry
}

// Correlator turns fire-and-forget command publishes into awaitable
// request/response exchanges.
//
// Each command gets an 8-character ID, is published to
// {base}/client/{client}/command/{id}, and the caller waits for
// {base}/client/{client}/response/{id}. A pending entry is removed by exactly
// one of: its reply, its timeout, the caller's context, the stale sweep, or
// Shutdown. Whoever removes it settles it, so a command is resolved once and
// late or duplicate replies are discarded.
//
// The Correlator never touches the object store.
type Correlator struct {
	cfg       Config
	publisher Publisher
	limiter   *RateLimiter
	logger    Logger
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	pending map[string]*pending

	closing  atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	sent     atomic.Uint64
	replied  atomic.Uint64
	timedOut atomic.Uint64
	expired  atomic.Uint64
	rejected atomic.Uint64
	late     atomic.Uint64
}

// NewCorrelator creates a correlator. Call Start to run the stale sweep.
//
// Parameters:
//   - cfg: Topics, QoS and timing; zero durations use the defaults
//   - publisher: Transport for command publishes
//   - limiter: Outbound rate limiter; nil uses the default budget
//
// Returns:
//   - *Correlator: Ready to send commands
func NewCorrelator(cfg Config, publisher Publisher, limiter *RateLimiter) *Correlator {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxPendingAge <= 0 {
		cfg.MaxPendingAge = DefaultMaxPendingAge
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateCalls, DefaultRatePeriod)
	}
	return &Correlator{
		cfg:       cfg,
		publisher: publisher,
		limiter:   limiter,
		logger:    noopLogger{},
		now:       time.Now,
		newID:     newCommandID,
		pending:   make(map[string]*pending),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for the correlator.
func (c *Correlator) SetLogger(logger Logger) {
	c.logger = logger
}

// newCommandID returns the first 8 hex characters of a random UUID.
func newCommandID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:commandIDLength]
}

// CommandTopic returns the topic a command with the given ID is published to.
func (c *Correlator) CommandTopic(id string) string {
	return fmt.Sprintf("%s/client/%s/command/%s", c.cfg.BaseTopic, c.cfg.ClientID, id)
}

// ResponseTopic returns the topic the reply to command id arrives on.
func (c *Correlator) ResponseTopic(id string) string {
	return fmt.Sprintf("%s/client/%s/response/%s", c.cfg.BaseTopic, c.cfg.ClientID, id)
}

// ResponseFilter returns the subscription filter covering all replies.
func (c *Correlator) ResponseFilter() string {
	return c.ResponseTopic("+")
}

// Start runs the stale-command sweep until ctx is cancelled or Shutdown.
func (c *Correlator) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.sweepLoop(ctx)
}

// SendCommand publishes a command and waits for its reply.
//
// Parameters:
//   - ctx: Cancels the wait (the command is settled as canceled)
//   - command: Command text, e.g. "stat"
//   - parameters: Optional arguments appended after a space
//   - timeout: Reply timeout; zero uses the configured default
//
// Returns:
//   - Result: Success false with Error and Err set on any failure
func (c *Correlator) SendCommand(ctx context.Context, command, parameters string, timeout time.Duration) Result {
	command = strings.TrimSpace(command)
	parameters = strings.TrimSpace(parameters)
	res := Result{Command: command, Parameters: parameters}

	if c.closing.Load() {
		return c.reject(res, ErrClosed, "Command channel is shut down")
	}
	if command == "" {
		return c.reject(res, ErrEmptyCommand, "Command is empty")
	}
	if !c.limiter.CanCall() {
		wait := c.limiter.TimeToNextCall()
		res.RetryAfter = wait
		c.logger.Warn("command rate limit exceeded", "command", command, "retry_after", wait)
		return c.reject(res, ErrRateLimited,
			fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", res.RetryAfterSeconds()))
	}
	if !c.publisher.IsConnected() {
		return c.reject(res, ErrNotConnected, "Not connected to MQTT broker")
	}
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	p, ok := c.register(command)
	if !ok {
		return c.reject(res, ErrClosed, "Command channel is shut down")
	}
	res.CommandID = p.id

	payload := command
	if parameters != "" {
		payload = command + " " + parameters
	}
	topic := c.CommandTopic(p.id)
	c.logger.Debug("sending command", "command_id", p.id, "topic", topic, "payload", payload)

	if err := c.publisher.Publish(topic, []byte(payload), c.cfg.QoS, false); err != nil {
		c.remove(p.id)
		return c.reject(res, fmt.Errorf("%w: %w", ErrPublishFailed, err), "Failed to publish command")
	}
	c.sent.Add(1)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-p.result:
		return c.settle(res, r)
	case <-timer.C:
		return c.abandon(res, p, reply{outcome: OutcomeTimedOut, err: ErrTimeout})
	case <-ctx.Done():
		return c.abandon(res, p, reply{outcome: OutcomeCanceled, err: ctx.Err()})
	}
}

// abandon settles p from the caller side. If a reply or sweep won the race
// the already-delivered result is used instead.
func (c *Correlator) abandon(res Result, p *pending, r reply) Result {
	if c.remove(p.id) {
		if r.outcome == OutcomeTimedOut {
			c.timedOut.Add(1)
			c.logger.Warn("command timed out", "command_id", p.id, "command", p.command)
		}
		return c.settle(res, r)
	}
	return c.settle(res, <-p.result)
}

func (c *Correlator) settle(res Result, r reply) Result {
	res.Outcome = r.outcome
	if r.err != nil {
		res.Err = r.err
		res.Error = errorText(r.err)
		return res
	}
	res.Success = true
	res.Response = decodeReply(r.payload)
	return res
}

func (c *Correlator) reject(res Result, err error, msg string) Result {
	c.rejected.Add(1)
	res.Outcome = OutcomeRejected
	res.Err = err
	res.Error = msg
	return res
}

// errorText maps terminal errors to the host-facing message.
func errorText(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrExpired):
		return "expired"
	default:
		return err.Error()
	}
}

// decodeReply returns the JSON value of payload, or the trimmed string.
func decodeReply(payload string) any {
	s := strings.TrimSpace(payload)
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

// register adds a pending entry. It fails once Shutdown has begun, since
// Shutdown drains the map only once.
func (c *Correlator) register(command string) (*pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closing.Load() {
		return nil, false
	}
	id := c.newID()
	for c.pending[id] != nil {
		id = c.newID()
	}
	p := &pending{
		id:      id,
		command: command,
		issued:  c.now(),
		result:  make(chan reply, 1),
	}
	c.pending[id] = p
	return p, true
}

// remove deletes a pending entry and reports whether this call removed it.
func (c *Correlator) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

// take removes and returns a pending entry.
func (c *Correlator) take(id string) (*pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return p, ok
}

// HandleReply routes a message from the response subtree.
//
// Parameters:
//   - topic: Wire topic of the message
//   - payload: Reply payload
//
// Returns:
//   - bool: true if topic is a response topic of this correlator (whether or
//     not a command was waiting for it)
func (c *Correlator) HandleReply(topic string, payload []byte) bool {
	prefix := c.ResponseTopic("")
	if !strings.HasPrefix(topic, prefix) {
		return false
	}
	id := strings.TrimPrefix(topic, prefix)
	if id == "" || strings.Contains(id, "/") {
		return false
	}

	p, ok := c.take(id)
	if !ok {
		c.late.Add(1)
		c.logger.Debug("discarding late or duplicate reply", "command_id", id)
		return true
	}

	c.replied.Add(1)
	body := string(payload)
	c.logger.Info("command reply received",
		"command_id", id, "command", p.command, "reply", truncate(body, replyLogLimit))
	p.result <- reply{payload: body, outcome: OutcomeReplied}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Pending returns the number of commands awaiting a reply.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Stats returns a snapshot of the correlator counters.
func (c *Correlator) Stats() Stats {
	return Stats{
		Pending:  c.Pending(),
		Sent:     c.sent.Load(),
		Replied:  c.replied.Load(),
		TimedOut: c.timedOut.Load(),
		Expired:  c.expired.Load(),
		Rejected: c.rejected.Load(),
		Late:     c.late.Load(),

		RateRemaining: c.limiter.Remaining(),
	}
}

// =============================================================================
// Sweep and shutdown
// =============================================================================

func (c *Correlator) sweepLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if c.closing.Load() {
				return
			}
			c.Sweep()
		}
	}
}

// Sweep fails every pending command older than the staleness ceiling and
// returns how many it expired.
func (c *Correlator) Sweep() int {
	cutoff := c.now().Add(-c.cfg.MaxPendingAge)

	c.mu.Lock()
	var stale []*pending
	for id, p := range c.pending {
		if p.issued.Before(cutoff) {
			stale = append(stale, p)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, p := range stale {
		c.expired.Add(1)
		p.result <- reply{outcome: OutcomeExpired, err: ErrExpired}
	}
	if len(stale) > 0 {
		c.logger.Debug("expired stale commands", "count", len(stale))
	}
	return len(stale)
}

// Shutdown stops the sweep and fails every pending command as expired.
// Safe to call multiple times.
func (c *Correlator) Shutdown() {
	c.stopOnce.Do(func() {
		c.closing.Store(true)
		close(c.done)
		c.wg.Wait()

		c.mu.Lock()
		all := c.pending
		c.pending = make(map[string]*pending)
		c.mu.Unlock()

		for _, p := range all {
			c.expired.Add(1)
			p.result <- reply{outcome: OutcomeExpired, err: ErrExpired}
		}
		if len(all) > 0 {
			c.logger.Info("pending commands expired on shutdown", "count", len(all))
		}
	})
}

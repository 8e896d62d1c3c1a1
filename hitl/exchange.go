package hitl

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Exchange pairs outbound requests with inbound responses by correlation key.
//
// A workflow calls Request (or Confirm) and blocks until an external actor
// calls Submit with the same key. Requests are published on the stream
// returned by Requests so a responder (terminal, web socket, test) can see
// what is being asked.
//
// Each key may have at most one outstanding request. A response whose key
// does not match an outstanding request never unblocks anything; what
// happens to it is decided by the UnmatchedPolicy.
//
// Exchange is safe for concurrent use.
//
// Example:
//
//	ex := hitl.NewExchange(hitl.WithTimeout(5 * time.Minute))
//	defer ex.Close()
//
//	go hitl.NewConsole(os.Stdin, os.Stdout).Serve(ctx, ex)
//
//	outcome, err := ex.Confirm(ctx, "laurie", "Are you sure you want to proceed? ")
//	if err != nil {
//	    return err
//	}
//	if outcome == hitl.Approved {
//	    // ...
//	}
type Exchange struct {
	mu       sync.Mutex
	pending  map[string]*pendingRequest
	buffered map[string][]Response
	closed   bool

	requests chan Request
	done     chan struct{}
	senders  sync.WaitGroup

	timeout     time.Duration
	policy      UnmatchedPolicy
	maxBuffered int
	streamSize  int
	logger      *zap.Logger
	metrics     *Metrics
	now         func() time.Time
}

type pendingRequest struct {
	req   Request
	reply chan Response
}

// NewExchange creates an exchange configured by opts.
func NewExchange(opts ...Option) *Exchange {
	e := &Exchange{
		pending:     make(map[string]*pendingRequest),
		buffered:    make(map[string][]Response),
		done:        make(chan struct{}),
		policy:      RejectUnmatched,
		maxBuffered: 1,
		streamSize:  16,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.requests = make(chan Request, e.streamSize)
	return e
}

// Requests returns the outbound stream of published requests.
// The channel is closed after Close once in-flight publishes have finished.
func (e *Exchange) Requests() <-chan Request {
	return e.requests
}

// Done is closed when the exchange is closed.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Request publishes req and waits for a response with the same key.
//
// It returns when:
//   - a matching response is submitted (or was buffered earlier)
//   - ctx is done: ctx.Err() is returned
//   - the exchange timeout elapses: an error matching ErrTimeout
//   - the exchange is closed: an error matching ErrClosed
//
// An empty key fails with ErrInvalidKey; a key that already has an
// outstanding request fails with ErrDuplicateKey.
func (e *Exchange) Request(ctx context.Context, req Request) (Response, error) {
	if req.Key == "" {
		return Response{}, ErrInvalidKey
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Response{}, ErrClosed
	}
	if resp, ok := e.takeBufferedLocked(req.Key); ok {
		e.mu.Unlock()
		e.logger.Debug("request answered from buffer",
			zap.String("request_id", req.ID),
			zap.String("key", req.Key))
		return resp, nil
	}
	if _, exists := e.pending[req.Key]; exists {
		e.mu.Unlock()
		return Response{}, &keyError{key: req.Key, err: ErrDuplicateKey}
	}
	req.CreatedAt = e.now()
	p := &pendingRequest{req: req, reply: make(chan Response, 1)}
	e.pending[req.Key] = p
	e.senders.Add(1)
	e.mu.Unlock()

	e.metrics.requestRegistered()

	waitCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// Publish. A response can arrive before the responder has seen the
	// request when the actor already knows the key.
	select {
	case e.requests <- req:
		e.senders.Done()
		e.metrics.requestPublished()
		e.logger.Debug("request published",
			zap.String("request_id", req.ID),
			zap.String("key", req.Key))
	case resp := <-p.reply:
		e.senders.Done()
		return resp, nil
	case <-waitCtx.Done():
		e.senders.Done()
		return e.abandon(ctx, p)
	case <-e.done:
		e.senders.Done()
		return e.abandon(ctx, p)
	}

	select {
	case resp := <-p.reply:
		return resp, nil
	case <-waitCtx.Done():
		return e.abandon(ctx, p)
	case <-e.done:
		return e.abandon(ctx, p)
	}
}

// Confirm asks prompt under key and returns the decision.
func (e *Exchange) Confirm(ctx context.Context, key, prompt string) (Outcome, error) {
	resp, err := e.Request(ctx, Request{Key: key, Prompt: prompt})
	if err != nil {
		return Rejected, err
	}
	return resp.Outcome(), nil
}

// abandon withdraws p after the wait ended without a reply. If a response
// was delivered concurrently, it wins and is returned instead of an error.
func (e *Exchange) abandon(ctx context.Context, p *pendingRequest) (Response, error) {
	e.mu.Lock()
	if e.pending[p.req.Key] != p {
		e.mu.Unlock()
		return <-p.reply, nil
	}
	delete(e.pending, p.req.Key)
	closed := e.closed
	e.mu.Unlock()

	var reason string
	var err error
	switch {
	case closed:
		reason, err = "closed", ErrClosed
	case ctx.Err() != nil:
		reason, err = "canceled", ctx.Err()
	default:
		reason, err = "timeout", ErrTimeout
	}

	e.metrics.requestAbandoned(reason)
	e.logger.Info("request abandoned",
		zap.String("request_id", p.req.ID),
		zap.String("key", p.req.Key),
		zap.String("reason", reason))

	return Response{}, fmt.Errorf("request %q: %w", p.req.Key, err)
}

// Submit delivers value to the outstanding request with the same key.
//
// With no outstanding request, RejectUnmatched returns an error matching
// ErrNoPendingRequest; BufferUnmatched keeps the response for the next
// Request with that key, or rejects it once the per-key buffer is full.
func (e *Exchange) Submit(key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}
	resp := Response{Key: key, Value: value, ReceivedAt: e.now()}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}

	if p, ok := e.pending[key]; ok {
		delete(e.pending, key)
		p.reply <- resp
		e.mu.Unlock()

		e.metrics.requestAnswered(resp.Outcome(), resp.ReceivedAt.Sub(p.req.CreatedAt))
		e.logger.Debug("response matched",
			zap.String("request_id", p.req.ID),
			zap.String("key", key))
		return nil
	}

	if e.policy == BufferUnmatched && len(e.buffered[key]) < e.maxBuffered {
		e.buffered[key] = append(e.buffered[key], resp)
		e.mu.Unlock()

		e.metrics.responseUnmatched("buffered")
		e.logger.Debug("unmatched response buffered", zap.String("key", key))
		return nil
	}
	e.mu.Unlock()

	e.metrics.responseUnmatched("rejected")
	e.logger.Warn("unmatched response rejected", zap.String("key", key))
	return &keyError{key: key, err: ErrNoPendingRequest}
}

func (e *Exchange) takeBufferedLocked(key string) (Response, bool) {
	buf := e.buffered[key]
	if len(buf) == 0 {
		return Response{}, false
	}
	resp := buf[0]
	if len(buf) == 1 {
		delete(e.buffered, key)
	} else {
		e.buffered[key] = buf[1:]
	}
	return resp, true
}

// Pending returns a snapshot of outstanding requests, oldest first.
func (e *Exchange) Pending() []Request {
	e.mu.Lock()
	out := make([]Request, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, p.req)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close fails outstanding requests with ErrClosed, drops buffered responses
// and closes the request stream. Safe to call more than once.
func (e *Exchange) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.buffered = make(map[string][]Response)
	close(e.done)
	e.mu.Unlock()

	e.senders.Wait()
	close(e.requests)
	return nil
}

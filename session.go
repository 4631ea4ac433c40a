package mapi

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/andreyvit/mapi/namedprop"
)

const debugRops = false

// Transport delivers one ROP request buffer to the server and returns the ROP
// response buffer. Session establishment, authentication and the EMSMDB RPC
// envelope are the transport's business.
//
// A non-nil error means no response was produced. Application-level failures
// travel inside the response buffer and are not transport errors. Execute
// must not retain req after returning.
type Transport interface {
	Execute(ctx context.Context, req []byte) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req []byte) ([]byte, error)

func (f TransportFunc) Execute(ctx context.Context, req []byte) ([]byte, error) {
	return f(ctx, req)
}

type Options struct {
	Logger *slog.Logger

	// LogonID is copied into every ROP request.
	LogonID uint8

	// TransportRetries is how many times a request is resent after a
	// transport failure. Protocol and decoding failures are never retried.
	TransportRetries int

	// RetryDelay is the pause before each resend.
	RetryDelay time.Duration

	// NamedProps is the session's named property mapping. A new empty map is
	// created if nil.
	NamedProps *namedprop.Map

	Metrics *Metrics
}

// Session is one logon's view of the server. Several sessions may be used
// concurrently; a single session serializes its round trips.
type Session struct {
	transport  Transport
	logger     *slog.Logger
	logonID    uint8
	retries    int
	retryDelay time.Duration
	names      *namedprop.Map
	metrics    *Metrics

	mut sync.Mutex
}

func NewSession(transport Transport, opt Options) *Session {
	if transport == nil {
		panic("mapi: nil transport")
	}
	if opt.TransportRetries < 0 {
		panic("mapi: negative TransportRetries")
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.NamedProps == nil {
		opt.NamedProps = namedprop.NewMap()
	}
	return &Session{
		transport:  transport,
		logger:     opt.Logger,
		logonID:    opt.LogonID,
		retries:    opt.TransportRetries,
		retryDelay: opt.RetryDelay,
		names:      opt.NamedProps,
		metrics:    opt.Metrics,
	}
}

func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// NamedProps returns the session's named property mapping.
func (s *Session) NamedProps() *namedprop.Map {
	return s.names
}

// Execute sends calls in one ROP buffer against the given server object
// handles and decodes every response. Each call's HandleIndex indexes
// handles. It returns the handle table of the response.
//
// If any call fails at the server, Execute still decodes the whole buffer and
// then returns a *ProtocolError for the first failure.
func (s *Session) Execute(ctx context.Context, handles []uint32, calls ...*Call) ([]uint32, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	buf := acquireRopBuffer()
	defer releaseRopBuffer(buf)
	req, err := appendRopBuffer((*buf)[:0], s.logonID, handles, calls)
	if err != nil {
		return nil, err
	}
	*buf = req

	s.mut.Lock()
	defer s.mut.Unlock()

	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err := s.transport.Execute(ctx, req)
		elapsed := time.Since(start)
		if err != nil {
			te := &TransportError{calls[0].Rop, err}
			s.metrics.observe(calls, outcomeTransport, elapsed)
			if attempt >= s.retries || !te.retryable() || ctx.Err() != nil {
				return nil, te
			}
			s.logger.LogAttrs(ctx, slog.LevelWarn, "mapi: retrying after transport failure", slog.String("rop", calls[0].Rop.String()), slog.Int("attempt", attempt+1), slog.Any("err", err))
			if err := sleep(ctx, s.retryDelay); err != nil {
				return nil, &TransportError{calls[0].Rop, err}
			}
			continue
		}
		if debugRops {
			s.logger.LogAttrs(ctx, slog.LevelDebug, "mapi: round trip", hexAttr("req", req), hexAttr("resp", resp), slog.Duration("elapsed", elapsed))
		}

		outHandles, err := decodeRopBuffer(resp, calls)
		var re *ResponseError
		if errors.As(err, &re) {
			s.metrics.observe(calls, outcomeBadReply, elapsed)
		} else {
			s.metrics.observe(calls, outcomeOK, elapsed)
		}
		return outHandles, err
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// call runs a single ROP against one handle.
func (s *Session) call(ctx context.Context, handle uint32, c *Call) error {
	_, err := s.Execute(ctx, []uint32{handle}, c)
	return err
}

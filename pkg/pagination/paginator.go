package pagination

import (
	"context"
	"iter"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/coinbase-client/pkg/request"
	"github.com/Sternrassler/coinbase-client/pkg/transport"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cb_pages_fetched_total",
		Help: "Total number of pages fetched by paginated streams",
	}, []string{"endpoint"})

	streamFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cb_stream_failures_total",
		Help: "Total number of paginated streams that ended in an error",
	}, []string{"endpoint", "reason"})
)

// Fetcher performs one build, sign and execute round trip.
type Fetcher interface {
	Fetch(ctx context.Context, ep request.Endpoint, params request.Params) (*transport.RawResponse, error)
}

// Config controls page requests.
type Config struct {
	// Limit is sent as the "limit" query parameter when > 0 and the caller
	// did not set one.
	Limit int
}

// Paginator produces streams over one paged endpoint.
type Paginator[T any] struct {
	fetcher  Fetcher
	endpoint request.Endpoint
	cursor   PageCursor[T]
	config   Config
	logger   zerolog.Logger
}

// New creates a paginator for endpoint using the given cursor family.
func New[T any](fetcher Fetcher, endpoint request.Endpoint, cursor PageCursor[T], cfg Config, logger zerolog.Logger) *Paginator[T] {
	return &Paginator[T]{
		fetcher:  fetcher,
		endpoint: endpoint,
		cursor:   cursor,
		config:   cfg,
		logger:   logger.With().Str("endpoint", endpoint.Name).Logger(),
	}
}

// Stream starts a new chain from the first page. No request is made until
// the first call to Next.
func (p *Paginator[T]) Stream(params request.Params) *Stream[T] {
	params = params.Clone()
	if p.config.Limit > 0 && params.Query.Get("limit") == "" {
		params.Query.Set("limit", strconv.Itoa(p.config.Limit))
	}
	return &Stream[T]{p: p, params: params}
}

// All returns the records of a fresh chain as a sequence. A failure is
// yielded once, with the zero value, as the last element.
func (p *Paginator[T]) All(ctx context.Context, params request.Params) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		s := p.Stream(params)
		for {
			item, ok := s.Next(ctx)
			if !ok {
				break
			}
			if !yield(item, nil) {
				s.Close()
				return
			}
		}
		if err := s.Err(); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Collect drains a fresh chain. On failure it returns the records emitted
// before the failure together with the error.
func (p *Paginator[T]) Collect(ctx context.Context, params request.Params) ([]T, error) {
	var out []T
	for item, err := range p.All(ctx, params) {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

type streamState int

const (
	stateFetching streamState = iota
	stateEmitting
	stateDone
	stateFailed
)

// Stream is a single forward-only walk over a paged endpoint. It is not safe
// for concurrent use.
type Stream[T any] struct {
	p      *Paginator[T]
	params request.Params
	state  streamState
	buf    []T
	pos    int
	next   Token
	sent   Token
	pages  int
	err    error
}

// Next returns the next record. It fetches a page only when the current one
// is exhausted. It returns false once the stream is done or failed; Err
// reports which.
func (s *Stream[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	for {
		switch s.state {
		case stateEmitting:
			if s.pos < len(s.buf) {
				item := s.buf[s.pos]
				s.pos++
				return item, true
			}
			if s.next == "" {
				s.finish()
				continue
			}
			s.state = stateFetching

		case stateFetching:
			s.fetch(ctx)

		default:
			return zero, false
		}
	}
}

// Err returns the error that ended the stream, or nil.
func (s *Stream[T]) Err() error {
	return s.err
}

// Pages returns the number of pages fetched so far.
func (s *Stream[T]) Pages() int {
	return s.pages
}

// Close abandons the stream. Subsequent calls to Next return false and no
// further requests are made.
func (s *Stream[T]) Close() {
	if s.state == stateFailed {
		return
	}
	s.finish()
}

func (s *Stream[T]) fetch(ctx context.Context) {
	pageNum := s.pages + 1
	params := s.params.Clone()
	if pageNum > 1 {
		s.p.cursor.Apply(params.Query, s.next)
		s.sent = s.next
	}

	resp, err := s.p.fetcher.Fetch(ctx, s.p.endpoint, params)
	if err != nil {
		s.fail(pageNum, "fetch", err)
		return
	}
	if err := transport.CheckStatus(s.p.endpoint.Name, resp); err != nil {
		s.fail(pageNum, "status", err)
		return
	}

	page, err := s.p.cursor.Decode(resp)
	if err != nil {
		s.fail(pageNum, "decode", err)
		return
	}
	if page.Next != "" && page.Next == s.sent {
		s.fail(pageNum, "cursor_loop", ErrCursorLoop)
		return
	}

	s.pages = pageNum
	pagesFetchedTotal.WithLabelValues(s.p.endpoint.Name).Inc()
	s.p.logger.Debug().
		Int("page", pageNum).
		Int("items", len(page.Items)).
		Bool("terminal", page.Terminal()).
		Msg("Page fetched")

	s.buf = page.Items
	s.pos = 0
	s.next = page.Next
	s.state = stateEmitting
}

func (s *Stream[T]) fail(page int, reason string, err error) {
	s.err = &StreamError{Endpoint: s.p.endpoint.Name, Page: page, Err: err}
	s.state = stateFailed
	s.buf = nil
	streamFailuresTotal.WithLabelValues(s.p.endpoint.Name, reason).Inc()
	s.p.logger.Warn().
		Err(err).
		Int("page", page).
		Str("reason", reason).
		Msg("Stream failed")
}

func (s *Stream[T]) finish() {
	s.state = stateDone
	s.buf = nil
}

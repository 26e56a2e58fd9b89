package helix

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"sync"
)

// DefaultPageSize is the "first" value sent when neither the descriptor nor
// an option overrides it.
const DefaultPageSize = 100

// Mapper turns one raw page item into zero, one or many mapped items.
type Mapper[R, M any] func(raw R) []M

// IdentityMapper returns a mapper that passes each raw item through unchanged.
func IdentityMapper[T any]() Mapper[T, T] {
	return func(raw T) []T {
		return []T{raw}
	}
}

// PaginationOption configures a PaginatedRequest.
type PaginationOption func(*paginationOptions)

type paginationOptions struct {
	pageSize     int
	omitPageSize bool
}

// WithPageSize overrides the page size for endpoints that cap "first" below the default.
func WithPageSize(size int) PaginationOption {
	return func(o *paginationOptions) {
		o.pageSize = size
	}
}

// WithoutPageSize drops the "first" parameter entirely.
func WithoutPageSize() PaginationOption {
	return func(o *paginationOptions) {
		o.omitPageSize = true
	}
}

// PaginatedRequest walks a cursor-paginated endpoint. It can be used pull-style
// through GetNext, or as a restartable sequence through Items and ForEach.
//
// A PaginatedRequest belongs to one logical query. GetNext and GetAll share the
// same cursor, so they must not be interleaved.
type PaginatedRequest[R, M any] struct {
	caller     APICaller
	descriptor *CallDescriptor
	mapper     Mapper[R, M]
	opts       paginationOptions

	mu       sync.Mutex
	cursor   string
	finished bool
	current  *PageEnvelope[R]
}

// NewPaginatedRequest creates a paginated request over descriptor. The
// descriptor is never modified; each page is fetched with a copy carrying the
// "first" and "after" parameters.
func NewPaginatedRequest[R, M any](
	caller APICaller,
	descriptor *CallDescriptor,
	mapper Mapper[R, M],
	opts ...PaginationOption,
) (*PaginatedRequest[R, M], error) {
	if descriptor == nil {
		return nil, ErrDescriptorRequired
	}

	if mapper == nil {
		return nil, ErrMapperRequired
	}

	options := paginationOptions{pageSize: DefaultPageSize}
	if descriptor.Pagination != nil {
		if descriptor.Pagination.PageSize > 0 {
			options.pageSize = descriptor.Pagination.PageSize
		}

		options.omitPageSize = descriptor.Pagination.OmitPageSize
	}

	for _, opt := range opts {
		opt(&options)
	}

	return &PaginatedRequest[R, M]{
		caller:     caller,
		descriptor: descriptor,
		mapper:     mapper,
		opts:       options,
	}, nil
}

// GetNext fetches the next page and returns its mapped items. Once the request
// is exhausted it returns an empty slice without calling the API.
func (p *PaginatedRequest[R, M]) GetNext(ctx context.Context) ([]M, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.finished {
		return []M{}, nil
	}

	page, err := p.fetch(ctx, p.cursor)
	if err != nil {
		return nil, err
	}

	p.current = page

	if len(page.Data) == 0 {
		p.finished = true

		return []M{}, nil
	}

	if cursor, ok := page.NextCursor(); ok {
		p.cursor = cursor
	} else {
		p.finished = true
	}

	items := make([]M, 0, len(page.Data))
	for _, raw := range page.Data {
		items = append(items, p.mapper(raw)...)
	}

	return items, nil
}

// GetAll resets the request, collects every page and resets again.
func (p *PaginatedRequest[R, M]) GetAll(ctx context.Context) ([]M, error) {
	p.Reset()
	defer p.Reset()

	var all []M

	for {
		items, err := p.GetNext(ctx)
		if err != nil {
			return nil, err
		}

		if len(items) == 0 && p.Exhausted() {
			return all, nil
		}

		all = append(all, items...)
	}
}

// Items returns a lazy sequence over every mapped item. Each iteration starts
// from the first page. A fetch error is yielded once and ends the sequence.
func (p *PaginatedRequest[R, M]) Items(ctx context.Context) iter.Seq2[M, error] {
	return func(yield func(M, error) bool) {
		p.Reset()

		for {
			items, err := p.GetNext(ctx)
			if err != nil {
				var zero M

				yield(zero, err)

				return
			}

			if len(items) == 0 && p.Exhausted() {
				return
			}

			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// ForEach calls fn for every mapped item, stopping at the first error.
func (p *PaginatedRequest[R, M]) ForEach(ctx context.Context, fn func(M) error) error {
	for item, err := range p.Items(ctx) {
		if err != nil {
			return err
		}

		err = fn(item)
		if err != nil {
			return err
		}
	}

	return nil
}

// Reset discards the cursor and the last page.
func (p *PaginatedRequest[R, M]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cursor = ""
	p.finished = false
	p.current = nil
}

// Current returns the last raw page fetched by GetNext, or nil.
func (p *PaginatedRequest[R, M]) Current() *PageEnvelope[R] {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.current
}

// Exhausted reports whether the last page ended the result set.
func (p *PaginatedRequest[R, M]) Exhausted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.finished
}

func (p *PaginatedRequest[R, M]) fetch(ctx context.Context, cursor string) (*PageEnvelope[R], error) {
	extra := url.Values{}
	if !p.opts.omitPageSize && p.opts.pageSize > 0 {
		extra.Set("first", strconv.Itoa(p.opts.pageSize))
	}

	if cursor != "" {
		extra.Set("after", cursor)
	}

	raw, err := p.caller.CallAPI(ctx, p.descriptor.WithQuery(extra))
	if err != nil {
		return nil, err
	}

	page := &PageEnvelope[R]{}
	if len(raw) > 0 {
		err = json.Unmarshal(raw, page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse page: %w", err)
		}
	}

	page.Raw = raw

	return page, nil
}

// PaginatedRequestWithTotal is a PaginatedRequest over an endpoint whose pages
// report the size of the whole result set.
type PaginatedRequestWithTotal[R, M any] struct {
	*PaginatedRequest[R, M]
}

// NewPaginatedRequestWithTotal creates a paginated request exposing TotalCount.
func NewPaginatedRequestWithTotal[R, M any](
	caller APICaller,
	descriptor *CallDescriptor,
	mapper Mapper[R, M],
	opts ...PaginationOption,
) (*PaginatedRequestWithTotal[R, M], error) {
	req, err := NewPaginatedRequest(caller, descriptor, mapper, opts...)
	if err != nil {
		return nil, err
	}

	return &PaginatedRequestWithTotal[R, M]{PaginatedRequest: req}, nil
}

// TotalCount returns the server-reported total. When no page has been fetched
// yet the first page is fetched and kept as Current without moving the cursor.
func (p *PaginatedRequestWithTotal[R, M]) TotalCount(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		page, err := p.fetch(ctx, p.cursor)
		if err != nil {
			return 0, err
		}

		p.current = page
	}

	if p.current.Total == nil {
		return 0, ErrNoTotal
	}

	return *p.current.Total, nil
}

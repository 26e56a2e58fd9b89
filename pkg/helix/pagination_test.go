package helix_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransport = errors.New("connection reset by peer")

// MockPageCaller serves pages keyed by the "after" cursor.
type MockPageCaller struct {
	mu      sync.Mutex
	pages   map[string]string
	failOn  string
	queries []url.Values
}

func (m *MockPageCaller) CallAPI(ctx context.Context, descriptor *helix.CallDescriptor) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, descriptor.Query)

	after := descriptor.Query.Get("after")
	if m.failOn != "" && after == m.failOn {
		return nil, errTransport
	}

	page, ok := m.pages[after]
	if !ok {
		return json.RawMessage(`{"data":[],"pagination":{}}`), nil
	}

	return json.RawMessage(page), nil
}

func (m *MockPageCaller) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queries)
}

func twoPageCaller() *MockPageCaller {
	return &MockPageCaller{
		pages: map[string]string{
			"":   `{"data":["a","b"],"pagination":{"cursor":"c1"}}`,
			"c1": `{"data":["c"],"pagination":{}}`,
		},
	}
}

func newStringRequest(t *testing.T, caller helix.APICaller, opts ...helix.PaginationOption) *helix.PaginatedRequest[string, string] {
	t.Helper()

	descriptor := &helix.CallDescriptor{Method: "GET", URL: "/things", Query: url.Values{"broadcaster_id": {"42"}}}

	req, err := helix.NewPaginatedRequest(caller, descriptor, helix.IdentityMapper[string](), opts...)
	require.NoError(t, err)

	return req
}

func TestPaginatedRequest_GetAll(t *testing.T) {
	t.Parallel()

	caller := twoPageCaller()
	req := newStringRequest(t, caller)
	ctx := context.Background()

	items, err := req.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, items)
	assert.Equal(t, 2, caller.Calls())

	// State is reset after GetAll, so a second run repeats the same calls.
	assert.Nil(t, req.Current())
	assert.False(t, req.Exhausted())

	again, err := req.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, again)
	assert.Equal(t, 4, caller.Calls())
}

func TestPaginatedRequest_GetAllManyPages(t *testing.T) {
	t.Parallel()

	caller := &MockPageCaller{
		pages: map[string]string{
			"":   `{"data":["1","2"],"pagination":{"cursor":"p2"}}`,
			"p2": `{"data":["3"],"pagination":{"cursor":"p3"}}`,
			"p3": `{"data":["4","5"],"pagination":{"cursor":"p4"}}`,
			"p4": `{"data":["6"]}`,
		},
	}
	req := newStringRequest(t, caller)

	items, err := req.GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, items)
	assert.Equal(t, 4, caller.Calls())
}

func TestPaginatedRequest_GetNext(t *testing.T) {
	t.Parallel()

	caller := twoPageCaller()
	req := newStringRequest(t, caller)
	ctx := context.Background()

	first, err := req.GetNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, first)
	require.NotNil(t, req.Current())
	assert.Equal(t, []string{"a", "b"}, req.Current().Data)
	assert.False(t, req.Exhausted())

	second, err := req.GetNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, second)
	assert.True(t, req.Exhausted())

	// Exhausted requests do not touch the network.
	calls := caller.Calls()

	third, err := req.GetNext(ctx)
	require.NoError(t, err)
	assert.Empty(t, third)
	assert.NotNil(t, third)
	assert.Equal(t, calls, caller.Calls())
}

func TestPaginatedRequest_BareCursorString(t *testing.T) {
	t.Parallel()

	caller := &MockPageCaller{
		pages: map[string]string{
			"":   `{"data":["a","b"],"pagination":"c1"}`,
			"c1": `{"data":["c"],"pagination":""}`,
		},
	}

	all, err := newStringRequest(t, caller).GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, all)
	assert.Equal(t, 2, caller.Calls())
}

func TestPaginatedRequest_EmptyPageExhausts(t *testing.T) {
	t.Parallel()

	caller := &MockPageCaller{
		pages: map[string]string{
			"": `{"data":[],"pagination":{"cursor":"ignored"}}`,
		},
	}
	req := newStringRequest(t, caller)
	ctx := context.Background()

	items, err := req.GetNext(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.True(t, req.Exhausted())

	_, err = req.GetNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, caller.Calls())

	req.Reset()
	assert.False(t, req.Exhausted())

	_, err = req.GetNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, caller.Calls())
}

func TestPaginatedRequest_QueryParameters(t *testing.T) {
	t.Parallel()

	caller := twoPageCaller()
	descriptor := &helix.CallDescriptor{Method: "GET", URL: "/things", Query: url.Values{"broadcaster_id": {"42"}}}

	req, err := helix.NewPaginatedRequest(caller, descriptor, helix.IdentityMapper[string]())
	require.NoError(t, err)

	_, err = req.GetAll(context.Background())
	require.NoError(t, err)

	require.Len(t, caller.queries, 2)
	assert.Equal(t, "100", caller.queries[0].Get("first"))
	assert.Empty(t, caller.queries[0].Get("after"))
	assert.Equal(t, "42", caller.queries[0].Get("broadcaster_id"))
	assert.Equal(t, "c1", caller.queries[1].Get("after"))

	// The descriptor itself is never modified.
	assert.Equal(t, url.Values{"broadcaster_id": {"42"}}, descriptor.Query)
}

func TestPaginatedRequest_PageSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		overrides  *helix.PaginationOverrides
		opts       []helix.PaginationOption
		wantFirst  string
		wantAbsent bool
	}{
		{name: "default", wantFirst: "100"},
		{name: "descriptor cap", overrides: &helix.PaginationOverrides{PageSize: 20}, wantFirst: "20"},
		{name: "option wins", overrides: &helix.PaginationOverrides{PageSize: 20}, opts: []helix.PaginationOption{helix.WithPageSize(50)}, wantFirst: "50"},
		{name: "descriptor omits", overrides: &helix.PaginationOverrides{OmitPageSize: true}, wantAbsent: true},
		{name: "option omits", opts: []helix.PaginationOption{helix.WithoutPageSize()}, wantAbsent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			caller := twoPageCaller()
			descriptor := &helix.CallDescriptor{Method: "GET", URL: "/things", Pagination: tt.overrides}

			req, err := helix.NewPaginatedRequest(caller, descriptor, helix.IdentityMapper[string](), tt.opts...)
			require.NoError(t, err)

			_, err = req.GetNext(context.Background())
			require.NoError(t, err)

			if tt.wantAbsent {
				assert.NotContains(t, caller.queries[0], "first")
			} else {
				assert.Equal(t, tt.wantFirst, caller.queries[0].Get("first"))
			}
		})
	}
}

type nestedEntry struct {
	Tier  string   `json:"tier"`
	Users []string `json:"users"`
}

func TestPaginatedRequest_MapperExpands(t *testing.T) {
	t.Parallel()

	caller := &MockPageCaller{
		pages: map[string]string{
			"":     `{"data":[{"tier":"1","users":["u1","u2"]},{"tier":"2","users":[]}],"pagination":{"cursor":"next"}}`,
			"next": `{"data":[{"tier":"3","users":["u3"]}]}`,
		},
	}
	descriptor := &helix.CallDescriptor{Method: "GET", URL: "/subscriptions"}
	mapper := func(raw nestedEntry) []string {
		out := make([]string, 0, len(raw.Users))
		for _, user := range raw.Users {
			out = append(out, raw.Tier+":"+user)
		}

		return out
	}

	req, err := helix.NewPaginatedRequest(caller, descriptor, mapper)
	require.NoError(t, err)

	items, err := req.GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1:u1", "1:u2", "3:u3"}, items)
}

func TestPaginatedRequest_Items(t *testing.T) {
	t.Parallel()

	caller := twoPageCaller()
	req := newStringRequest(t, caller)
	ctx := context.Background()

	var collected []string

	for item, err := range req.Items(ctx) {
		require.NoError(t, err)

		collected = append(collected, item)
	}

	assert.Equal(t, []string{"a", "b", "c"}, collected)

	// Each iteration restarts from the first page.
	collected = nil

	for item, err := range req.Items(ctx) {
		require.NoError(t, err)

		collected = append(collected, item)
	}

	assert.Equal(t, []string{"a", "b", "c"}, collected)
	assert.Equal(t, 4, caller.Calls())
}

func TestPaginatedRequest_ItemsStopsLazily(t *testing.T) {
	t.Parallel()

	caller := twoPageCaller()
	req := newStringRequest(t, caller)

	for item, err := range req.Items(context.Background()) {
		require.NoError(t, err)
		assert.Equal(t, "a", item)

		break
	}

	assert.Equal(t, 1, caller.Calls())
}

func TestPaginatedRequest_ErrorIsNotEndOfStream(t *testing.T) {
	t.Parallel()

	caller := twoPageCaller()
	caller.failOn = "c1"
	req := newStringRequest(t, caller)
	ctx := context.Background()

	_, err := req.GetAll(ctx)
	require.ErrorIs(t, err, errTransport)

	var (
		collected []string
		iterErr   error
	)

	for item, err := range req.Items(ctx) {
		if err != nil {
			iterErr = err

			break
		}

		collected = append(collected, item)
	}

	require.ErrorIs(t, iterErr, errTransport)
	assert.Equal(t, []string{"a", "b"}, collected)

	err = req.ForEach(ctx, func(string) error { return nil })
	require.ErrorIs(t, err, errTransport)
}

func TestPaginatedRequest_ForEach(t *testing.T) {
	t.Parallel()

	caller := twoPageCaller()
	req := newStringRequest(t, caller)
	ctx := context.Background()

	var seen []string

	err := req.ForEach(ctx, func(item string) error {
		seen = append(seen, item)

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	stop := errors.New("stop")

	err = req.ForEach(ctx, func(item string) error {
		return stop
	})
	require.ErrorIs(t, err, stop)
}

func TestPaginatedRequest_InvalidJSON(t *testing.T) {
	t.Parallel()

	caller := &MockPageCaller{pages: map[string]string{"": `{"data":`}}
	req := newStringRequest(t, caller)

	_, err := req.GetNext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse page")
	assert.False(t, req.Exhausted())
}

func TestNewPaginatedRequest_Validation(t *testing.T) {
	t.Parallel()

	_, err := helix.NewPaginatedRequest[string, string](twoPageCaller(), nil, helix.IdentityMapper[string]())
	require.ErrorIs(t, err, helix.ErrDescriptorRequired)

	_, err = helix.NewPaginatedRequest[string, string](twoPageCaller(), &helix.CallDescriptor{}, nil)
	require.ErrorIs(t, err, helix.ErrMapperRequired)
}

func TestPaginatedRequestWithTotal_TotalCount(t *testing.T) {
	t.Parallel()

	caller := &MockPageCaller{
		pages: map[string]string{
			"":   `{"data":["a","b"],"total":3,"pagination":{"cursor":"c1"}}`,
			"c1": `{"data":["c"],"total":3}`,
		},
	}
	descriptor := &helix.CallDescriptor{Method: "GET", URL: "/followers"}

	req, err := helix.NewPaginatedRequestWithTotal(caller, descriptor, helix.IdentityMapper[string]())
	require.NoError(t, err)

	ctx := context.Background()

	total, err := req.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, caller.Calls())

	// The cached page answers again without a call.
	total, err = req.TotalCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, caller.Calls())

	// The cursor did not move, so pulling starts at the first page.
	items, err := req.GetNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)
}

func TestPaginatedRequestWithTotal_NoTotal(t *testing.T) {
	t.Parallel()

	req, err := helix.NewPaginatedRequestWithTotal(twoPageCaller(), &helix.CallDescriptor{URL: "/x"}, helix.IdentityMapper[string]())
	require.NoError(t, err)

	_, err = req.TotalCount(context.Background())
	require.ErrorIs(t, err, helix.ErrNoTotal)
}

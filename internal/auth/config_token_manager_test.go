package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fivetwenty-io/helix/internal/auth"
	"github.com/fivetwenty-io/helix/pkg/helix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

type recordingPersister struct {
	mu     sync.Mutex
	saved  []*helix.AccessToken
	client string
	err    error
}

func (p *recordingPersister) UpdateToken(clientID string, token *helix.AccessToken) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.client = clientID
	p.saved = append(p.saved, token)

	return nil
}

func TestConfigTokenManager_Persist(t *testing.T) {
	t.Parallel()

	initial := &helix.AccessToken{AccessToken: "initial", RefreshToken: "r0"}
	persister := &recordingPersister{}
	manager := auth.NewConfigTokenManager(persister, "client-id", initial, nil)

	require.NoError(t, manager.Persist(context.Background(), &helix.AccessToken{AccessToken: "initial", RefreshToken: "r0"}))
	assert.Empty(t, persister.saved)

	refreshed := &helix.AccessToken{AccessToken: "refreshed", RefreshToken: "r1"}
	require.NoError(t, manager.Persist(context.Background(), refreshed))
	require.NoError(t, manager.Persist(context.Background(), refreshed))

	require.Len(t, persister.saved, 1)
	assert.Equal(t, "client-id", persister.client)
	assert.Equal(t, refreshed, manager.Persisted())
	assert.NoError(t, manager.Persist(context.Background(), nil))
}

func TestConfigTokenManager_Errors(t *testing.T) {
	t.Parallel()

	token := &helix.AccessToken{AccessToken: "token"}

	manager := auth.NewConfigTokenManager(nil, "client-id", nil, nil)
	require.ErrorIs(t, manager.Persist(context.Background(), token), auth.ErrNoConfigPersister)

	failing := auth.NewConfigTokenManager(&recordingPersister{err: errDiskFull}, "client-id", nil, nil)
	require.ErrorIs(t, failing.Persist(context.Background(), token), errDiskFull)
	assert.Nil(t, failing.Persisted())
}

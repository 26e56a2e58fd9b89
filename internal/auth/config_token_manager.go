package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fivetwenty-io/helix/pkg/helix"
)

// Static errors for err113 compliance.
var (
	ErrNoConfigPersister = errors.New("no config persister configured")
)

// ConfigPersister defines the interface for persisting token changes.
type ConfigPersister interface {
	UpdateToken(clientID string, token *helix.AccessToken) error
}

// ConfigTokenManager writes refreshed tokens through a ConfigPersister. Its
// Persist method plugs into a refreshing provider's refresh callback.
type ConfigTokenManager struct {
	configPersister ConfigPersister
	clientID        string
	logger          helix.Logger

	mutex     sync.Mutex
	persisted *helix.AccessToken
}

// NewConfigTokenManager creates a config-persisting token manager. initial is
// the token the configuration already holds, if any.
func NewConfigTokenManager(configPersister ConfigPersister, clientID string, initial *helix.AccessToken, logger helix.Logger) *ConfigTokenManager {
	return &ConfigTokenManager{
		configPersister: configPersister,
		clientID:        clientID,
		logger:          logger,
		persisted:       initial,
	}
}

// Persist saves token unless it is the one already persisted.
func (m *ConfigTokenManager) Persist(_ context.Context, token *helix.AccessToken) error {
	if token == nil {
		return nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.persisted.Equal(token) {
		return nil
	}

	err := m.persistToken(token)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("failed to persist refreshed token", map[string]interface{}{
				"client_id": m.clientID,
				"error":     err.Error(),
			})
		}

		return err
	}

	m.persisted = token

	return nil
}

// Persisted returns the last token written.
func (m *ConfigTokenManager) Persisted() *helix.AccessToken {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.persisted
}

// persistToken saves the token to config.
func (m *ConfigTokenManager) persistToken(token *helix.AccessToken) error {
	if m.configPersister == nil {
		return ErrNoConfigPersister
	}

	err := m.configPersister.UpdateToken(m.clientID, token)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}

	return nil
}

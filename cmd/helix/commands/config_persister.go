package commands

import (
	"fmt"
	"sync"
	"time"

	iauth "github.com/fivetwenty-io/helix/internal/auth"
	"github.com/fivetwenty-io/helix/internal/constants"
	"github.com/fivetwenty-io/helix/pkg/helix"
)

var _ iauth.ConfigPersister = (*ConfigPersister)(nil)

// ConfigPersister implements the auth.ConfigPersister interface on top of the
// CLI config file.
type ConfigPersister struct {
	mutex     sync.Mutex
	path      string
	tokenType helix.TokenType
	now       func() time.Time
}

// NewConfigPersister creates a persister writing tokens of tokenType to path.
func NewConfigPersister(path string, tokenType helix.TokenType) *ConfigPersister {
	return &ConfigPersister{
		path:      path,
		tokenType: tokenType,
		now:       time.Now,
	}
}

// UpdateToken stores token for clientID. A file configured for another
// client id is left untouched.
func (p *ConfigPersister) UpdateToken(clientID string, token *helix.AccessToken) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	config, err := readConfigFile(p.path)
	if err != nil {
		return err
	}

	if config.ClientID != "" && config.ClientID != clientID {
		return fmt.Errorf("client id '%s': %w", clientID, constants.ErrClientIDMismatch)
	}

	config.SetToken(token, p.tokenType)

	now := p.now()
	config.LastRefreshed = &now

	return writeConfigFile(p.path, config)
}

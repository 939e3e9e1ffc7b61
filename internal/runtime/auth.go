package runtime

import (
	"context"
	"fmt"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	"google.golang.org/api/gmail/v1"

	gc "github.com/joshsymonds/gmailpipe/internal/gmail"
)

// Scope is the OAuth access a command asks for.
type Scope int

const (
	ScopeReadonly Scope = iota
	ScopeModify
)

func (s Scope) String() string {
	switch s {
	case ScopeReadonly:
		return "readonly"
	case ScopeModify:
		return "modify"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

func (s Scope) url() (string, error) {
	switch s {
	case ScopeReadonly:
		return gmail.GmailReadonlyScope, nil
	case ScopeModify:
		return gmail.GmailModifyScope, nil
	default:
		return "", fmt.Errorf("unknown scope %s", s)
	}
}

// NewGmailClient authenticates with the token cached by gmailctl in cfgDir.
// Trashing needs ScopeModify; listing and reading only ScopeReadonly.
func NewGmailClient(ctx context.Context, cfgDir string, scope Scope) (gc.Client, error) {
	url, err := scope.url()
	if err != nil {
		return nil, err
	}
	svc, err := (localcred.Provider{}).ServiceWithScopes(ctx, cfgDir, url)
	if err != nil {
		return nil, fmt.Errorf("authenticate %s: %w", scope, classify(err))
	}
	return NewGoogleAPIClient(svc), nil
}

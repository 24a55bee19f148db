// Package scopes maps API credentials to permission scopes and answers
// the two authorization questions every request raises: is this credential
// known, and may it invoke this tool.
package scopes

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Scope names one permission. Tools declare the scopes they require;
// credentials carry the scopes they grant.
type Scope string

const (
	// ScopeRead grants read access to files and directory listings.
	ScopeRead Scope = "read:files"
	// ScopeWrite grants creation of new files and directories.
	ScopeWrite Scope = "write:files"
	// ScopeEdit grants modification of existing files.
	ScopeEdit Scope = "edit:files"
	// ScopeDelete grants removal of files and directories.
	ScopeDelete Scope = "delete:files"
)

// ErrInvalidKey reports a credential that matches no configured key.
var ErrInvalidKey = errors.New("Invalid API key")

// DeniedError reports a valid credential lacking scopes a tool requires.
type DeniedError struct {
	// Client identifies the credential that was refused.
	Client string
	// Missing lists the required scopes the credential does not hold.
	Missing []Scope
}

func (e *DeniedError) Error() string {
	names := make([]string, len(e.Missing))
	for i, s := range e.Missing {
		names[i] = string(s)
	}
	return fmt.Sprintf("Access denied. Missing required scopes: %s", strings.Join(names, ", "))
}

// Identity is the outcome of a successful credential check.
type Identity struct {
	// Client is a stable identifier for logging, never the key itself.
	Client string
	// Scopes are the permissions the credential grants.
	Scopes []Scope
	// Unrestricted marks the no-auth mode where every action is allowed.
	Unrestricted bool
}

type entry struct {
	key    string
	client string
	scopes []Scope
}

// Authorizer validates credentials and enforces per-tool scopes. With no
// keys configured it runs unrestricted: every caller holds every scope,
// and the server logs a warning at startup while that mode is active.
type Authorizer struct {
	entries []entry
}

// Keys describes the three credential slots the server configures. Empty
// slots are skipped; all three empty selects unrestricted mode.
type Keys struct {
	// ReadKey grants read:files only.
	ReadKey string
	// WriteKey grants read, write and edit.
	WriteKey string
	// AdminKey grants every scope.
	AdminKey string
}

// NewAuthorizer builds an authorizer from the configured key slots.
func NewAuthorizer(keys Keys) *Authorizer {
	a := &Authorizer{}
	if keys.ReadKey != "" {
		a.entries = append(a.entries, entry{
			key:    keys.ReadKey,
			client: "read-only-user",
			scopes: []Scope{ScopeRead},
		})
	}
	if keys.WriteKey != "" {
		a.entries = append(a.entries, entry{
			key:    keys.WriteKey,
			client: "write-user",
			scopes: []Scope{ScopeRead, ScopeWrite, ScopeEdit},
		})
	}
	if keys.AdminKey != "" {
		a.entries = append(a.entries, entry{
			key:    keys.AdminKey,
			client: "admin-user",
			scopes: []Scope{ScopeRead, ScopeWrite, ScopeEdit, ScopeDelete},
		})
	}
	return a
}

// Unrestricted reports whether no keys are configured.
func (a *Authorizer) Unrestricted() bool {
	return len(a.entries) == 0
}

// Authenticate resolves a presented credential to an identity. Every
// configured key is compared in constant time before deciding, so timing
// does not reveal which key prefix matched. Trusted callers, such as the
// stdio transport on a local machine, bypass the key check.
func (a *Authorizer) Authenticate(credential string, trusted bool) (Identity, error) {
	if a.Unrestricted() || trusted {
		return Identity{
			Client:       "unrestricted",
			Scopes:       []Scope{ScopeRead, ScopeWrite, ScopeEdit, ScopeDelete},
			Unrestricted: true,
		}, nil
	}
	matched := -1
	for i, e := range a.entries {
		if subtle.ConstantTimeCompare([]byte(credential), []byte(e.key)) == 1 {
			matched = i
		}
	}
	if matched < 0 {
		return Identity{}, ErrInvalidKey
	}
	e := a.entries[matched]
	return Identity{Client: e.client, Scopes: append([]Scope(nil), e.scopes...)}, nil
}

// Authorize checks that id holds every required scope. The returned
// DeniedError lists the missing scopes in sorted order so the message is
// stable regardless of tool declaration order.
func (a *Authorizer) Authorize(id Identity, required ...Scope) error {
	if id.Unrestricted {
		return nil
	}
	held := make(map[Scope]struct{}, len(id.Scopes))
	for _, s := range id.Scopes {
		held[s] = struct{}{}
	}
	var missing []Scope
	for _, req := range required {
		if _, ok := held[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return &DeniedError{Client: id.Client, Missing: missing}
}

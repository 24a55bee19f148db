package scopes

import (
	"errors"
	"testing"
)

func TestAuthenticateKnownKeys(t *testing.T) {
	t.Parallel()
	a := NewAuthorizer(Keys{ReadKey: "rk", WriteKey: "wk", AdminKey: "ak"})

	tests := []struct {
		name       string
		credential string
		wantClient string
		wantScopes []Scope
	}{
		{
			name:       "read key",
			credential: "rk",
			wantClient: "read-only-user",
			wantScopes: []Scope{ScopeRead},
		},
		{
			name:       "write key",
			credential: "wk",
			wantClient: "write-user",
			wantScopes: []Scope{ScopeRead, ScopeWrite, ScopeEdit},
		},
		{
			name:       "admin key",
			credential: "ak",
			wantClient: "admin-user",
			wantScopes: []Scope{ScopeRead, ScopeWrite, ScopeEdit, ScopeDelete},
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			id, err := a.Authenticate(tc.credential, false)
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if id.Client != tc.wantClient {
				t.Fatalf("expected client %q, got %+v", tc.wantClient, id)
			}
			if id.Unrestricted {
				t.Fatalf("expected restricted identity, got %+v", id)
			}
			if len(id.Scopes) != len(tc.wantScopes) {
				t.Fatalf("expected scopes %v, got %v", tc.wantScopes, id.Scopes)
			}
			for i := range id.Scopes {
				if id.Scopes[i] != tc.wantScopes[i] {
					t.Fatalf("expected scopes %v, got %v", tc.wantScopes, id.Scopes)
				}
			}
		})
	}
}

func TestAuthenticateRejectsUnknownKey(t *testing.T) {
	t.Parallel()
	a := NewAuthorizer(Keys{ReadKey: "rk"})
	for _, credential := range []string{"", "wrong", "rk2", "r"} {
		if _, err := a.Authenticate(credential, false); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey for %q, got %v", credential, err)
		}
	}
}

func TestAuthenticateUnrestrictedMode(t *testing.T) {
	t.Parallel()
	a := NewAuthorizer(Keys{})
	if !a.Unrestricted() {
		t.Fatal("expected unrestricted mode with no keys")
	}
	id, err := a.Authenticate("anything", false)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !id.Unrestricted {
		t.Fatalf("expected unrestricted identity, got %+v", id)
	}
	if err := a.Authorize(id, ScopeDelete); err != nil {
		t.Fatalf("expected unrestricted identity to hold every scope, got %v", err)
	}
}

func TestAuthenticateTrustedCaller(t *testing.T) {
	t.Parallel()
	a := NewAuthorizer(Keys{ReadKey: "rk"})
	id, err := a.Authenticate("", true)
	if err != nil {
		t.Fatalf("Authenticate trusted: %v", err)
	}
	if !id.Unrestricted {
		t.Fatalf("expected trusted caller to be unrestricted, got %+v", id)
	}
}

func TestAuthorizeMissingScopes(t *testing.T) {
	t.Parallel()
	a := NewAuthorizer(Keys{ReadKey: "rk", WriteKey: "wk"})

	readID, err := a.Authenticate("rk", false)
	if err != nil {
		t.Fatalf("Authenticate read: %v", err)
	}
	writeID, err := a.Authenticate("wk", false)
	if err != nil {
		t.Fatalf("Authenticate write: %v", err)
	}

	tests := []struct {
		name     string
		id       Identity
		required []Scope
		wantErr  string
	}{
		{name: "read holds read", id: readID, required: []Scope{ScopeRead}},
		{
			name:     "read lacks edit",
			id:       readID,
			required: []Scope{ScopeRead, ScopeEdit},
			wantErr:  "Access denied. Missing required scopes: edit:files",
		},
		{
			name:     "read lacks delete and write sorted",
			id:       readID,
			required: []Scope{ScopeWrite, ScopeDelete},
			wantErr:  "Access denied. Missing required scopes: delete:files, write:files",
		},
		{name: "write holds edit", id: writeID, required: []Scope{ScopeEdit}},
		{
			name:     "write lacks delete",
			id:       writeID,
			required: []Scope{ScopeDelete},
			wantErr:  "Access denied. Missing required scopes: delete:files",
		},
		{name: "no scopes required", id: readID},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := a.Authorize(tc.id, tc.required...)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Authorize: %v", err)
				}
				return
			}
			var denied *DeniedError
			if !errors.As(err, &denied) {
				t.Fatalf("expected DeniedError, got %v", err)
			}
			if err.Error() != tc.wantErr {
				t.Fatalf("expected %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

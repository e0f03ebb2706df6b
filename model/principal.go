package model

import "context"

// Principal identifies the authenticated caller of the API. When
// authentication is disabled the transport layer installs an anonymous
// principal.
type Principal struct {
	SubjectID string   `json:"subject_id"`
	Name      string   `json:"name,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

type principalKey struct{}

// WithPrincipal stores a principal in the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in the context, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

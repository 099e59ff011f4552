package shared

import "context"

// OrgContext carries the acting organisation and user for a request.
// It is passed explicitly into services instead of being read from any
// ambient global state.
type OrgContext struct {
	OrgID       int64
	ActorID     int64
	Permissions []string
}

// Can reports whether the context holds the given permission.
func (o OrgContext) Can(perm string) bool {
	for _, p := range o.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

type orgContextKey struct{}

// ContextWithOrg stores the org context in ctx.
func ContextWithOrg(ctx context.Context, octx OrgContext) context.Context {
	return context.WithValue(ctx, orgContextKey{}, octx)
}

// OrgFromContext extracts the org context from ctx.
func OrgFromContext(ctx context.Context) OrgContext {
	octx, _ := ctx.Value(orgContextKey{}).(OrgContext)
	return octx
}

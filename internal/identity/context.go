package identity

import "context"

type ctxKey string

const (
	callerKey    ctxKey = "kalos.caller"
	requestIDKey ctxKey = "kalos.request_id"
)

// Role values carried in access tokens.
const (
	RoleCustomer     = "customer"
	RoleProfessional = "professional"
	RoleAdmin        = "admin"
)

// Caller is the authenticated principal behind a request.
type Caller struct {
	Subject string
	Role    string
}

// IsAdmin reports whether the caller may use administrative routes.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// WithCaller stores the caller in context.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext extracts the caller if present.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey).(Caller)
	return caller, ok && caller.Subject != ""
}

// WithRequestID stores the request id in context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id, or "" when absent.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

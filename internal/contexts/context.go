package contexts

import (
	"context"

	"github.com/keeldata/trustvault/internal/vault"
)

// ContextKey defines the context key type.
type ContextKey string

const (
	// containerContextKey is used to store the context container in the context.
	containerContextKey ContextKey = "context_container"
)

// WithSession stores the validated session in the context.
func WithSession(ctx context.Context, session *vault.Session) context.Context {
	container := getContainer(ctx)
	container.Session = session

	return withContainer(ctx, container)
}

// GetSession retrieves the validated session from the context.
func GetSession(ctx context.Context) (*vault.Session, bool) {
	container := getContainer(ctx)

	return container.Session, container.Session != nil
}

// GetSessionDigest retrieves the token digest of the validated session.
func GetSessionDigest(ctx context.Context) (string, bool) {
	session, ok := GetSession(ctx)
	if !ok || session == nil {
		return "", false
	}

	return session.TokenDigest, true
}

// WithActor stores the authenticated actor hub in the context.
func WithActor(ctx context.Context, actor *vault.Hub) context.Context {
	container := getContainer(ctx)
	container.Actor = actor

	return withContainer(ctx, container)
}

// GetActor retrieves the authenticated actor hub from the context.
func GetActor(ctx context.Context) (*vault.Hub, bool) {
	container := getContainer(ctx)

	return container.Actor, container.Actor != nil
}

// WithTenantKey stores the tenant key in the context.
func WithTenantKey(ctx context.Context, key vault.HashKey) context.Context {
	container := getContainer(ctx)
	container.TenantKey = &key

	return withContainer(ctx, container)
}

// GetTenantKey retrieves the tenant key from the context.
func GetTenantKey(ctx context.Context) (vault.HashKey, bool) {
	container := getContainer(ctx)
	if container.TenantKey != nil {
		return *container.TenantKey, true
	}

	return vault.HashKey{}, false
}

// WithTraceID stores the trace id in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	container := getContainer(ctx)
	container.TraceID = &traceID

	return withContainer(ctx, container)
}

// GetTraceID retrieves the trace id from the context.
func GetTraceID(ctx context.Context) (string, bool) {
	container := getContainer(ctx)
	if container.TraceID != nil {
		return *container.TraceID, true
	}

	return "", false
}

// WithRequestID stores the request id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	container := getContainer(ctx)
	container.RequestID = &requestID

	return withContainer(ctx, container)
}

// GetRequestID retrieves the request id from the context.
func GetRequestID(ctx context.Context) (string, bool) {
	container := getContainer(ctx)
	if container.RequestID != nil {
		return *container.RequestID, true
	}

	return "", false
}

// WithOperationName stores the operation name in the context.
func WithOperationName(ctx context.Context, name string) context.Context {
	container := getContainer(ctx)
	container.OperationName = &name

	return withContainer(ctx, container)
}

// GetOperationName retrieves the operation name from the context.
func GetOperationName(ctx context.Context) (string, bool) {
	container := getContainer(ctx)
	if container.OperationName != nil {
		return *container.OperationName, true
	}

	return "", false
}

// WithError appends an error to the context so the access log can report
// failures surfaced below the handler.
func WithError(ctx context.Context, err error) context.Context {
	if err == nil {
		return ctx
	}

	container := getContainer(ctx)

	container.mu.Lock()
	container.Errors = append(container.Errors, err)
	container.mu.Unlock()

	return withContainer(ctx, container)
}

// GetErrors retrieves a snapshot of the errors collected in the context.
func GetErrors(ctx context.Context) []error {
	container := getContainer(ctx)

	container.mu.RLock()
	defer container.mu.RUnlock()

	if len(container.Errors) == 0 {
		return nil
	}

	errs := make([]error, len(container.Errors))
	copy(errs, container.Errors)

	return errs
}

package contexts

import "context"

// Source identifies the surface a request entered through.
type Source string

const (
	// SourceAPI is the data-plane surface guarded by sessions.
	SourceAPI Source = "api"

	// SourceAdmin is the operator surface guarded by sign-in tokens.
	SourceAdmin Source = "admin"

	// SourceSystem marks work the platform starts on its own, such as
	// bootstrap and retention.
	SourceSystem Source = "system"
)

// WithSource stores the request source in the context.
func WithSource(ctx context.Context, source Source) context.Context {
	container := getContainer(ctx)
	container.Source = &source

	return withContainer(ctx, container)
}

// GetSource retrieves the request source from the context.
func GetSource(ctx context.Context) (Source, bool) {
	container := getContainer(ctx)
	if container.Source != nil {
		return *container.Source, true
	}

	return SourceAPI, false
}

// GetSourceOrDefault retrieves the request source from the context, or returns the default value if it doesn't exist.
func GetSourceOrDefault(ctx context.Context, defaultSource Source) Source {
	if source, ok := GetSource(ctx); ok {
		return source
	}

	return defaultSource
}

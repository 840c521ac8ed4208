package audit

import "context"

// RequestMeta is the caller information copied onto every audit row.
type RequestMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

type metaKey struct{}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	if ctx == nil {
		return RequestMeta{}, false
	}
	meta, ok := ctx.Value(metaKey{}).(RequestMeta)
	return meta, ok
}

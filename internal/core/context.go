package core

import "context"

type contextKey int

const (
	ctxKeyIPAddress contextKey = iota
	ctxKeyUserAgent
)

// ContextWithIPAddress records the caller's IP for run history.
func ContextWithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyIPAddress, ip)
}

// ContextWithUserAgent records the caller's User-Agent for run history.
func ContextWithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, ctxKeyUserAgent, ua)
}

// GetIPAddressFromContext returns the IP set by ContextWithIPAddress, or "".
func GetIPAddressFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ctxKeyIPAddress).(string)
	return ip
}

// GetUserAgentFromContext returns the User-Agent set by ContextWithUserAgent, or "".
func GetUserAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(ctxKeyUserAgent).(string)
	return ua
}

package shared

import "context"

type clientContextKey struct{}

// Client identifies the authenticated caller of the service API.
type Client struct {
	ID   string
	Name string
}

// ContextWithClient stores the authenticated client in context.
func ContextWithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientContextKey{}, c)
}

// ClientFromContext extracts the authenticated client from context.
func ClientFromContext(ctx context.Context) *Client {
	c, _ := ctx.Value(clientContextKey{}).(*Client)
	return c
}

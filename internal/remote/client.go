package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/good12834/shoestore/internal/domain"
	"github.com/good12834/shoestore/pkg/httpclient"
	"github.com/good12834/shoestore/pkg/tracing"
)

const (
	tracerName  = "github.com/good12834/shoestore/internal/remote"
	serviceName = "storefront-api"

	// maxListBody bounds a collection response.
	maxListBody = 4 << 20
)

// TokenSource supplies the bearer token for each request. An empty token
// sends no Authorization header.
type TokenSource interface {
	Token() string
}

// Config holds remote API settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to the storefront backend's cart and wishlist collections.
type Client struct {
	http    *httpclient.Client
	baseURL string
	tokens  TokenSource
	logger  *slog.Logger
}

// NewClient creates a remote API client. Retries default to zero so a
// failed push is reported once rather than replayed.
func NewClient(cfg Config, tokens TokenSource, logger *slog.Logger) *Client {
	httpCfg := httpclient.DefaultConfig()
	httpCfg.MaxRetries = cfg.MaxRetries
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	return &Client{
		http:    httpclient.New(httpCfg),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  tokens,
		logger:  logger,
	}
}

// FetchCart returns the server's cart lines.
func (c *Client) FetchCart(ctx context.Context) (lines []domain.CartLine, err error) {
	ctx, span := c.startSpan(ctx, "remote.FetchCart", http.MethodGet, "/cart")
	defer func() { tracing.End(span, err) }()

	body, err := c.getList(ctx, "/cart")
	if err != nil {
		return nil, err
	}
	wire, err := decodeList[wireCartLine](body)
	if err != nil {
		return nil, fmt.Errorf("fetch cart: %w", err)
	}

	lines = make([]domain.CartLine, 0, len(wire))
	for _, w := range wire {
		lines = append(lines, w.toDomain())
	}
	span.SetAttributes(attribute.Int("storefront.items", len(lines)))
	return lines, nil
}

// PushCartLine upserts one line on the server.
func (c *Client) PushCartLine(ctx context.Context, line domain.CartLine) (err error) {
	ctx, span := c.startSpan(ctx, "remote.PushCartLine", http.MethodPost, "/cart")
	defer func() { tracing.End(span, err) }()

	return c.post(ctx, "/cart", cartLineRequest{
		ProductID: line.ProductID,
		Quantity:  line.Quantity,
		Size:      line.Size,
		Color:     line.Color,
	})
}

// FetchWishlist returns the server's wishlist entries.
func (c *Client) FetchWishlist(ctx context.Context) (entries []domain.WishlistEntry, err error) {
	ctx, span := c.startSpan(ctx, "remote.FetchWishlist", http.MethodGet, "/wishlist")
	defer func() { tracing.End(span, err) }()

	body, err := c.getList(ctx, "/wishlist")
	if err != nil {
		return nil, err
	}
	wire, err := decodeList[wireWishlistEntry](body)
	if err != nil {
		return nil, fmt.Errorf("fetch wishlist: %w", err)
	}

	entries = make([]domain.WishlistEntry, 0, len(wire))
	for _, w := range wire {
		entries = append(entries, w.toDomain())
	}
	span.SetAttributes(attribute.Int("storefront.items", len(entries)))
	return entries, nil
}

// PushWishlistEntry adds one product to the server's wishlist.
func (c *Client) PushWishlistEntry(ctx context.Context, entry domain.WishlistEntry) (err error) {
	ctx, span := c.startSpan(ctx, "remote.PushWishlistEntry", http.MethodPost, "/wishlist")
	defer func() { tracing.End(span, err) }()

	return c.post(ctx, "/wishlist", wishlistEntryRequest{ProductID: entry.ProductID})
}

func (c *Client) startSpan(ctx context.Context, name, method, path string) (context.Context, trace.Span) {
	return tracing.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", c.baseURL+path),
		),
	)
}

func (c *Client) options() []httpclient.RequestOption {
	return []httpclient.RequestOption{
		httpclient.WithBearer(c.tokens.Token()),
		httpclient.WithTraceContext(),
	}
}

func (c *Client) getList(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.http.Get(ctx, c.baseURL+path, c.options()...)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if !httpclient.IsSuccess(resp.StatusCode) {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListBody))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	resp, err := c.http.PostJSON(ctx, c.baseURL+path, payload, c.options()...)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	if !httpclient.IsSuccess(resp.StatusCode) {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxListBody))
	_ = resp.Body.Close()

	c.logger.DebugContext(ctx, "remote write accepted",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}

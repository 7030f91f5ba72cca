package mapslink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const expandUserAgent = "mapslink/1.0 (+https://github.com/JakeFAU/mapslink)"

// LinkExpander turns a short link into its canonical destination.
type LinkExpander interface {
	Expand(ctx context.Context, raw string) (string, error)
}

// Expander follows HTTP redirects with a bounded timeout.
type Expander struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewExpander builds an Expander that follows at most maxRedirects hops, each of
// which must land on one of allowedHosts. An empty list means DefaultAllowedHosts.
func NewExpander(timeout time.Duration, maxRedirects int, allowedHosts []string, logger *zap.Logger) *Expander {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	if len(allowedHosts) == 0 {
		allowedHosts = DefaultAllowedHosts
	}
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if host, ok := hostOf(req.URL.String()); !ok || !hostMatches(host, allowedHosts) {
				return fmt.Errorf("redirect to disallowed host %q", req.URL.Host)
			}
			return nil
		},
	}
	return &Expander{client: client, timeout: timeout, logger: logger}
}

// Expand GETs raw, following redirects, and returns the final request URL.
// Failures are *Error values of KindNetworkTimeout or KindLinkExpansionFailed.
func (e *Expander) Expand(ctx context.Context, raw string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", newError(KindLinkExpansionFailed, StageResolving, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", expandUserAgent)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", newError(KindNetworkTimeout, StageResolving, fmt.Errorf("expand link: %w", err))
		}
		return "", newError(KindLinkExpansionFailed, StageResolving, fmt.Errorf("expand link: %w", err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			e.logger.Debug("close expansion body failed", zap.Error(cerr))
		}
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	final := resp.Request.URL.String()
	e.logger.Debug("short link expanded",
		zap.String("url", raw),
		zap.String("final_url", final),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return final, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Package keepalive pings the service's own public /health endpoint so free
// hosting tiers do not idle it out.
package keepalive

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"hatsubai/internal/util"

	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 10 * time.Second

type Pinger struct {
	resty  *resty.Client
	logger *log.Logger
}

func New(baseURL string, logger *log.Logger) *Pinger {
	if logger == nil {
		logger = log.Default()
	}
	restyClient := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(defaultTimeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "hatsubai-keepalive")
	return &Pinger{resty: restyClient, logger: logger}
}

// Ping requests /health once. Any response counts as alive for the host, but
// non-2xx statuses are reported.
func (p *Pinger) Ping(ctx context.Context) error {
	resp, err := p.resty.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("keep-alive ping: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("keep-alive ping: status %d", resp.StatusCode())
	}
	return nil
}

// Job returns a cron callback that pings and logs failures only.
func (p *Pinger) Job(ctx context.Context) func() {
	return func() {
		if err := p.Ping(ctx); err != nil {
			p.logger.Printf("%s %s %v", util.Yellow("!!! WARN"), util.Cyan("[KEEPALIVE]"), err)
		}
	}
}

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"allenchat/internal/endpoint"
	"allenchat/internal/models"
	"allenchat/internal/provider"
)

const dateLayout = "2006-01-02"

// Billing queries the dashboard usage and subscription endpoints.
type Billing struct {
	client   *resty.Client
	resolver *endpoint.Resolver
	headers  map[string]string
	now      func() time.Time
}

// NewBilling constructs a usage client over the resolved endpoint.
func NewBilling(client *resty.Client, resolver *endpoint.Resolver, headers map[string]string) *Billing {
	return &Billing{
		client:   client,
		resolver: resolver,
		headers:  headers,
		now:      time.Now,
	}
}

type usageResponse struct {
	TotalUsage float64         `json:"total_usage"`
	Error      *apiErrorObject `json:"error,omitempty"`
}

type subscriptionResponse struct {
	HardLimitUSD float64 `json:"hard_limit_usd"`
}

// Query fetches spending for the current month and the hard limit in parallel.
func (b *Billing) Query(ctx context.Context) (models.Usage, error) {
	now := b.now()
	startDate := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format(dateLayout)
	endDate := now.Add(24 * time.Hour).Format(dateLayout)

	usageURL, err := b.resolver.Path(fmt.Sprintf("%s?start_date=%s&end_date=%s", endpoint.UsagePath, startDate, endDate))
	if err != nil {
		return models.Usage{}, err
	}
	subsURL, err := b.resolver.Path(endpoint.SubsPath)
	if err != nil {
		return models.Usage{}, err
	}

	var used, subs *resty.Response
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := b.get(gctx, usageURL)
		used = res
		return err
	})
	g.Go(func() error {
		res, err := b.get(gctx, subsURL)
		subs = res
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Usage{}, fmt.Errorf("query usage: %w", err)
	}

	if used.StatusCode() == http.StatusUnauthorized {
		return models.Usage{}, provider.ErrUnauthorized
	}
	if !used.IsSuccess() || !subs.IsSuccess() {
		return models.Usage{}, fmt.Errorf("%w: status %d / %d", provider.ErrUsageQuery, used.StatusCode(), subs.StatusCode())
	}

	var usage usageResponse
	if err := json.Unmarshal(used.Body(), &usage); err != nil {
		return models.Usage{}, fmt.Errorf("decode usage response: %w", err)
	}
	var limit subscriptionResponse
	if err := json.Unmarshal(subs.Body(), &limit); err != nil {
		return models.Usage{}, fmt.Errorf("decode subscription response: %w", err)
	}

	if usage.Error != nil && usage.Error.Type != "" {
		return models.Usage{}, errors.New(usage.Error.Message)
	}

	// total_usage is reported in cents.
	return models.Usage{
		Used:  math.Round(usage.TotalUsage) / 100,
		Total: math.Round(limit.HardLimitUSD*100) / 100,
	}, nil
}

func (b *Billing) get(ctx context.Context, url string) (*resty.Response, error) {
	res, err := b.client.R().
		SetContext(ctx).
		SetHeaders(b.headers).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return res, nil
}

// Copyright 2024
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package alphavantage fetches company overviews and annual financial
// statements from the Alpha Vantage query API. The client enforces a fixed
// cooldown between requests and backs off once on a provider throttle
// signal; it performs no parsing beyond the marker detection needed to
// recognize throttling.
package alphavantage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/finlore/fsdata/data"
)

const (
	BaseURL = "https://www.alphavantage.co/query"

	// DefaultCooldown keeps the client under the free-tier request quota
	DefaultCooldown = 15 * time.Second

	// DefaultThrottleCooldown is the extended pause after the provider
	// signals quota exhaustion in a response body
	DefaultThrottleCooldown = 60 * time.Second

	throttlePhrase = "API call frequency"
)

// FetchError describes a network-level fetch failure for one statement
// request. These are never retried by the client; they surface to the
// pipeline which skips only the affected statement-kind step.
type FetchError struct {
	Ticker     string
	Function   string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s for %s failed with status %d", e.Function, e.Ticker, e.StatusCode)
}

// ThrottleError is returned when the provider reports quota exhaustion
// twice in a row for the same call
type ThrottleError struct {
	Ticker   string
	Function string
	Message  string
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("%s request for %s throttled after retry: %s", e.Function, e.Ticker, e.Message)
}

// CompanyOverview holds the subset of the OVERVIEW payload the pipeline
// cares about
type CompanyOverview struct {
	Ticker   string `json:"Symbol"`
	Name     string `json:"Name"`
	Sector   string `json:"Sector"`
	Industry string `json:"Industry"`
}

// marker is the minimal shape needed to recognize provider-side failure
// bodies, which arrive with a 200 status
type marker struct {
	Information  string `json:"Information"`
	Note         string `json:"Note"`
	ErrorMessage string `json:"Error Message"`
}

type Client struct {
	resty            *resty.Client
	limiter          *rate.Limiter
	throttleCooldown time.Duration
	sleep            func(context.Context, time.Duration) error
}

// New creates a client with one request allowed per cooldown interval
func New(apiKey string, cooldown time.Duration, throttleCooldown time.Duration) *Client {
	return &Client{
		resty:            resty.New().SetBaseURL(BaseURL).SetQueryParam("apikey", apiKey),
		limiter:          rate.NewLimiter(rate.Every(cooldown), 1),
		throttleCooldown: throttleCooldown,
		sleep:            sleepCtx,
	}
}

// SetBaseURL points the client at an alternate endpoint
func (client *Client) SetBaseURL(url string) *Client {
	client.resty.SetBaseURL(url)
	return client
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FetchCompanyOverview retrieves company metadata for a ticker. When the
// provider cannot supply a name the ticker itself is used as a fallback
// rather than failing, so an unknown company never blocks ingestion.
func (client *Client) FetchCompanyOverview(ctx context.Context, ticker string) (*CompanyOverview, error) {
	body, err := client.get(ctx, ticker, "OVERVIEW")
	if err != nil {
		return nil, err
	}

	overview := &CompanyOverview{}
	if err := json.Unmarshal(body, overview); err != nil {
		return nil, err
	}

	if overview.Name == "" {
		log.Warn().Str("Ticker", ticker).Msg("overview did not include a company name, falling back to ticker")
		overview.Name = ticker
	}

	overview.Ticker = ticker
	return overview, nil
}

// FetchStatement retrieves the raw payload for one statement kind. The
// payload is returned unparsed; normalization happens downstream.
func (client *Client) FetchStatement(ctx context.Context, ticker string, kind data.StatementKind) ([]byte, error) {
	return client.get(ctx, ticker, string(kind))
}

func (client *Client) get(ctx context.Context, ticker string, function string) ([]byte, error) {
	body, throttled, err := client.once(ctx, ticker, function)
	if err != nil {
		return nil, err
	}

	if !throttled {
		return body, nil
	}

	// one bounded retry after the extended cooldown
	log.Warn().Str("Ticker", ticker).Str("Function", function).
		Dur("Cooldown", client.throttleCooldown).Msg("provider throttle signal received, backing off")

	if err := client.sleep(ctx, client.throttleCooldown); err != nil {
		return nil, err
	}

	body, throttled, err = client.once(ctx, ticker, function)
	if err != nil {
		return nil, err
	}

	if throttled {
		var m marker
		_ = json.Unmarshal(body, &m)
		return nil, &ThrottleError{Ticker: ticker, Function: function, Message: m.Information}
	}

	return body, nil
}

func (client *Client) once(ctx context.Context, ticker string, function string) ([]byte, bool, error) {
	if err := client.limiter.Wait(ctx); err != nil {
		return nil, false, err
	}

	resp, err := client.resty.R().
		SetContext(ctx).
		SetQueryParam("function", function).
		SetQueryParam("symbol", ticker).
		Get("")
	if err != nil {
		return nil, false, err
	}

	if resp.StatusCode() >= 300 {
		return nil, false, &FetchError{Ticker: ticker, Function: function, StatusCode: resp.StatusCode()}
	}

	body := resp.Body()

	var m marker
	if err := json.Unmarshal(body, &m); err == nil {
		if strings.Contains(m.Information, throttlePhrase) {
			return body, true, nil
		}
	}

	return body, false, nil
}

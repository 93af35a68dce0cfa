// Package earthengine queries the Google Earth Engine REST API for one
// SMAP image per day, reduced per grid cell server-side.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/atkinslab/smap-extract/internal/config"
	"github.com/atkinslab/smap-extract/internal/domain"
	"github.com/atkinslab/smap-extract/internal/observability"
)

const earthEngineScope = "https://www.googleapis.com/auth/earthengine"

// RemoteError is a non-200 answer from the Earth Engine API. The job treats
// it as a per-date failure: logged, counted, never retried.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("earth engine: status %d: %s", e.StatusCode, e.Body)
}

// Client runs per-date reduction computations against the Earth Engine API.
type Client struct {
	project     string
	collection  string
	gridAsset   string
	regionAsset string
	bands       []domain.Band
	crs         string
	scaleMeters int
	maxPixels   int64
	fillValue   float64

	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient builds an authenticated Earth Engine client from config.
// Authentication uses a Google service-account credentials file when
// GOOGLE_APPLICATION_CREDENTIALS is set, or a static bearer token (EE_TOKEN).
func NewClient(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*Client, error) {
	httpClient, err := newAuthClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bands := make([]domain.Band, len(cfg.Bands))
	for i, b := range cfg.Bands {
		bands[i] = domain.Band(b)
	}

	return &Client{
		project:     cfg.EEProject,
		collection:  cfg.EECollection,
		gridAsset:   cfg.EEGridAsset,
		regionAsset: cfg.EERegionAsset,
		bands:       bands,
		crs:         cfg.CRS,
		scaleMeters: cfg.ScaleMeters,
		maxPixels:   cfg.MaxPixels,
		fillValue:   cfg.FillValue,
		httpClient:  httpClient,
		baseURL:     cfg.EEBaseURL,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

func newAuthClient(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	var source oauth2.TokenSource
	switch {
	case cfg.EECredentialsFile != "":
		data, err := os.ReadFile(cfg.EECredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, earthEngineScope)
		if err != nil {
			return nil, fmt.Errorf("parse credentials: %w", err)
		}
		source = creds.TokenSource
	case cfg.EEToken != "":
		source = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.EEToken})
	default:
		return nil, errors.New("earth engine credentials required: set GOOGLE_APPLICATION_CREDENTIALS or EE_TOKEN")
	}

	client := oauth2.NewClient(ctx, source)
	client.Timeout = cfg.EETimeout
	return client, nil
}

type computeRequest struct {
	Expression map[string]any `json:"expression"`
}

type computeResponse struct {
	Result struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"features"`
	} `json:"result"`
}

// FetchDate computes the per-cell band reduction for one day and returns the
// cells in grid order. A valid date with no image in the collection window
// yields an error wrapping domain.ErrNoImage.
func (c *Client) FetchDate(ctx context.Context, d domain.Date) ([]domain.CellSamples, error) {
	body, err := json.Marshal(computeRequest{Expression: c.buildExpression(d)})
	if err != nil {
		return nil, fmt.Errorf("encode expression: %w", err)
	}

	url := fmt.Sprintf("%s/projects/%s/value:compute", c.baseURL, c.project)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("compute request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.QueryDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &RemoteError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	var cr computeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(cr.Result.Features) == 0 {
		return nil, fmt.Errorf("%s %s: %w", c.collection, d, domain.ErrNoImage)
	}

	cells := make([]domain.CellSamples, 0, len(cr.Result.Features))
	for i, f := range cr.Result.Features {
		cell := domain.CellSamples{}
		for _, band := range c.bands {
			raw, ok := f.Properties[string(band)]
			if !ok {
				continue
			}
			var vals []float64
			if err := json.Unmarshal(raw, &vals); err != nil {
				return nil, fmt.Errorf("cell %d band %s: decode pixel list: %w", i, band, err)
			}
			cell[band] = vals
		}
		cells = append(cells, cell)
	}

	c.logger.Debug("reduction complete", "date", d, "cells", len(cells))
	return cells, nil
}

package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adloophq/adloop-backend/internal/domain"
	"github.com/adloophq/adloop-backend/internal/logger"
)

// maxReferenceImages is the FLUX.2 edit endpoint limit on extra input images.
const maxReferenceImages = 7

// FluxClient generates ad creatives with the FLUX.2 Pro edit endpoint: the
// base asset is the input image, remaining assets ride along as references.
// The request is async on the provider side, so each Generate submits, polls
// the returned polling_url until Ready, then downloads the sample and stores
// it in the bucket.
type FluxClient struct {
	log        *logger.Logger
	endpoint   string
	apiKey     string
	bucket     BucketService
	httpClient *http.Client

	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewFluxClient(log *logger.Logger, bucket BucketService) (*FluxClient, error) {
	apiKey := os.Getenv("BFL_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing BFL_API_KEY")
	}

	endpoint := os.Getenv("FLUX_ENDPOINT")
	if endpoint == "" {
		endpoint = "https://api.bfl.ai/v1/flux-2-pro"
	}

	pollTimeout := 120 * time.Second
	if v := os.Getenv("FLUX_POLL_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			pollTimeout = time.Duration(parsed) * time.Second
		}
	}

	return &FluxClient{
		log:          log.With("service", "FluxClient"),
		endpoint:     endpoint,
		apiKey:       apiKey,
		bucket:       bucket,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		pollInterval: 2 * time.Second,
		pollTimeout:  pollTimeout,
	}, nil
}

type fluxSubmitResponse struct {
	ID         string  `json:"id"`
	PollingURL string  `json:"polling_url"`
	Cost       float64 `json:"cost"`
}

type fluxPollResponse struct {
	Status string `json:"status"`
	Result struct {
		Sample string `json:"sample"`
	} `json:"result"`
}

func (c *FluxClient) Generate(ctx context.Context, req GenerateRequest) GenerateResult {
	if req.BaseAsset == nil {
		return GenerateResult{Err: fmt.Errorf("base asset required")}
	}

	baseB64, err := c.encodeAsset(ctx, req.BaseAsset)
	if err != nil {
		return GenerateResult{Err: fmt.Errorf("failed to encode base asset %s: %w", req.BaseAsset.FileName, err)}
	}

	refsB64, err := c.encodeReferences(ctx, req.ReferenceAssets)
	if err != nil {
		return GenerateResult{Err: err}
	}

	width, height := req.Width, req.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}

	payload := map[string]any{
		"prompt":           req.Prompt,
		"input_image":      baseB64,
		"width":            width,
		"height":           height,
		"safety_tolerance": 2,
	}
	for idx, ref := range refsB64 {
		payload[fmt.Sprintf("input_image_%d", idx+2)] = ref
	}

	submit, err := c.submit(ctx, payload)
	if err != nil {
		return GenerateResult{Err: err}
	}
	if submit.PollingURL == "" {
		return GenerateResult{RequestID: submit.ID, Err: fmt.Errorf("no polling_url in submit response")}
	}

	sampleURL, err := c.poll(ctx, submit.PollingURL, submit.ID)
	if err != nil {
		return GenerateResult{RequestID: submit.ID, Err: err}
	}

	fileName, err := c.store(ctx, sampleURL, submit.ID)
	if err != nil {
		return GenerateResult{RequestID: submit.ID, Err: err}
	}

	tags := []string{
		fmt.Sprintf("base_asset:%s", req.BaseAsset.ID),
		fmt.Sprintf("base_category:%s", req.BaseAsset.Category),
		fmt.Sprintf("original_url:%s", sampleURL),
	}
	for _, ref := range req.ReferenceAssets {
		tags = append(tags, fmt.Sprintf("ref_asset:%s", ref.ID))
		tags = append(tags, fmt.Sprintf("ref_category:%s", ref.Category))
	}

	return GenerateResult{
		Success:      true,
		FileName:     fileName,
		RequestID:    submit.ID,
		Cost:         submit.Cost,
		ModelVersion: "flux-2-pro",
		MetadataTags: tags,
	}
}

func (c *FluxClient) encodeReferences(ctx context.Context, refs []*domain.Asset) ([]string, error) {
	if len(refs) > maxReferenceImages {
		refs = refs[:maxReferenceImages]
	}
	out := make([]string, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			b64, err := c.encodeAsset(gctx, ref)
			if err != nil {
				// a missing reference degrades the edit, it does not fail it
				c.log.Warn("Skipping reference asset", "file_name", ref.FileName, "error", err)
				return nil
			}
			out[i] = b64
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	compact := make([]string, 0, len(out))
	for _, b64 := range out {
		if b64 != "" {
			compact = append(compact, b64)
		}
	}
	return compact, nil
}

// encodeAsset fetches the asset bytes (bucket key or absolute URL) and
// returns them base64 encoded.
func (c *FluxClient) encodeAsset(ctx context.Context, asset *domain.Asset) (string, error) {
	var raw []byte
	var err error
	if strings.HasPrefix(asset.FileName, "http://") || strings.HasPrefix(asset.FileName, "https://") {
		raw, err = c.fetchURL(ctx, asset.FileName)
	} else {
		raw, err = c.bucket.DownloadFile(ctx, asset.FileName)
	}
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (c *FluxClient) fetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: http %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *FluxClient) submit(ctx context.Context, payload map[string]any) (*fluxSubmitResponse, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("flux submit failed with status %d: %s", resp.StatusCode, string(raw))
	}

	var out fluxSubmitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("flux submit decode error: %w", err)
	}
	return &out, nil
}

func (c *FluxClient) poll(ctx context.Context, pollingURL, requestID string) (string, error) {
	deadline := time.Now().Add(c.pollTimeout)

	for {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		url := pollingURL
		if requestID != "" {
			sep := "?"
			if strings.Contains(pollingURL, "?") {
				sep = "&"
			}
			url = pollingURL + sep + "id=" + requestID
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set("x-key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		raw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return "", readErr
		}

		var out fluxPollResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return "", fmt.Errorf("flux poll decode error: %w", err)
		}

		switch out.Status {
		case "Ready":
			if out.Result.Sample == "" {
				return "", fmt.Errorf("flux result ready but no sample url")
			}
			return out.Result.Sample, nil
		case "Failed", "Error":
			return "", fmt.Errorf("flux job failed: %s", string(raw))
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("flux polling timed out before result was ready")
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// store downloads the sample and uploads it under generated/<request_id>.<ext>.
func (c *FluxClient) store(ctx context.Context, sampleURL, requestID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sampleURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to download sample from %s: http %d", sampleURL, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	ext := ".jpg"
	contentType := resp.Header.Get("content-type")
	switch {
	case strings.Contains(contentType, "png"):
		ext = ".png"
	case strings.Contains(contentType, "webp"):
		ext = ".webp"
	}

	key := "generated/" + requestID + ext
	if err := c.bucket.UploadFile(ctx, key, bytes.NewReader(raw)); err != nil {
		return "", err
	}
	return key, nil
}

package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/oriongate/dicomdispatch/internal/metrics"
	"github.com/oriongate/dicomdispatch/internal/resilience"
	"github.com/oriongate/dicomdispatch/internal/restree"
)

// HTTPClient implements Client against the REST endpoints listed in
// spec.md §6. It rate-limits outbound calls with golang.org/x/time/rate
// so a large resource-tree expansion (one request per series, one per
// instance) cannot overrun the archive, and retries transient failures
// through internal/resilience before surfacing an ArchiveIO error.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// WithMetrics attaches m so every call is counted by operation/outcome.
// Optional: a client with no metrics attached simply skips recording.
func (c *HTTPClient) WithMetrics(m *metrics.Metrics) *HTTPClient {
	c.metrics = m
	return c
}

// Config holds HTTPClient construction parameters.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RateLimitPerS  float64 // 0 disables limiting
	RateLimitBurst int
	Retry          resilience.Policy
	Logger         *slog.Logger
}

func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RateLimitPerS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerS), burst)
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		retry:   cfg.Retry,
		logger:  logger,
	}
}

func (c *HTTPClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	err := c.doRetry(ctx, op, method, path, body, out)
	if c.metrics != nil {
		c.metrics.ObserveArchiveCall(op, err)
	}
	return err
}

func (c *HTTPClient) doRetry(ctx context.Context, op, method, path string, body []byte, out any) error {
	return c.retry.Do(ctx, op, func() error {
		if err := c.wait(ctx); err != nil {
			return resilience.Wrap(resilience.ArchiveIO, op, err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return resilience.Wrap(resilience.ArchiveIO, op, err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/dicom")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return resilience.Wrap(resilience.ArchiveIO, op, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resilience.Wrap(resilience.ArchiveIO, op, err)
		}
		if resp.StatusCode >= 300 {
			return resilience.Wrap(resilience.ArchiveIO, op, fmt.Errorf("archive returned %d: %s", resp.StatusCode, data))
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return resilience.Wrap(resilience.ArchiveIO, op, err)
			}
		}
		return nil
	})
}

func (c *HTTPClient) ListStudies(ctx context.Context, patientID string) ([]string, error) {
	var resp struct {
		Studies []string `json:"Studies"`
	}
	if err := c.do(ctx, "list_studies", http.MethodGet, "/patients/"+patientID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Studies, nil
}

func (c *HTTPClient) ListSeries(ctx context.Context, studyID string) ([]string, error) {
	var resp struct {
		Series []string `json:"Series"`
	}
	if err := c.do(ctx, "list_series", http.MethodGet, "/studies/"+studyID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Series, nil
}

func (c *HTTPClient) ListInstances(ctx context.Context, seriesID string) ([]string, error) {
	var resp struct {
		Instances []string `json:"Instances"`
	}
	if err := c.do(ctx, "list_instances", http.MethodGet, "/series/"+seriesID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Instances, nil
}

func (c *HTTPClient) GetMetadata(ctx context.Context, instanceID string) (restree.InstanceMeta, error) {
	var resp struct {
		Origin    string `json:"Origin"`
		CalledAET string `json:"CalledAET"`
		RemoteAET string `json:"RemoteAET"`
	}
	if err := c.do(ctx, "get_metadata", http.MethodGet, "/instances/"+instanceID+"/metadata?expand", nil, &resp); err != nil {
		return restree.InstanceMeta{}, err
	}
	return restree.InstanceMeta{Origin: resp.Origin, CalledAET: resp.CalledAET, RemoteAET: resp.RemoteAET}, nil
}

func (c *HTTPClient) GetDicomBytes(ctx context.Context, instanceID string) ([]byte, error) {
	raw, err := c.getDicomBytesRetry(ctx, instanceID)
	if c.metrics != nil {
		c.metrics.ObserveArchiveCall("get_dicom", err)
	}
	return raw, err
}

func (c *HTTPClient) getDicomBytesRetry(ctx context.Context, instanceID string) ([]byte, error) {
	var raw []byte
	err := c.retry.Do(ctx, "get_dicom", func() error {
		if err := c.wait(ctx); err != nil {
			return resilience.Wrap(resilience.ArchiveIO, "get_dicom", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/instances/"+instanceID+"/file", nil)
		if err != nil {
			return resilience.Wrap(resilience.ArchiveIO, "get_dicom", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return resilience.Wrap(resilience.ArchiveIO, "get_dicom", err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resilience.Wrap(resilience.ArchiveIO, "get_dicom", err)
		}
		if resp.StatusCode >= 300 {
			return resilience.Wrap(resilience.ArchiveIO, "get_dicom", fmt.Errorf("archive returned %d", resp.StatusCode))
		}
		raw = data
		return nil
	})
	return raw, err
}

func (c *HTTPClient) SubmitInstance(ctx context.Context, raw []byte) (string, error) {
	var resp struct {
		ID string `json:"ID"`
	}
	if err := c.do(ctx, "submit_instance", http.MethodPost, "/instances", raw, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *HTTPClient) StoreToModality(ctx context.Context, destinationName string, instanceIDs []string) error {
	body, _ := json.Marshal(struct {
		Resources []string `json:"Resources"`
	}{Resources: instanceIDs})
	return c.do(ctx, "store_to_modality", http.MethodPost, "/modalities/"+destinationName+"/store", body, nil)
}

func (c *HTTPClient) BulkDelete(ctx context.Context, instanceIDs []string) error {
	if len(instanceIDs) == 0 {
		return nil
	}
	body, _ := json.Marshal(struct {
		Resources []string `json:"Resources"`
	}{Resources: instanceIDs})
	return c.do(ctx, "bulk_delete", http.MethodPost, "/tools/bulk-delete", body, nil)
}

func (c *HTTPClient) Log(level, msg string) {
	switch level {
	case "warn", "warning":
		c.logger.Warn(msg, "source", "archive")
	case "error":
		c.logger.Error(msg, "source", "archive")
	default:
		c.logger.Info(msg, "source", "archive")
	}
}

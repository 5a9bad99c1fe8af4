package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/perimetric/sentinel-pipeline/aggregator"
	"github.com/perimetric/sentinel-pipeline/config"
)

const (
	headerContentType = "Content-Type"
	headerUserAgent   = "User-Agent"
	contentTypeJSON   = "application/json"
)

// DetectionResult is what the detection backend reports for one frame
type DetectionResult struct {
	Label       string    `json:"label"`
	Confidence  float64   `json:"confidence"`
	BoundingBox []float64 `json:"bbox,omitempty"`
}

// Verdict is what the risk analysis backend reports for one batch
type Verdict struct {
	RiskScore uint   `json:"riskScore"`
	RiskLevel string `json:"riskLevel"`
	Summary   string `json:"summary"`
}

// DetectionService runs object detection on a single frame
type DetectionService interface {
	Detect(ctx context.Context, job *FrameJob) (*DetectionResult, error)
}

// AnalysisService scores the risk of one closed batch
type AnalysisService interface {
	Analyze(ctx context.Context, batch *aggregator.Batch) (*Verdict, error)
}

// ServiceCallError is a non-2xx response from a backend service. 5xx and 429 responses
// are transient; remaining 4xx responses are the job's own fault and never retried.
type ServiceCallError struct {
	Service    string
	StatusCode int
}

func (e *ServiceCallError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
}

// IsRetryableServiceError classifies failures of backend service calls; network level
// errors are always considered transient
func IsRetryableServiceError(err error) bool {
	if callErr, ok := err.(*ServiceCallError); ok {
		return callErr.StatusCode >= http.StatusInternalServerError || callErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

type httpServiceClient struct {
	client    *http.Client
	userAgent string
}

func newHTTPServiceClient(pipelineConfig config.PipelineConfig) httpServiceClient {
	return httpServiceClient{
		client:    &http.Client{Timeout: pipelineConfig.GetServiceConnectionTimeout()},
		userAgent: pipelineConfig.GetServiceUserAgent(),
	}
}

func (c httpServiceClient) postJSON(ctx context.Context, service, endpoint string, requestBody interface{}, responseBody interface{}) error {
	encoded, err := json.Marshal(requestBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerUserAgent, c.userAgent)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ServiceCallError{Service: service, StatusCode: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(responseBody)
}

// HTTPDetectionService calls the detection backend over HTTP
type HTTPDetectionService struct {
	httpServiceClient
	baseURL string
}

// NewDetectionService creates the HTTP detection backend client
func NewDetectionService(pipelineConfig config.PipelineConfig) DetectionService {
	return &HTTPDetectionService{
		httpServiceClient: newHTTPServiceClient(pipelineConfig),
		baseURL:           pipelineConfig.GetDetectorBaseURL(),
	}
}

// Detect submits the frame and returns the highest confidence detection
func (s *HTTPDetectionService) Detect(ctx context.Context, job *FrameJob) (*DetectionResult, error) {
	result := &DetectionResult{}
	err := s.postJSON(ctx, "detector", s.baseURL+"/detect", job, result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// HTTPAnalysisService calls the risk analysis backend over HTTP
type HTTPAnalysisService struct {
	httpServiceClient
	baseURL string
}

// NewAnalysisService creates the HTTP analysis backend client
func NewAnalysisService(pipelineConfig config.PipelineConfig) AnalysisService {
	return &HTTPAnalysisService{
		httpServiceClient: newHTTPServiceClient(pipelineConfig),
		baseURL:           pipelineConfig.GetAnalysisBaseURL(),
	}
}

// Analyze submits the closed batch for risk scoring
func (s *HTTPAnalysisService) Analyze(ctx context.Context, batch *aggregator.Batch) (*Verdict, error) {
	verdict := &Verdict{}
	err := s.postJSON(ctx, "analysis", s.baseURL+"/analyze", batch, verdict)
	if err != nil {
		return nil, err
	}
	return verdict, nil
}

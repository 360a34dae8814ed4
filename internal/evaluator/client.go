package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chakravue/fieldeval/pkg/circuitbreaker"
)

// maxResponseBytes caps how much of a response body is read
const maxResponseBytes = 64 << 10

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("evaluator returned status %d", e.StatusCode)
}

// IsClientError reports whether err is a 4xx response. A rejected request
// says nothing about the evaluator's health.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

// Config holds HTTP client configuration
type Config struct {
	// Endpoint is the full URL of the evaluate-reading resource
	Endpoint string
	// Timeout bounds a single call. Zero leaves the HTTP client default (none).
	Timeout time.Duration
	// Breaker configures the circuit breaker guarding the endpoint
	Breaker circuitbreaker.Config
}

// DefaultConfig returns defaults for the given endpoint
func DefaultConfig(endpoint string) Config {
	breaker := circuitbreaker.DefaultConfig("reading-evaluator")
	breaker.Neutral = IsClientError
	return Config{
		Endpoint: endpoint,
		Breaker:  breaker,
	}
}

// HTTPClient posts readings to the evaluator over HTTP
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewHTTPClient creates an evaluator client
func NewHTTPClient(cfg Config, logger *zap.Logger) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("evaluator endpoint is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker, err := circuitbreaker.New(cfg.Breaker, logger)
	if err != nil {
		return nil, fmt.Errorf("create breaker: %w", err)
	}

	return &HTTPClient{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		logger:     logger,
		tracer:     otel.Tracer("reading-evaluator"),
	}, nil
}

// Breaker exposes the circuit breaker for health reporting
func (c *HTTPClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// Evaluate sends one reading and decodes the verdict
func (c *HTTPClient) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	ctx, span := c.tracer.Start(ctx, "evaluate_reading",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("field", req.Field)))
	defer span.End()

	verdict, err := circuitbreaker.Do(ctx, c.breaker, func() (Verdict, error) {
		return c.post(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		return Verdict{}, err
	}

	span.SetAttributes(attribute.String("severity", string(verdict.Level)))
	return verdict, nil
}

func (c *HTTPClient) post(ctx context.Context, req Request) (Verdict, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Verdict{}, fmt.Errorf("post reading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Verdict{}, &StatusError{StatusCode: resp.StatusCode}
	}

	var payload struct {
		Severity *string `json:"severity"`
		Message  *string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	level, err := ParseSeverity(payload.Severity)
	if err != nil {
		return Verdict{}, err
	}

	verdict := Verdict{Level: level}
	if payload.Message != nil {
		verdict.Message = *payload.Message
	}

	c.logger.Debug("reading evaluated",
		zap.String("field", req.Field),
		zap.String("severity", string(verdict.Level)),
		zap.Duration("duration", time.Since(start)))

	return verdict, nil
}

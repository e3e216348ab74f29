package loadmon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default PromQL expressions, written against mysqld_exporter.
const (
	DefaultCPUQuery         = `avg(rate(process_cpu_seconds_total{job="mysql"}[1m]))`
	DefaultMemoryQuery      = `mysql_global_status_innodb_buffer_pool_bytes_data / mysql_global_variables_innodb_buffer_pool_size`
	DefaultConnectionsQuery = `mysql_global_status_threads_connected`
)

// Queries holds the PromQL expressions for each snapshot field. Empty
// fields use the defaults.
type Queries struct {
	CPU         string
	Memory      string
	Connections string
}

// QueryResult is the Prometheus instant query response.
type QueryResult struct {
	Status string    `json:"status"`
	Data   QueryData `json:"data"`
}

// QueryData holds the query result data.
type QueryData struct {
	ResultType string         `json:"resultType"`
	Result     []MetricResult `json:"result"`
}

// MetricResult is a single sample of a vector result.
type MetricResult struct {
	Metric map[string]string `json:"metric"`
	Value  [2]interface{}    `json:"value"`
}

// PromProvider reads load from a Prometheus-compatible query API
// (Prometheus, VictoriaMetrics, Thanos).
type PromProvider struct {
	baseURL string
	queries Queries
	client  *http.Client
}

// NewPromProvider creates a provider querying baseURL.
func NewPromProvider(baseURL string, q Queries, timeout time.Duration) *PromProvider {
	if q.CPU == "" {
		q.CPU = DefaultCPUQuery
	}
	if q.Memory == "" {
		q.Memory = DefaultMemoryQuery
	}
	if q.Connections == "" {
		q.Connections = DefaultConnectionsQuery
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &PromProvider{
		baseURL: baseURL,
		queries: q,
		client:  &http.Client{Timeout: timeout},
	}
}

// Snapshot implements Provider. An empty vector reads as zero.
func (p *PromProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	cpu, err := p.queryFloat(ctx, p.queries.CPU)
	if err != nil {
		return Snapshot{}, fmt.Errorf("cpu: %w", err)
	}
	mem, err := p.queryFloat(ctx, p.queries.Memory)
	if err != nil {
		return Snapshot{}, fmt.Errorf("memory: %w", err)
	}
	conns, err := p.queryFloat(ctx, p.queries.Connections)
	if err != nil {
		return Snapshot{}, fmt.Errorf("connections: %w", err)
	}
	return Snapshot{
		CPU:               clamp01(cpu),
		Memory:            clamp01(mem),
		ActiveConnections: int(conns),
	}, nil
}

// Query executes an instant PromQL query.
func (p *PromProvider) Query(ctx context.Context, query string) (QueryResult, error) {
	u, err := url.Parse(p.baseURL + "/api/v1/query")
	if err != nil {
		return QueryResult{}, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("query", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return QueryResult{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return QueryResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return QueryResult{}, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var result QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return QueryResult{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Status != "success" {
		return QueryResult{}, fmt.Errorf("query status %q", result.Status)
	}

	return result, nil
}

func (p *PromProvider) queryFloat(ctx context.Context, query string) (float64, error) {
	result, err := p.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	return extractFloatValue(result)
}

// extractFloatValue reads the first sample of a vector result.
func extractFloatValue(result QueryResult) (float64, error) {
	if len(result.Data.Result) == 0 {
		return 0, nil
	}

	valueStr, ok := result.Data.Result[0].Value[1].(string)
	if !ok {
		return 0, fmt.Errorf("value is not a string")
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse value: %w", err)
	}

	return value, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

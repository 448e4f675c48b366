package lineupapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/fault"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxResponseBytes = 1 << 20

// CredentialSource supplies the bearer token for outbound calls.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token. The empty token sends no header.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return strings.TrimSpace(string(t)), nil
}

// Client talks to the remote lineup and optimization API. It satisfies
// both lineup.RemoteService and optimization.RemoteService.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	credentials CredentialSource
	logger      *logging.Logger
}

var (
	_ lineup.RemoteService       = (*Client)(nil)
	_ optimization.RemoteService = (*Client)(nil)
)

func NewClient(httpClient *http.Client, baseURL string, credentials CredentialSource, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if credentials == nil {
		credentials = StaticToken("")
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		credentials: credentials,
		logger:      logger,
	}
}

func (c *Client) Fetch(ctx context.Context, teamID string, period int) (lineup.Lineup, error) {
	var out lineupDTO
	if err := c.do(ctx, "lineup.fetch", http.MethodGet, lineupPath(teamID, period), nil, &out); err != nil {
		return lineup.Lineup{}, err
	}
	return out.toDomain(), nil
}

func (c *Client) Put(ctx context.Context, teamID string, period int, starters, bench []lineup.Slot) (lineup.Lineup, error) {
	body := putLineupRequest{
		Starters: slotsToDTO(starters),
		Bench:    slotsToDTO(bench),
	}

	var out lineupDTO
	if err := c.do(ctx, "lineup.put", http.MethodPut, lineupPath(teamID, period), body, &out); err != nil {
		return lineup.Lineup{}, err
	}
	return out.toDomain(), nil
}

func (c *Client) Submit(ctx context.Context, params optimization.Params) (string, error) {
	var out submitResponse
	if err := c.do(ctx, "optimization.submit", http.MethodPost, "/v1/optimizations", params, &out); err != nil {
		return "", err
	}
	jobID := strings.TrimSpace(out.JobID)
	if jobID == "" {
		return "", fault.New(fault.Unknown, "optimization.submit", "remote returned an empty job id")
	}
	return jobID, nil
}

func (c *Client) Status(ctx context.Context, remoteJobID string) (optimization.RemoteStatus, error) {
	var out statusResponse
	if err := c.do(ctx, "optimization.status", http.MethodGet, "/v1/optimizations/"+url.PathEscape(remoteJobID), nil, &out); err != nil {
		return optimization.RemoteStatus{}, err
	}

	status := optimization.Status(strings.ToUpper(strings.TrimSpace(out.Status)))
	switch status {
	case optimization.StatusQueued, optimization.StatusRunning, optimization.StatusCompleted, optimization.StatusFailed, optimization.StatusCancelled:
	default:
		return optimization.RemoteStatus{}, fault.New(fault.Unknown, "optimization.status", "unknown job status %q", out.Status)
	}

	return optimization.RemoteStatus{
		JobID:           out.JobID,
		Status:          status,
		ProgressPercent: out.ProgressPercent,
		Result:          out.Result.toDomain(),
		Error:           out.Error,
	}, nil
}

func (c *Client) Cancel(ctx context.Context, remoteJobID string) error {
	return c.do(ctx, "optimization.cancel", http.MethodPost, "/v1/optimizations/"+url.PathEscape(remoteJobID)+"/cancel", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var reader io.Reader
	if body != nil {
		if err := sonic.ConfigDefault.NewEncoder(buf).Encode(body); err != nil {
			return fault.Wrap(fault.Validation, op, crerr.Wrap(err, "encode request body"))
		}
		reader = bytes.NewReader(buf.B)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fault.Wrap(fault.Validation, op, crerr.Wrap(err, "create request"))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.credentials.Token(ctx)
	if err != nil {
		return fault.Wrap(fault.AuthRequired, op, crerr.Wrap(err, "resolve credential"))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := fault.KindOf(err)
		if kind == fault.Unknown {
			kind = fault.Network
		}
		return fault.Wrap(kind, op, crerr.Wrapf(err, "%s %s", method, path))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fault.Wrap(fault.Network, op, crerr.Wrap(err, "read response"))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		remoteErr := decodeError(resp.StatusCode, payload)
		c.logger.WarnContext(ctx, "remote api non-2xx",
			"op", op,
			"status_code", resp.StatusCode,
			"error", remoteErr,
		)
		return fault.FromStatus(op, resp.StatusCode, remoteErr)
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(payload, out); err != nil {
		return fault.Wrap(fault.Unknown, op, crerr.Wrap(err, "decode response"))
	}
	return nil
}

func decodeError(status int, payload []byte) error {
	var body errorResponse
	if err := sonic.Unmarshal(payload, &body); err == nil && (body.Code != "" || body.Message != "") {
		return crerr.Newf("%s: %s", body.Code, body.Message)
	}
	return crerr.Newf("remote responded %d %s", status, http.StatusText(status))
}

func lineupPath(teamID string, period int) string {
	return fmt.Sprintf("/v1/teams/%s/lineups/%s", url.PathEscape(teamID), strconv.Itoa(period))
}

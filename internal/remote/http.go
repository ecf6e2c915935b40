package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/pagedesk/internal/config"
	"github.com/ashureev/pagedesk/internal/domain"
	"github.com/ashureev/pagedesk/internal/shared"
	"github.com/google/uuid"
)

// Whitelisted backend methods.
const (
	methodGetMessages     = "facebook_integration.api.messaging.get_messages"
	methodGetConversation = "facebook_integration.api.messaging.get_conversation"
	methodSendMessage     = "facebook_integration.api.messaging.send_message"
	methodFlowStatus      = "facebook_integration.api.flow_monitor.get_flow_status"
	methodDashboardData   = "facebook_integration.api.dashboard.get_dashboard_data"
	methodCampaignMetrics = "facebook_integration.api.insights.get_campaign_metrics"
	methodRefreshToken    = "facebook_integration.api.insights.refresh_token"
	methodFetchLeads      = "facebook_integration.api.leads.fetch_leads"
	methodUnmappedLeads   = "facebook_integration.api.leads.get_unmapped_leads"
	methodPullInsights    = "facebook_integration.api.insights.pull_insights"
	methodGetList         = "frappe.client.get_list"
	methodGet             = "frappe.client.get"
	methodGetCount        = "frappe.client.get_count"

	accountDoctype    = "Facebook Account"
	messageLogDoctype = "Facebook Message Log"
	leadLogDoctype    = "Facebook Lead Log"
	maxReplyBytes     = 32 << 20
)

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	Method string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: http %d", e.Method, e.Code)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Method, e.Code, e.Detail)
}

// Temporary reports whether the status is worth retrying for idempotent calls.
func (e *StatusError) Temporary() bool {
	switch e.Code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// HTTPClient calls whitelisted backend methods over HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// Ensure HTTPClient implements Backend.
var _ Backend = (*HTTPClient)(nil)

// NewHTTPClient creates a backend client from configuration.
func NewHTTPClient(cfg config.BackendConfig, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		timeout:    timeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		httpClient: &http.Client{},
		logger:     logger,
		now:        time.Now,
	}
}

// GetMessages returns the latest messages, newest first.
func (c *HTTPClient) GetMessages(ctx context.Context, account string, limit int) ([]domain.Message, error) {
	var reply messagesReply
	args := map[string]any{"limit": limit}
	if account != "" {
		args["account_name"] = account
	}
	if err := c.call(ctx, methodGetMessages, args, &reply, true); err != nil {
		return nil, err
	}
	return wrapResult(methodGetMessages, reply.result())
}

// GetConversation returns the thread with one correspondent, oldest first.
func (c *HTTPClient) GetConversation(ctx context.Context, correspondentID, account string) ([]domain.Message, error) {
	var reply messagesReply
	args := map[string]any{"sender_id": correspondentID, "account_name": account}
	if err := c.call(ctx, methodGetConversation, args, &reply, true); err != nil {
		return nil, err
	}
	return wrapResult(methodGetConversation, reply.result())
}

// SendMessage sends a text message. It is never retried.
func (c *HTTPClient) SendMessage(ctx context.Context, account, correspondentID, text string) (*SendReceipt, error) {
	var reply sendReply
	args := map[string]any{
		"account_name": account,
		"recipient_id": correspondentID,
		"message_text": text,
	}
	if err := c.call(ctx, methodSendMessage, args, &reply, false); err != nil {
		return nil, err
	}
	return wrapResult(methodSendMessage, reply.result())
}

// GetFlowStatus returns the current status snapshot.
func (c *HTTPClient) GetFlowStatus(ctx context.Context) (*domain.StatusSnapshot, error) {
	var reply flowStatusReply
	if err := c.call(ctx, methodFlowStatus, nil, &reply, true); err != nil {
		return nil, err
	}
	return wrapResult(methodFlowStatus, reply.result(c.now()))
}

// GetDashboardData returns headline stats and chart series.
func (c *HTTPClient) GetDashboardData(ctx context.Context, account string, days int) (*domain.DashboardData, error) {
	var reply dashboardReply
	args := map[string]any{"days": days}
	if account != "" {
		args["account_name"] = account
	}
	if err := c.call(ctx, methodDashboardData, args, &reply, true); err != nil {
		return nil, err
	}
	return wrapResult(methodDashboardData, reply.result())
}

// ListAccounts returns the accounts with Messenger enabled.
func (c *HTTPClient) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	var accounts []domain.Account
	args := map[string]any{
		"doctype": accountDoctype,
		"filters": map[string]any{"enabled": 1, "enable_messenger": 1},
		"fields":  []string{"name", "account_name"},
	}
	if err := c.call(ctx, methodGetList, args, &accounts, true); err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].AccountName == "" {
			accounts[i].AccountName = accounts[i].Name
		}
	}
	return accounts, nil
}

// SyncLeads pulls new lead-ad submissions for an account.
func (c *HTTPClient) SyncLeads(ctx context.Context, account string) (*ActionOutcome, error) {
	var reply actionReply
	if err := c.call(ctx, methodFetchLeads, map[string]any{"account_name": account}, &reply, false); err != nil {
		return nil, err
	}
	return wrapResult(methodFetchLeads, reply.result())
}

// PullInsights pulls campaign insights.
func (c *HTTPClient) PullInsights(ctx context.Context) (*ActionOutcome, error) {
	var reply actionReply
	if err := c.call(ctx, methodPullInsights, nil, &reply, false); err != nil {
		return nil, err
	}
	return wrapResult(methodPullInsights, reply.result())
}

// TestConnection checks the backend's platform credentials by reading
// campaign metrics, which needs a valid access token.
func (c *HTTPClient) TestConnection(ctx context.Context) (*ActionOutcome, error) {
	var reply actionReply
	if err := c.call(ctx, methodCampaignMetrics, nil, &reply, true); err != nil {
		return nil, err
	}
	outcome, err := wrapResult(methodCampaignMetrics, reply.result())
	if err != nil {
		return nil, err
	}
	if outcome.Message == "" {
		outcome.Message = "Connection is working"
	}
	return outcome, nil
}

// RefreshToken exchanges the access token. It is never retried.
func (c *HTTPClient) RefreshToken(ctx context.Context) (*ActionOutcome, error) {
	var reply actionReply
	if err := c.call(ctx, methodRefreshToken, nil, &reply, false); err != nil {
		return nil, err
	}
	return wrapResult(methodRefreshToken, reply.result())
}

// GetOverview counts messages and leads. Today is the local calendar date.
func (c *HTTPClient) GetOverview(ctx context.Context) (*domain.Overview, error) {
	var overview domain.Overview
	today := c.now().Format("2006-01-02")
	counts := []struct {
		doctype string
		filters map[string]any
		into    *int
	}{
		{messageLogDoctype, nil, &overview.TotalMessages},
		{messageLogDoctype, map[string]any{"creation": []any{">=", today}}, &overview.TodayMessages},
		{leadLogDoctype, nil, &overview.TotalLeads},
		{leadLogDoctype, map[string]any{"synced": 0}, &overview.UnmappedLeads},
	}

	for _, q := range counts {
		args := map[string]any{"doctype": q.doctype}
		if q.filters != nil {
			args["filters"] = q.filters
		}
		if err := c.call(ctx, methodGetCount, args, q.into, true); err != nil {
			return nil, err
		}
	}
	return &overview, nil
}

// UnmappedLeads lists lead submissions that were not mapped to a CRM lead.
func (c *HTTPClient) UnmappedLeads(ctx context.Context, account string, limit int) ([]Record, error) {
	var reply leadsReply
	args := map[string]any{"limit": limit}
	if account != "" {
		args["account_name"] = account
	}
	if err := c.call(ctx, methodUnmappedLeads, args, &reply, true); err != nil {
		return nil, err
	}
	return wrapResult(methodUnmappedLeads, reply.result())
}

// ListRecords lists generic records of a doctype.
func (c *HTTPClient) ListRecords(ctx context.Context, q RecordQuery) ([]Record, error) {
	if q.Doctype == "" {
		return nil, &domain.ValidationError{Problems: []string{"doctype is required"}}
	}
	args := map[string]any{"doctype": q.Doctype}
	if len(q.Filters) > 0 {
		args["filters"] = q.Filters
	}
	if len(q.Fields) > 0 {
		args["fields"] = q.Fields
	}
	if q.OrderBy != "" {
		args["order_by"] = q.OrderBy
	}
	if q.Limit > 0 {
		args["limit_page_length"] = q.Limit
	}

	var records []Record
	if err := c.call(ctx, methodGetList, args, &records, true); err != nil {
		return nil, err
	}
	return records, nil
}

// GetRecord fetches one generic record.
func (c *HTTPClient) GetRecord(ctx context.Context, doctype, name string) (Record, error) {
	if doctype == "" || name == "" {
		return nil, &domain.ValidationError{Problems: []string{"doctype and name are required"}}
	}
	var record Record
	if err := c.call(ctx, methodGet, map[string]any{"doctype": doctype, "name": name}, &record, true); err != nil {
		return nil, err
	}
	return record, nil
}

// call posts args to a whitelisted method and decodes the "message" member into out.
// Idempotent calls are retried on timeouts and temporary statuses.
func (c *HTTPClient) call(ctx context.Context, method string, args any, out any, idempotent bool) error {
	body, err := json.Marshal(orEmpty(args))
	if err != nil {
		return fmt.Errorf("%w: %s: encode args: %w", domain.ErrRemoteCall, method, err)
	}

	attempts := 1
	if idempotent {
		attempts += c.maxRetries
	}
	requestID := uuid.NewString()

	err = shared.Retry(ctx, attempts, c.retryDelay, isRetryable, func(ctx context.Context) error {
		return c.do(ctx, method, requestID, body, out)
	})
	if err != nil {
		c.logger.Warn("Backend call failed", "method", method, "request_id", requestID, "error", err)
		return fmt.Errorf("%w: %w", domain.ErrRemoteCall, err)
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, requestID string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/method/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "token "+c.apiKey+":"+c.apiSecret)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "method", method, "error", closeErr)
		}
	}()

	var env methodEnvelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBytes)).Decode(&env)

	c.logger.Debug("Backend call", "method", method, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := ""
		if decodeErr == nil {
			detail = env.errorText()
		}
		return &StatusError{Method: method, Code: resp.StatusCode, Detail: detail}
	}
	if decodeErr != nil {
		return fmt.Errorf("%s: %w: %w", method, errMalformed, decodeErr)
	}
	if len(env.Message) == 0 || bytes.Equal(env.Message, []byte("null")) {
		return fmt.Errorf("%s: %w: empty message", method, errMalformed)
	}
	if err := json.Unmarshal(env.Message, out); err != nil {
		return fmt.Errorf("%s: %w: %w", method, errMalformed, err)
	}
	return nil
}

func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return shared.IsNetworkTimeout(err) || errors.Is(err, context.DeadlineExceeded)
}

func wrapResult[T any](method string, r Result[T]) (T, error) {
	v, err := r.Unwrap()
	if err != nil {
		return v, fmt.Errorf("%w: %s: %w", domain.ErrRemoteCall, method, err)
	}
	return v, nil
}

func orEmpty(args any) any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

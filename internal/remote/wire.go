package remote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/pagedesk/internal/domain"
)

var errMalformed = errors.New("malformed backend response")

// backendTimeLayouts are the datetime encodings the backend emits.
var backendTimeLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02",
}

// backendTime decodes backend datetimes. Null and empty strings become the zero time.
// Values without a zone are read as UTC.
type backendTime struct {
	time.Time
}

func (t *backendTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("datetime must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range backendTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised datetime %q", s)
}

// methodEnvelope is the outer shape of every whitelisted method response.
type methodEnvelope struct {
	Message        json.RawMessage `json:"message"`
	ExcType        string          `json:"exc_type"`
	Exception      string          `json:"exception"`
	ServerMessages string          `json:"_server_messages"`
}

// errorText extracts the human readable error carried by a failed response.
func (e methodEnvelope) errorText() string {
	if msgs := decodeServerMessages(e.ServerMessages); msgs != "" {
		return msgs
	}
	if e.Exception != "" {
		return e.Exception
	}
	if e.ExcType != "" {
		return e.ExcType
	}
	return ""
}

// decodeServerMessages unpacks the doubly encoded _server_messages list.
func decodeServerMessages(raw string) string {
	if raw == "" {
		return ""
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return raw
	}
	texts := make([]string, 0, len(items))
	for _, item := range items {
		var m struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(item), &m); err == nil && m.Message != "" {
			texts = append(texts, m.Message)
			continue
		}
		texts = append(texts, item)
	}
	return strings.Join(texts, "; ")
}

type wireMessage struct {
	Name            string      `json:"name"`
	MessageID       string      `json:"message_id"`
	FacebookAccount string      `json:"facebook_account"`
	Direction       string      `json:"direction"`
	SenderID        string      `json:"sender_id"`
	RecipientID     string      `json:"recipient_id"`
	SenderName      string      `json:"sender_name"`
	Content         string      `json:"content"`
	MessageType     string      `json:"message_type"`
	Status          string      `json:"status"`
	MediaURL        string      `json:"media_url"`
	SentAt          backendTime `json:"sent_at"`
	ReceivedAt      backendTime `json:"received_at"`
}

// toDomain keeps the raw direction; the aggregator decides what an unknown value means.
func (w wireMessage) toDomain() domain.Message {
	id := w.MessageID
	if id == "" {
		id = w.Name
	}
	return domain.Message{
		MessageID:   id,
		Account:     w.FacebookAccount,
		Direction:   domain.Direction(w.Direction),
		SenderID:    w.SenderID,
		RecipientID: w.RecipientID,
		SenderName:  w.SenderName,
		Content:     w.Content,
		MessageType: w.MessageType,
		Status:      w.Status,
		MediaURL:    w.MediaURL,
		SentAt:      w.SentAt.Time,
		ReceivedAt:  w.ReceivedAt.Time,
	}
}

// messagesReply is the {success, messages | error} shape of the messaging methods.
type messagesReply struct {
	Success  *bool         `json:"success"`
	Messages []wireMessage `json:"messages"`
	Error    string        `json:"error"`
}

func (r messagesReply) result() Result[[]domain.Message] {
	if r.Success == nil {
		return Fail[[]domain.Message](fmt.Errorf("%w: missing success flag", errMalformed))
	}
	if !*r.Success {
		return Fail[[]domain.Message](errors.New(orDefault(r.Error, "backend reported failure")))
	}
	out := make([]domain.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, m.toDomain())
	}
	return Ok(out)
}

type sendReply struct {
	Success     *bool  `json:"success"`
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
	Error       string `json:"error"`
}

func (r sendReply) result() Result[*SendReceipt] {
	if r.Success == nil || !*r.Success {
		return Fail[*SendReceipt](errors.New(orDefault(r.Error, "send was not acknowledged")))
	}
	return Ok(&SendReceipt{MessageID: r.MessageID, RecipientID: r.RecipientID})
}

type wireWebhookStatus struct {
	Name          string `json:"name"`
	AccountName   string `json:"account_name"`
	WebhookActive bool   `json:"webhook_active"`
}

type wireSyncStatus struct {
	LastInsightsSync backendTime `json:"last_insights_sync"`
	PendingLeads     int         `json:"pending_leads"`
	PendingOrders    int         `json:"pending_orders"`
}

type wireFlowStatus struct {
	WebhookStatus  []wireWebhookStatus    `json:"webhook_status"`
	SyncStatus     *wireSyncStatus        `json:"sync_status"`
	RecentActivity *domain.RecentActivity `json:"recent_activity"`
	ErrorSummary   int                    `json:"error_summary"`
}

type flowStatusReply struct {
	Status  string          `json:"status"`
	Data    *wireFlowStatus `json:"data"`
	Message string          `json:"message"`
}

func (r flowStatusReply) result(now time.Time) Result[*domain.StatusSnapshot] {
	if r.Status != "success" {
		return Fail[*domain.StatusSnapshot](errors.New(orDefault(r.Message, "flow status unavailable")))
	}
	if r.Data == nil || r.Data.RecentActivity == nil {
		return Fail[*domain.StatusSnapshot](fmt.Errorf("%w: flow status without data", errMalformed))
	}
	return Ok(r.Data.toDomain(now))
}

func (w *wireFlowStatus) toDomain(now time.Time) *domain.StatusSnapshot {
	snap := &domain.StatusSnapshot{
		WebhookStatus:  make([]domain.WebhookStatus, 0, len(w.WebhookStatus)),
		RecentActivity: *w.RecentActivity,
		ErrorCount:     w.ErrorSummary,
		FetchedAt:      now,
	}
	for _, ws := range w.WebhookStatus {
		snap.WebhookStatus = append(snap.WebhookStatus, domain.WebhookStatus{
			AccountName:   orDefault(ws.AccountName, ws.Name),
			WebhookActive: ws.WebhookActive,
		})
	}
	if w.SyncStatus != nil {
		snap.SyncStatus = &domain.SyncStatus{
			LastInsightsSync: w.SyncStatus.LastInsightsSync.Time,
			PendingLeads:     w.SyncStatus.PendingLeads,
			PendingOrders:    w.SyncStatus.PendingOrders,
		}
	}
	return snap
}

type dashboardReply struct {
	Status  string                     `json:"status"`
	Stats   *domain.DashboardStats     `json:"stats"`
	Charts  map[string]json.RawMessage `json:"charts"`
	Message string                     `json:"message"`
}

func (r dashboardReply) result() Result[*domain.DashboardData] {
	if r.Status != "success" {
		return Fail[*domain.DashboardData](errors.New(orDefault(r.Message, "dashboard data unavailable")))
	}
	if r.Stats == nil {
		return Fail[*domain.DashboardData](fmt.Errorf("%w: dashboard without stats", errMalformed))
	}
	return Ok(&domain.DashboardData{Stats: *r.Stats, Charts: r.Charts})
}

// actionReply covers the {status, message, processed} replies of the lead
// methods and the {success, message | error, insights_count} replies of the
// insights methods.
type actionReply struct {
	Status        string `json:"status"`
	Success       *bool  `json:"success"`
	Message       string `json:"message"`
	Error         string `json:"error"`
	Processed     int    `json:"processed"`
	InsightsCount int    `json:"insights_count"`
}

func (r actionReply) result() Result[*ActionOutcome] {
	ok := r.Status == "success"
	if r.Success != nil {
		ok = *r.Success
	}
	if !ok {
		return Fail[*ActionOutcome](errors.New(orDefault(r.Error, orDefault(r.Message, "action failed"))))
	}
	processed := r.Processed
	if processed == 0 {
		processed = r.InsightsCount
	}
	return Ok(&ActionOutcome{Message: r.Message, Processed: processed})
}

type leadsReply struct {
	Success *bool    `json:"success"`
	Leads   []Record `json:"leads"`
	Error   string   `json:"error"`
}

func (r leadsReply) result() Result[[]Record] {
	if r.Success == nil {
		return Fail[[]Record](fmt.Errorf("%w: missing success flag", errMalformed))
	}
	if !*r.Success {
		return Fail[[]Record](errors.New(orDefault(r.Error, "backend reported failure")))
	}
	if r.Leads == nil {
		return Ok([]Record{})
	}
	return Ok(r.Leads)
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

package inbox

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/ashureev/pagedesk/internal/domain"
)

// Regions the inbox renders into.
const (
	RegionConversations = "conversations-list"
	RegionMessages      = "messages-container"
	RegionTitle         = "conversation-title"
	RegionAccounts      = "account-filter"
)

const (
	emptyConversationsText = "No conversations found"
	noSelectionTitle       = "Select a conversation"
	timeLayout             = "2006-01-02 15:04"
)

var templates = template.Must(template.New("inbox").Funcs(template.FuncMap{
	"when": formatTime,
}).Parse(`
{{define "conversations"}}{{if not .Items}}<div class="empty-state text-muted">{{.Empty}}</div>{{else}}{{range .Items}}
<div class="conversation-item p-2 border-bottom{{if eq .CorrespondentID $.Selected}} active{{end}}" data-id="{{.CorrespondentID}}">
	<strong>{{.DisplayName}}</strong>
	<p class="text-muted small">{{.LastMessagePreview}}</p>
	<small>{{when .LastActivityAt}}</small>
</div>{{end}}{{end}}{{end}}

{{define "transcript"}}{{range $i, $m := .Messages}}
<div class="message {{if $m.IsOutgoing}}outgoing{{else}}incoming{{end}} mb-2"{{if eq $i $.Last}} id="latest-message" data-scroll-anchor="true"{{end}}>
	<div class="p-2 rounded {{if $m.IsOutgoing}}bg-primary text-white ml-auto{{else}}bg-light{{end}}">
		{{$m.Content}}
		<small class="d-block mt-1">{{when $m.Timestamp}}</small>
	</div>
</div>{{end}}{{end}}

{{define "accounts"}}<option value="">All Accounts</option>{{range .Accounts}}
<option value="{{.Name}}"{{if eq .Name $.Selected}} selected{{end}}>{{.AccountName}}</option>{{end}}{{end}}

{{define "title"}}{{if .}}Conversation with {{.}}{{else}}` + noSelectionTitle + `{{end}}{{end}}
`))

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// RenderConversations renders the conversation list, or the empty state
// when there are no summaries.
func RenderConversations(items []domain.ConversationSummary, selected string) (string, error) {
	return execute("conversations", struct {
		Items    []domain.ConversationSummary
		Selected string
		Empty    string
	}{items, selected, emptyConversationsText})
}

// RenderTranscript renders a transcript top to bottom. The last message is
// marked as the scroll anchor so the shell scrolls to the newest entry.
func RenderTranscript(messages []domain.Message) (string, error) {
	return execute("transcript", struct {
		Messages []domain.Message
		Last     int
	}{messages, len(messages) - 1})
}

// RenderAccounts renders the account selector options.
func RenderAccounts(accounts []domain.Account, selected string) (string, error) {
	return execute("accounts", struct {
		Accounts []domain.Account
		Selected string
	}{accounts, selected})
}

// RenderTitle renders the conversation header.
func RenderTitle(name string) (string, error) {
	return execute("title", name)
}

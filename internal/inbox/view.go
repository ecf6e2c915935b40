package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/pagedesk/internal/domain"
	"github.com/ashureev/pagedesk/internal/events"
	"github.com/ashureev/pagedesk/internal/remote"
	"github.com/ashureev/pagedesk/internal/view"
)

// Backend is the part of remote.Backend the inbox needs.
type Backend interface {
	GetMessages(ctx context.Context, account string, limit int) ([]domain.Message, error)
	GetConversation(ctx context.Context, correspondentID, account string) ([]domain.Message, error)
	SendMessage(ctx context.Context, account, correspondentID, text string) (*remote.SendReceipt, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
}

// Inbox commands accepted by Handle.
const (
	CommandSetAccount = "set_account"
	CommandOpen       = "open"
	CommandSend       = "send"
	CommandRefresh    = "refresh"
)

// MessageSent is the payload of the message-sent event.
type MessageSent struct {
	UserID          string `json:"user_id,omitempty"`
	Account         string `json:"account"`
	CorrespondentID string `json:"correspondent_id"`
	MessageID       string `json:"message_id,omitempty"`
}

// Options configure a View.
type Options struct {
	Limit     int
	Publisher events.Publisher
	// Inflight is shared across views so one recipient is never sent to twice at once.
	Inflight *remote.Inflight
	Logger   *slog.Logger
}

// View is one mounted inbox. It owns the account scope and the selected
// correspondent; nothing is shared with other views.
type View struct {
	backend   Backend
	limit     int
	publisher events.Publisher
	inflight  *remote.Inflight
	logger    *slog.Logger

	mu         sync.Mutex
	account    string
	selected   string
	summaries  []domain.ConversationSummary
	transcript []domain.Message
	surface    view.Surface
	userID     string
	closed     bool
}

var _ view.View = (*View)(nil)

// NewView creates an unmounted inbox view.
func NewView(backend Backend, opts Options) *View {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Inflight == nil {
		opts.Inflight = remote.NewInflight()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &View{
		backend:   backend,
		limit:     opts.Limit,
		publisher: opts.Publisher,
		inflight:  opts.Inflight,
		logger:    opts.Logger,
	}
}

// Account returns the selected account scope. Empty means all accounts.
func (v *View) Account() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.account
}

// Selected returns the selected correspondent, if any.
func (v *View) Selected() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.selected
}

// SetAccount changes the account scope and clears the selection.
func (v *View) SetAccount(account string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.account = strings.TrimSpace(account)
	v.selected = ""
}

// Select makes correspondentID the send target without fetching its transcript.
func (v *View) Select(correspondentID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = strings.TrimSpace(correspondentID)
}

// SetUser attributes events raised by this view to an operator.
func (v *View) SetUser(userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.userID = userID
}

// Transcript returns the last transcript loaded by Open.
func (v *View) Transcript() []domain.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.transcript
}

// Load fetches the latest messages for the current scope and rebuilds the
// conversation list. On failure the rendered list is left as it was.
func (v *View) Load(ctx context.Context) ([]domain.ConversationSummary, error) {
	if v.isClosed() {
		return nil, view.ErrClosed
	}
	account := v.Account()
	messages, err := v.backend.GetMessages(ctx, account, v.limit)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	summaries, err := Summarize(messages)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}

	v.mu.Lock()
	v.summaries = summaries
	selected := v.selected
	v.mu.Unlock()

	html, err := RenderConversations(summaries, selected)
	if err != nil {
		return nil, err
	}
	v.replace(ctx, RegionConversations, html)
	return summaries, nil
}

// Open fetches the transcript of one correspondent and selects it.
func (v *View) Open(ctx context.Context, correspondentID string) ([]domain.Message, error) {
	if v.isClosed() {
		return nil, view.ErrClosed
	}
	correspondentID = strings.TrimSpace(correspondentID)
	if correspondentID == "" {
		return nil, &domain.ValidationError{Problems: []string{"no conversation selected"}}
	}

	messages, err := v.backend.GetConversation(ctx, correspondentID, v.Account())
	if err != nil {
		return nil, fmt.Errorf("open conversation %s: %w", correspondentID, err)
	}
	transcript := Transcript(messages)

	v.mu.Lock()
	v.selected = correspondentID
	v.transcript = transcript
	name := v.displayNameLocked(correspondentID)
	v.mu.Unlock()

	html, err := RenderTranscript(transcript)
	if err != nil {
		return nil, err
	}
	title, err := RenderTitle(name)
	if err != nil {
		return nil, err
	}
	v.replace(ctx, RegionMessages, html)
	v.replace(ctx, RegionTitle, title)
	return transcript, nil
}

func (v *View) displayNameLocked(id string) string {
	for _, s := range v.summaries {
		if s.CorrespondentID == id {
			return s.DisplayName
		}
	}
	return id
}

// Send sends text to the selected correspondent through the selected account.
//
// It needs non-blank text, a selected correspondent and a selected account.
// If any is missing no remote call is made and the returned ValidationError
// names every missing piece. After a successful send the transcript is reloaded.
func (v *View) Send(ctx context.Context, text string) (*remote.SendReceipt, error) {
	text = strings.TrimSpace(text)

	v.mu.Lock()
	account, correspondent, userID, closed := v.account, v.selected, v.userID, v.closed
	v.mu.Unlock()
	if closed {
		return nil, view.ErrClosed
	}

	var problems []string
	if text == "" {
		problems = append(problems, "message text is empty")
	}
	if correspondent == "" {
		problems = append(problems, "no conversation selected")
	}
	if account == "" {
		problems = append(problems, "no account selected")
	}
	if len(problems) > 0 {
		return nil, &domain.ValidationError{Problems: problems}
	}

	receipt, err := remote.Guard(v.inflight, "send:"+account+":"+correspondent, func() (*remote.SendReceipt, error) {
		return v.backend.SendMessage(ctx, account, correspondent, text)
	})
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	events.PublishAsync(v.publisher, events.TypeMessageSent, MessageSent{
		UserID:          userID,
		Account:         account,
		CorrespondentID: correspondent,
		MessageID:       receipt.MessageID,
	}, v.logger)

	if _, err := v.Open(ctx, correspondent); err != nil {
		// The message went out; only the refresh failed.
		v.logger.Warn("Transcript reload after send failed", "error", err, "correspondent_id", correspondent)
		v.notify(ctx, view.Notice{Level: view.LevelWarning, Message: "Message sent, but the conversation could not be refreshed"})
	}
	return receipt, nil
}

// Mount renders the account selector and the conversation list. Both are
// fetched concurrently; a failing account list only leaves the selector empty.
func (v *View) Mount(ctx context.Context, p view.Params, s view.Surface) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return view.ErrClosed
	}
	v.surface = s
	v.userID = p.UserID
	v.mu.Unlock()
	if p.Query != nil {
		v.SetAccount(p.Query.Get("account"))
	}

	accountsCh := remote.Async(ctx, v.backend.ListAccounts)
	convCh := remote.Async(ctx, v.Load)

	accounts, err := remote.Await(ctx, accountsCh)
	if err != nil {
		v.logger.Warn("Failed to load accounts", "error", err, "user_id", p.UserID)
	}
	html, renderErr := RenderAccounts(accounts, v.Account())
	if renderErr != nil {
		return renderErr
	}
	v.replace(ctx, RegionAccounts, html)

	if _, err := remote.Await(ctx, convCh); err != nil {
		return err
	}
	title, err := RenderTitle("")
	if err != nil {
		return err
	}
	v.replace(ctx, RegionTitle, title)
	return nil
}

// Handle runs one user command. Failures are also shown on the surface.
func (v *View) Handle(ctx context.Context, cmd view.Command) error {
	if v.isClosed() {
		return view.ErrClosed
	}

	var err error
	switch cmd.Type {
	case CommandSetAccount:
		v.SetAccount(cmd.Account)
		if _, err = v.Load(ctx); err == nil {
			err = v.clearSelection(ctx)
		}
	case CommandOpen:
		_, err = v.Open(ctx, cmd.CorrespondentID)
	case CommandSend:
		if _, err = v.Send(ctx, cmd.Text); err == nil {
			v.notify(ctx, view.Notice{Level: view.LevelSuccess, Message: "Message sent"})
		}
	case CommandRefresh:
		_, err = v.Load(ctx)
		if selected := v.Selected(); err == nil && selected != "" {
			_, err = v.Open(ctx, selected)
		}
	default:
		err = fmt.Errorf("unknown inbox command %q", cmd.Type)
	}

	if err != nil {
		level := view.LevelError
		if domain.IsValidation(err) || errors.Is(err, domain.ErrInFlight) {
			level = view.LevelWarning
		}
		v.notify(ctx, view.Notice{Level: level, Message: err.Error()})
	}
	return err
}

// clearSelection resets the title and transcript after the scope changed.
func (v *View) clearSelection(ctx context.Context) error {
	title, err := RenderTitle("")
	if err != nil {
		return err
	}
	v.replace(ctx, RegionTitle, title)
	v.replace(ctx, RegionMessages, "")
	return nil
}

// Teardown detaches the view from its surface.
func (v *View) Teardown() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.surface = nil
}

func (v *View) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *View) currentSurface() view.Surface {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	return v.surface
}

func (v *View) replace(ctx context.Context, region, html string) {
	s := v.currentSurface()
	if s == nil {
		return
	}
	if err := s.Replace(ctx, region, html); err != nil {
		v.logger.Debug("Failed to render region", "region", region, "error", err)
	}
}

func (v *View) notify(ctx context.Context, n view.Notice) {
	s := v.currentSurface()
	if s == nil {
		return
	}
	if err := s.Notify(ctx, n); err != nil {
		v.logger.Debug("Failed to send notice", "error", err)
	}
}

// Package view hosts UI views mounted by the browser shell. Every view is an
// explicit instance owned by the connection that mounted it and is torn down
// when that connection goes away.
package view

import (
	"context"
	"errors"
	"net/url"
)

// ErrClosed is returned by a view that has been torn down.
var ErrClosed = errors.New("view closed")

// Params describe the mount request.
type Params struct {
	UserID    string
	SessionID string
	// Route is the shell's current navigation path.
	Route string
	Query url.Values
}

// Command is a user event forwarded by the shell.
type Command struct {
	Type            string `json:"type"`
	Account         string `json:"account,omitempty"`
	CorrespondentID string `json:"correspondent_id,omitempty"`
	Text            string `json:"text,omitempty"`
}

// Notice levels.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Notice is a transient toast shown by the shell.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	// Sticky notices stay until cleared by a notice with the same Key.
	Sticky bool   `json:"sticky,omitempty"`
	Key    string `json:"key,omitempty"`
}

// Surface is where a mounted view renders.
type Surface interface {
	// Replace swaps the whole content of a region.
	Replace(ctx context.Context, region, html string) error
	// Notify shows a notice.
	Notify(ctx context.Context, n Notice) error
}

// View is a mountable UI controller.
type View interface {
	// Mount renders the initial state. A returned error aborts the mount.
	Mount(ctx context.Context, p Params, s Surface) error
	// Handle processes a user command.
	Handle(ctx context.Context, cmd Command) error
	// Teardown releases everything the view started. It must be idempotent,
	// and Mount and Handle return ErrClosed afterwards.
	Teardown()
}

// Factory creates a fresh view instance per mount.
type Factory func() View

// Package commands provides command parsing, the declarative command table
// and the handlers behind every Hoshi slash command.
package commands

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/igorvasilek/hoshi/internal/hoshi/access"
	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
)

// Command represents a parsed command
type Command struct {
	Name string
	// Bot is the @botname suffix, if any ("/start@hoshi_bot").
	Bot     string
	Args    []string
	RawText string
}

// ErrNotACommand is returned by Parse when the message does not start with
// "/". Callers should use errors.Is to distinguish this expected case from
// real errors.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// Access is the capability a route requires.
type Access int

const (
	Anyone Access = iota
	AdminOnly
)

// Handler is a function that handles a command
type Handler func(ctx context.Context, cmd *Command, msg *Message) (*Reply, error)

// Route binds a command name to its handler and required capability.
type Route struct {
	Name    string
	Access  Access
	Usage   string
	Help    string
	Handler Handler
}

// CapabilityChecker resolves a user's capability.
type CapabilityChecker interface {
	CapabilityOf(userID int64) access.Capability
}

// Router routes commands to handlers
type Router struct {
	routes map[string]Route
	gate   CapabilityChecker
}

// NewRouter creates a router that checks capabilities through gate.
func NewRouter(gate CapabilityChecker) *Router {
	return &Router{routes: make(map[string]Route), gate: gate}
}

// Register adds routes to the table. A later route with the same name
// replaces an earlier one.
func (r *Router) Register(routes ...Route) {
	for _, rt := range routes {
		r.routes[rt.Name] = rt
	}
}

// Routes returns the table sorted by name.
func (r *Router) Routes() []Route {
	out := make([]Route, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Parse parses a message into a command
func Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, ErrNotACommand
	}

	parts := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(parts) == 0 || parts[0] == "" {
		return nil, fmt.Errorf("empty command")
	}

	name, bot, _ := strings.Cut(parts[0], "@")
	return &Command{
		Name:    strings.ToLower(name),
		Bot:     bot,
		Args:    parts[1:],
		RawText: text,
	}, nil
}

// Route parses text, checks the caller's capability once and dispatches.
// Permission failures do not say which check failed.
func (r *Router) Route(ctx context.Context, text string, msg *Message) (*Reply, error) {
	cmd, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return r.Dispatch(ctx, cmd, msg)
}

// Dispatch runs an already parsed command.
func (r *Router) Dispatch(ctx context.Context, cmd *Command, msg *Message) (*Reply, error) {
	rt, ok := r.routes[cmd.Name]
	if !ok {
		return nil, apperr.Validation("Unknown command /%s. See /help.", html.EscapeString(cmd.Name))
	}
	if rt.Access == AdminOnly && r.gate.CapabilityOf(msg.UserID) != access.Admin {
		return nil, apperr.ErrPermissionDenied
	}
	return rt.Handler(ctx, cmd, msg)
}

// Arg returns an argument by index
func (c *Command) Arg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}

// Rest returns every argument joined by single spaces.
func (c *Command) Rest() string {
	return strings.Join(c.Args, " ")
}

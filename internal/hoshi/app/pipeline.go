package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/igorvasilek/hoshi/common/trace"
	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
	"github.com/igorvasilek/hoshi/internal/hoshi/commands"
	"github.com/igorvasilek/hoshi/internal/hoshi/dialogue"
	"github.com/igorvasilek/hoshi/internal/hoshi/logging"
	"github.com/igorvasilek/hoshi/internal/hoshi/ratelimit"
	"github.com/igorvasilek/hoshi/internal/hoshi/session"
	"github.com/igorvasilek/hoshi/internal/hoshi/telegram"
)

// Transport is what the pipeline needs from the messaging platform.
type Transport interface {
	commands.Messenger
	AnswerCallback(ctx context.Context, callbackID, text string) error
	Typing(ctx context.Context, chatID int64)
}

// Responder answers AI-mode messages.
type Responder interface {
	Respond(ctx context.Context, req dialogue.Request) (string, error)
}

// InputHandler runs pending workflows.
type InputHandler interface {
	HandleInput(ctx context.Context, msg *commands.Message, st session.State) (*commands.Reply, error)
}

// Limiter is the rate limiter as seen by the pipeline.
type Limiter interface {
	Allow(key string, minInterval time.Duration) bool
}

// Pipeline routes one inbound event to a command, a pending workflow or the
// dialogue engine and sends the outcome back. Each event is isolated: an
// error or panic only affects the reply to that event.
type Pipeline struct {
	Router    *commands.Router
	Inputs    InputHandler
	Sessions  *session.Machine
	Engine    Responder
	Limiter   Limiter
	Transport Transport
	// BotName is the bot's username; commands addressed to another bot
	// ("/start@other_bot") are ignored.
	BotName         string
	CommandInterval time.Duration
	Secrets         []string
}

var _ telegram.Handler = (*Pipeline)(nil)

// Handle implements telegram.Handler.
func (p *Pipeline) Handle(ctx context.Context, evt telegram.Event) {
	ctx = trace.Ensure(ctx)
	log := logging.WithTrace(ctx).With("chat_id", evt.ChatID, "user_id", evt.UserID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling update", "panic", r, "stack", string(debug.Stack()))
			p.send(ctx, evt.ChatID, commands.Text(apperr.UserMessage(fmt.Errorf("panic: %v", r))))
		}
	}()

	if evt.CallbackID != "" {
		if err := p.Transport.AnswerCallback(ctx, evt.CallbackID, ""); err != nil {
			log.Debug("answer callback failed", "err", err)
		}
	}

	start := time.Now()
	reply, err := p.dispatch(ctx, evt)
	if err != nil {
		logging.Outcome(ctx, "update failed", err, p.Secrets, "chat_id", evt.ChatID, "user_id", evt.UserID)
		reply = commands.Text(apperr.UserMessage(err))
	}
	p.send(ctx, evt.ChatID, reply)
	log.Debug("update handled", "update_id", evt.UpdateID, "duration_ms", time.Since(start).Milliseconds())
}

func (p *Pipeline) dispatch(ctx context.Context, evt telegram.Event) (*commands.Reply, error) {
	if evt.Err != nil {
		return nil, evt.Err
	}
	msg := &commands.Message{
		ChatID:       evt.ChatID,
		UserID:       evt.UserID,
		Username:     evt.Username,
		FirstName:    evt.FirstName,
		Text:         evt.Text,
		FromCallback: evt.CallbackID != "",
	}

	text := strings.TrimSpace(evt.Text)
	if evt.Image == nil && strings.HasPrefix(text, "/") {
		return p.command(ctx, text, msg)
	}
	if evt.CallbackID != "" {
		return nil, apperr.Validation("This button is no longer valid.")
	}

	st := p.Sessions.Consume(evt.ChatID)
	if st.Mode != session.ModeAI {
		return p.Inputs.HandleInput(ctx, msg, st)
	}

	p.Transport.Typing(ctx, evt.ChatID)
	answer, err := p.Engine.Respond(ctx, dialogue.Request{
		ChatID: evt.ChatID,
		UserID: evt.UserID,
		Text:   evt.Text,
		Image:  evt.Image,
	})
	if err != nil {
		return nil, err
	}
	return &commands.Reply{Text: answer, Verbatim: true}, nil
}

func (p *Pipeline) command(ctx context.Context, text string, msg *commands.Message) (*commands.Reply, error) {
	cmd, err := commands.Parse(text)
	if err != nil {
		return nil, apperr.Validation("Empty command. See /help.")
	}
	if cmd.Bot != "" && p.BotName != "" && !strings.EqualFold(cmd.Bot, p.BotName) {
		return nil, nil
	}
	if !p.Limiter.Allow(ratelimit.Key(ratelimit.OpCommand, msg.UserID), p.CommandInterval) {
		return nil, apperr.ErrRateLimited
	}
	logging.WithTrace(ctx).Debug("command", "name", cmd.Name, "user_id", msg.UserID, "callback", msg.FromCallback)
	return p.Router.Dispatch(ctx, cmd, msg)
}

// send delivers reply and then runs its After hook, even when delivery
// failed.
func (p *Pipeline) send(ctx context.Context, chatID int64, reply *commands.Reply) {
	if reply == nil {
		return
	}
	if err := p.Transport.Send(ctx, chatID, reply); err != nil {
		logging.WithTrace(ctx).Warn("send reply failed", "chat_id", chatID, "err", err)
	}
	if reply.After != nil {
		reply.After()
	}
}

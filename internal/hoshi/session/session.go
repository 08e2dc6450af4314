// Package session tracks what the next free-text message of each chat means:
// an AI prompt, feedback for the operators, or input to a pending admin
// workflow.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// Mode is the kind of session state.
type Mode int

const (
	ModeAI Mode = iota
	ModeFeedback
	ModeAwaitingReply
	ModeAwaitingAdminInput
)

func (m Mode) String() string {
	switch m {
	case ModeFeedback:
		return "feedback"
	case ModeAwaitingReply:
		return "awaiting_reply"
	case ModeAwaitingAdminInput:
		return "awaiting_admin_input"
	default:
		return "ai"
	}
}

// AdminOp is the pending admin-set mutation.
type AdminOp string

const (
	AdminAdd    AdminOp = "add"
	AdminRemove AdminOp = "remove"
)

// State is the session state of one chat. Target is set for ModeAwaitingReply;
// Op is set for ModeAwaitingAdminInput.
type State struct {
	Mode   Mode
	Target int64
	Op     AdminOp
}

func (s State) String() string {
	switch s.Mode {
	case ModeAwaitingReply:
		return fmt.Sprintf("%s(%d)", s.Mode, s.Target)
	case ModeAwaitingAdminInput:
		return fmt.Sprintf("%s(%s)", s.Mode, s.Op)
	}
	return s.Mode.String()
}

// Pending reports whether the state is an admin workflow waiting for input.
func (s State) Pending() bool {
	return s.Mode == ModeAwaitingReply || s.Mode == ModeAwaitingAdminInput
}

// ErrFeedbackBlocked is returned by Toggle when a blacklisted user tries to
// enter feedback mode.
var ErrFeedbackBlocked = errors.New("feedback mode is blocked for this user")

// Machine holds the state of every chat. Chats never seen are in ModeAI.
//
// Machine is safe for concurrent use from multiple goroutines.
type Machine struct {
	mu     sync.Mutex
	states map[int64]State
}

// NewMachine returns an empty Machine.
func NewMachine() *Machine {
	return &Machine{states: make(map[int64]State)}
}

// Get returns the current state of chatID without changing it.
func (m *Machine) Get(chatID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[chatID]
}

// Toggle flips between AI and Feedback and returns the new state. A pending
// admin workflow is abandoned back to AI. Blacklisted users stay in AI and
// get ErrFeedbackBlocked.
func (m *Machine) Toggle(chatID int64, blacklisted bool) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.states[chatID]
	switch cur.Mode {
	case ModeAI:
		if blacklisted {
			return State{Mode: ModeAI}, ErrFeedbackBlocked
		}
		next := State{Mode: ModeFeedback}
		m.states[chatID] = next
		return next, nil
	default:
		delete(m.states, chatID)
		return State{Mode: ModeAI}, nil
	}
}

// BeginReply arms a reply to target: the next message of chatID is delivered
// to target.
func (m *Machine) BeginReply(chatID, target int64) {
	m.set(chatID, State{Mode: ModeAwaitingReply, Target: target})
}

// BeginAdminInput arms an admin-set mutation: the next message of chatID is
// read as a user id.
func (m *Machine) BeginAdminInput(chatID int64, op AdminOp) {
	m.set(chatID, State{Mode: ModeAwaitingAdminInput, Op: op})
}

// Consume returns the current state and, when it is not AI, resets the chat
// to AI in the same critical section. Feedback is single-shot like the admin
// workflows: one message is forwarded, then the chat is back in AI.
func (m *Machine) Consume(chatID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.states[chatID]
	if cur.Mode != ModeAI {
		delete(m.states, chatID)
	}
	return cur
}

// Cancel abandons any pending workflow and reports whether one was active.
func (m *Machine) Cancel(chatID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.states[chatID]
	delete(m.states, chatID)
	return ok
}

// Len returns the number of chats not in AI mode.
func (m *Machine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

func (m *Machine) set(chatID int64, s State) {
	m.mu.Lock()
	m.states[chatID] = s
	m.mu.Unlock()
}

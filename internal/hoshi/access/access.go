// Package access implements the authorization gate: who is an admin, who is
// barred from feedback, and the mutations admins can apply to both sets.
//
// The gate keeps an in-process copy of both sets. Every mutation holds the
// write lock across the store write and the cache update, so a capability
// check that starts after a mutation returns always observes it.
package access

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/igorvasilek/hoshi/internal/hoshi/apperr"
)

// Capability is the coarse permission level of a user.
type Capability int

const (
	Regular Capability = iota
	Blacklisted
	Admin
)

func (c Capability) String() string {
	switch c {
	case Admin:
		return "admin"
	case Blacklisted:
		return "blacklisted"
	default:
		return "regular"
	}
}

// Store is the persistence the gate needs.
type Store interface {
	AddAdmin(ctx context.Context, userID int64) error
	RemoveAdmin(ctx context.Context, userID int64) error
	ListAdmins(ctx context.Context) ([]int64, error)
	AddToBlacklist(ctx context.Context, userID int64) error
	RemoveFromBlacklist(ctx context.Context, userID int64) error
	ListBlacklist(ctx context.Context) ([]int64, error)
}

// Gate answers capability questions and applies admin/blacklist mutations.
type Gate struct {
	mu        sync.RWMutex
	store     Store
	admins    map[int64]struct{}
	blacklist map[int64]struct{}
}

// New seeds the admin set with seeds, then loads both sets from st. It fails
// when no admin exists afterwards.
func New(ctx context.Context, st Store, seeds []int64) (*Gate, error) {
	for _, id := range seeds {
		if err := st.AddAdmin(ctx, id); err != nil {
			return nil, fmt.Errorf("seed admin %d: %w", id, err)
		}
	}

	admins, err := st.ListAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("load admins: %w", err)
	}
	if len(admins) == 0 {
		return nil, fmt.Errorf("no admins configured: set ADMIN_IDS or seed the database")
	}
	banned, err := st.ListBlacklist(ctx)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}

	g := &Gate{
		store:     st,
		admins:    make(map[int64]struct{}, len(admins)),
		blacklist: make(map[int64]struct{}, len(banned)),
	}
	for _, id := range admins {
		g.admins[id] = struct{}{}
	}
	for _, id := range banned {
		g.blacklist[id] = struct{}{}
	}
	return g, nil
}

// CapabilityOf returns the capability of userID. Admin wins over Blacklisted.
func (g *Gate) CapabilityOf(userID int64) Capability {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.admins[userID]; ok {
		return Admin
	}
	if _, ok := g.blacklist[userID]; ok {
		return Blacklisted
	}
	return Regular
}

// RequireAdmin reports whether userID is an admin.
func (g *Gate) RequireAdmin(userID int64) bool {
	return g.CapabilityOf(userID) == Admin
}

// IsBlacklisted reports membership in the blacklist regardless of admin status.
func (g *Gate) IsBlacklisted(userID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.blacklist[userID]
	return ok
}

// Admins returns the admin ids in ascending order.
func (g *Gate) Admins() []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.admins)
}

// Blacklist returns the blacklisted ids in ascending order.
func (g *Gate) Blacklist() []int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.blacklist)
}

// Promote makes target an admin.
func (g *Gate) Promote(ctx context.Context, actor, target int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.admins[actor]; !ok {
		return apperr.ErrPermissionDenied
	}
	if _, ok := g.admins[target]; ok {
		return apperr.Validation("User %d is already an admin.", target)
	}
	if err := g.store.AddAdmin(ctx, target); err != nil {
		return err
	}
	g.admins[target] = struct{}{}
	return nil
}

// Demote removes target from the admin set. An admin cannot demote
// themselves and the last admin cannot be removed.
func (g *Gate) Demote(ctx context.Context, actor, target int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.admins[actor]; !ok {
		return apperr.ErrPermissionDenied
	}
	if _, ok := g.admins[target]; !ok {
		return apperr.Validation("User %d is not an admin.", target)
	}
	if actor == target {
		return apperr.Validation("You cannot remove yourself.")
	}
	if len(g.admins) <= 1 {
		return apperr.Validation("Cannot remove the last admin.")
	}
	if err := g.store.RemoveAdmin(ctx, target); err != nil {
		return err
	}
	delete(g.admins, target)
	return nil
}

// Block bars target from feedback. Blocking twice is a no-op.
func (g *Gate) Block(ctx context.Context, actor, target int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.admins[actor]; !ok {
		return apperr.ErrPermissionDenied
	}
	if err := g.store.AddToBlacklist(ctx, target); err != nil {
		return err
	}
	g.blacklist[target] = struct{}{}
	return nil
}

// Unblock lifts the ban on target. Unblocking a non-member is a no-op.
func (g *Gate) Unblock(ctx context.Context, actor, target int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.admins[actor]; !ok {
		return apperr.ErrPermissionDenied
	}
	if err := g.store.RemoveFromBlacklist(ctx, target); err != nil {
		return err
	}
	delete(g.blacklist, target)
	return nil
}

func sortedKeys(m map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

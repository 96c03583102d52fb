// Package panel defines the narrow contracts the scheduling core has to
// the rest of the system: the arm/disarm controller and the user
// directory. Real panel integrations live behind these interfaces; a
// local in-memory implementation backs the daemon and tests.
package panel

import (
	"context"
	"errors"
	"sync"

	"sentinel/internal/task"
)

// State is the panel arm state as reported by the controller.
type State string

const (
	StateDisarmed  State = "DISARMED"
	StateArmedAway State = "ARMED_AWAY"
	StateArmedStay State = "ARMED_STAY"
)

func (s State) Armed() bool { return s == StateArmedAway || s == StateArmedStay }

// Result is the outcome of a panel action.
//
// Success=false with a non-empty Err is an action-level failure (the
// panel refused or the action did not take); a Go error from the call
// itself means the controller could not be reached at all. Both count
// as execution failures for retry purposes.
type Result struct {
	Success bool
	Message string
	Err     string
	State   State
}

// Controller is the arm/disarm collaborator.
type Controller interface {
	Arm(ctx context.Context, mode task.ArmMode, userID string) (Result, error)
	Disarm(ctx context.Context, userID string) (Result, error)

	// CurrentState supports advisory pre-execution checks. Implementations
	// that cannot report state return ("", ErrStateUnknown).
	CurrentState(ctx context.Context) (State, error)
}

// ErrStateUnknown is returned by controllers that cannot report state.
var ErrStateUnknown = errors.New("panel state unknown")

// ---- user directory ----

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID   string
	Role Role
}

// ErrUnknownUser is returned by Directory lookups for absent users.
var ErrUnknownUser = errors.New("unknown user")

// Directory resolves user ids to roles for ownership/admin checks.
// A nil Directory degrades permission checks to owner-only, never to
// no check.
type Directory interface {
	FindUser(ctx context.Context, id string) (User, error)
}

// StaticDirectory is a fixed map-backed Directory.
type StaticDirectory map[string]Role

func (d StaticDirectory) FindUser(_ context.Context, id string) (User, error) {
	role, ok := d[id]
	if !ok {
		return User{}, ErrUnknownUser
	}
	return User{ID: id, Role: role}, nil
}

// ---- local controller ----

// Local is an in-memory Controller used by the daemon when no real
// panel integration is configured.
type Local struct {
	mu    sync.Mutex
	state State
}

func NewLocal() *Local { return &Local{state: StateDisarmed} }

func (l *Local) Arm(_ context.Context, mode task.ArmMode, _ string) (Result, error) {
	if !mode.Valid() {
		return Result{Success: false, Err: "invalid arm mode"}, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if mode == task.ModeStay {
		l.state = StateArmedStay
	} else {
		l.state = StateArmedAway
	}
	return Result{Success: true, Message: "system armed (" + string(mode) + ")", State: l.state}, nil
}

func (l *Local) Disarm(_ context.Context, _ string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateDisarmed
	return Result{Success: true, Message: "system disarmed", State: l.state}, nil
}

func (l *Local) CurrentState(_ context.Context) (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, nil
}

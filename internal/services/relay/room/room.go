// Package room owns chat room membership state for the relay.
//
// A Registry maps room names to rooms under its own lock; each Room guards
// its memberships, host token, and message log with a per-room lock. Callers
// receive snapshots of recipients so delivery happens outside any lock.
package room

import (
	"fmt"
	"net"
	"sync"
	"time"

	apperrors "github.com/louisbranch/relaychat/internal/platform/errors"
)

const (
	// DefaultMaxMembers is the membership limit used when none is configured.
	DefaultMaxMembers = 1000
	// maxLogEntries bounds the retained message log per room.
	maxLogEntries = 1000
)

// Member binds a token to a data-plane address and user name.
type Member struct {
	Token    string
	UserName string
	Addr     *net.UDPAddr
}

// Entry is one routed chat message kept in a room's log.
type Entry struct {
	Token    string
	UserName string
	Text     string
	SentAt   time.Time
}

// Room is the membership state of one chat room.
type Room struct {
	mu         sync.Mutex
	name       string
	hostToken  string
	maxMembers int
	members    map[string]Member
	messages   []Entry
	closed     bool
}

// New creates an empty room whose host token is fixed for its lifetime.
func New(name, hostToken string, maxMembers int) *Room {
	if maxMembers <= 0 {
		maxMembers = DefaultMaxMembers
	}
	return &Room{
		name:       name,
		hostToken:  hostToken,
		maxMembers: maxMembers,
		members:    make(map[string]Member),
	}
}

// Name returns the room name.
func (r *Room) Name() string {
	return r.name
}

// HostToken returns the token of the member that created the room.
func (r *Room) HostToken() string {
	return r.hostToken
}

// AddMember admits a membership while the room holds fewer than its limit.
// A full room returns a Capacity error, a closed room NotFound, and a reused
// token Conflict; none of them mutate state.
func (r *Room) AddMember(m Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("room %q is closed", r.name))
	}
	if _, exists := r.members[m.Token]; exists {
		return apperrors.New(apperrors.CodeConflict, "token already holds a membership")
	}
	if len(r.members) >= r.maxMembers {
		return apperrors.WithMetadata(apperrors.CodeCapacity, fmt.Sprintf("room %q is full", r.name), map[string]string{
			"Room": r.name,
		})
	}
	r.members[m.Token] = m
	return nil
}

// RemoveMember removes a membership if present.
func (r *Room) RemoveMember(token string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[token]
	if ok {
		delete(r.members, token)
	}
	return m, ok
}

// RemoveAll closes the room, ends every membership, and clears the message log.
// It returns the memberships that were removed.
func (r *Room) RemoveAll() []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked("")
}

// Member returns the membership for token.
func (r *Room) Member(token string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[token]
	return m, ok
}

// Len returns the number of memberships.
func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Closed reports whether the host has torn the room down.
func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Recipients returns every membership except exclude.
func (r *Room) Recipients(exclude string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recipientsLocked(exclude)
}

// Messages returns a copy of the retained message log.
func (r *Room) Messages() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.messages))
	copy(out, r.messages)
	return out
}

// Say records a chat message from token and returns the sender with the
// members that should receive it.
func (r *Room) Say(token, text string, at time.Time) (Member, []Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sender, ok := r.members[token]
	if !ok {
		return Member{}, nil, r.missingMemberLocked()
	}
	r.messages = append(r.messages, Entry{
		Token:    token,
		UserName: sender.UserName,
		Text:     text,
		SentAt:   at,
	})
	if len(r.messages) > maxLogEntries {
		r.messages = r.messages[len(r.messages)-maxLogEntries:]
	}
	return sender, r.recipientsLocked(token), nil
}

// Departure describes the effect of a leave signal.
type Departure struct {
	Sender Member
	// Host is true when the host left and the room was torn down.
	Host bool
	// Recipients are the members to notify; for a host departure they are
	// the memberships that just ended.
	Recipients []Member
}

// Leave applies the leave signal for token. A host leave closes the room and
// removes every membership in one step; any other leave removes only token.
func (r *Room) Leave(token string) (Departure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sender, ok := r.members[token]
	if !ok {
		return Departure{}, r.missingMemberLocked()
	}
	if token == r.hostToken {
		return Departure{
			Sender:     sender,
			Host:       true,
			Recipients: r.closeLocked(token),
		}, nil
	}
	delete(r.members, token)
	return Departure{
		Sender:     sender,
		Recipients: r.recipientsLocked(token),
	}, nil
}

func (r *Room) closeLocked(exclude string) []Member {
	removed := r.recipientsLocked(exclude)
	r.closed = true
	r.members = make(map[string]Member)
	r.messages = nil
	return removed
}

func (r *Room) recipientsLocked(exclude string) []Member {
	out := make([]Member, 0, len(r.members))
	for token, m := range r.members {
		if token == exclude {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (r *Room) missingMemberLocked() error {
	if r.closed {
		return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("room %q is closed", r.name))
	}
	return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("token is not a member of room %q", r.name))
}

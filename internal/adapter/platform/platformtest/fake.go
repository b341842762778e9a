// Package platformtest provides a scripted platform.Client for tests.
package platformtest

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/valora-onboard/internal/adapter/platform"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
)

// Call records one AddMember or AddRole invocation.
type Call struct {
	Method    string
	GroupID   string
	SubjectID string
	Token     string
	Roles     []string
	At        time.Time
}

// Fake implements platform.Client from in-memory tables.
type Fake struct {
	mu sync.Mutex

	Groups map[string]onboard.Group
	// Grants maps authorization codes to token grants.
	Grants map[string]onboard.TokenGrant
	// Identities maps access tokens to identities.
	Identities map[string]onboard.Identity
	// MemberErrors maps subject ids to the error AddMember returns for them.
	MemberErrors map[string]error
	// GroupErrors maps group ids to the error AddMember returns for any subject.
	GroupErrors map[string]error
	InviteCode  string
	InviteErr   error

	calls         []Call
	resolveCalls  int
	exchangeCalls int
}

var _ platform.Client = (*Fake)(nil)

// New returns an empty Fake.
func New() *Fake {
	return &Fake{
		Groups:       map[string]onboard.Group{},
		Grants:       map[string]onboard.TokenGrant{},
		Identities:   map[string]onboard.Identity{},
		MemberErrors: map[string]error{},
		GroupErrors:  map[string]error{},
	}
}

func (f *Fake) ExchangeCode(_ context.Context, code string) (*onboard.TokenGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangeCalls++
	grant, ok := f.Grants[code]
	if !ok {
		return nil, onboard.ErrAuthentication
	}
	return &grant, nil
}

func (f *Fake) FetchIdentity(_ context.Context, accessToken string) (*onboard.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.Identities[accessToken]
	if !ok {
		return nil, onboard.ErrCredentialInvalid
	}
	return &identity, nil
}

func (f *Fake) ResolveGroup(_ context.Context, groupID string) (*onboard.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	group, ok := f.Groups[groupID]
	if !ok {
		return nil, onboard.ErrGroupNotFound
	}
	return &group, nil
}

func (f *Fake) AddMember(_ context.Context, groupID, subjectID, accessToken string, roles []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: "AddMember", GroupID: groupID, SubjectID: subjectID, Token: accessToken, Roles: roles, At: time.Now()})
	if err := f.GroupErrors[groupID]; err != nil {
		return err
	}
	return f.MemberErrors[subjectID]
}

func (f *Fake) AddRole(_ context.Context, groupID, subjectID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: "AddRole", GroupID: groupID, SubjectID: subjectID, Roles: []string{roleID}, At: time.Now()})
	return nil
}

func (f *Fake) CreateInvite(_ context.Context, channelID string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InviteErr != nil {
		return "", f.InviteErr
	}
	if channelID == "" {
		return "", onboard.ErrChannelNotFound
	}
	return f.InviteCode, nil
}

// Calls returns recorded member and role calls in order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// NetworkCalls counts every outbound call made so far.
func (f *Fake) NetworkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls) + f.resolveCalls + f.exchangeCalls
}

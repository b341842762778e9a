package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository"
)

// DefaultStateTTL bounds how long an authorization attempt stays valid.
const DefaultStateTTL = time.Hour

// StateManager issues and consumes single-use state tokens.
type StateManager struct {
	store repository.StateTokenStore
	ttl   time.Duration
	now   func() time.Time
}

func NewStateManager(store repository.StateTokenStore, ttl time.Duration) *StateManager {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateManager{store: store, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Issue persists a fresh token bound to subjectID (or any subject when empty) and originGroupID.
func (m *StateManager) Issue(ctx context.Context, subjectID, originGroupID string) (string, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		subjectID = onboard.AnySubject
	}
	token := onboard.StateToken{
		TokenID:       uuid.NewString(),
		SubjectID:     subjectID,
		OriginGroupID: strings.TrimSpace(originGroupID),
		CreatedAt:     m.now(),
	}
	if err := m.store.Save(ctx, token, m.ttl); err != nil {
		return "", fmt.Errorf("issue state: %w", err)
	}
	return token.TokenID, nil
}

// Consume returns the token and removes it. Unknown, reused and expired tokens all yield nil.
func (m *StateManager) Consume(ctx context.Context, tokenID string) (*onboard.StateToken, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, nil
	}
	token, err := m.store.Take(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("consume state: %w", err)
	}
	if token == nil || token.Expired(m.now(), m.ttl) {
		return nil, nil
	}
	return token, nil
}

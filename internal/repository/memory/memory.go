// Package memory provides in-process implementations of the repository
// interfaces. Service tests use them in place of Postgres and Redis.
package memory

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository"
)

var (
	_ repository.CredentialStore          = (*CredentialStore)(nil)
	_ repository.RedemptionCodeRepository = (*RedemptionCodes)(nil)
	_ repository.SettingsRepository       = (*Settings)(nil)
	_ repository.StateTokenStore          = (*StateTokens)(nil)
	_ repository.BatchStatusStore         = (*BatchStatuses)(nil)
)

// CredentialStore keeps credential records in a map.
type CredentialStore struct {
	mu      sync.Mutex
	records map[string]domain.CredentialRecord
	deleted []string
}

func NewCredentialStore(records ...domain.CredentialRecord) *CredentialStore {
	s := &CredentialStore{records: make(map[string]domain.CredentialRecord)}
	for _, r := range records {
		s.records[r.SubjectID] = r
	}
	return s
}

func (s *CredentialStore) Upsert(_ context.Context, record domain.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.SubjectID] = record
	return nil
}

func (s *CredentialStore) Get(_ context.Context, subjectID string) (domain.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[subjectID]
	if !ok {
		return domain.CredentialRecord{}, onboard.ErrNotFound
	}
	return record, nil
}

func (s *CredentialStore) Sample(_ context.Context, n int) ([]domain.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return nil, nil
	}
	all := make([]domain.CredentialRecord, 0, len(s.records))
	for _, r := range s.records {
		all = append(all, r)
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if n > len(all) {
		n = len(all)
	}
	return all[:n], nil
}

func (s *CredentialStore) Delete(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, subjectID)
	s.deleted = append(s.deleted, subjectID)
	return nil
}

func (s *CredentialStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

// Deleted lists subject ids passed to Delete, in call order.
func (s *CredentialStore) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// Has reports whether a record exists for subjectID.
func (s *CredentialStore) Has(subjectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[subjectID]
	return ok
}

// RedemptionCodes keeps redemption codes in a map.
type RedemptionCodes struct {
	mu    sync.Mutex
	codes map[string]domain.RedemptionCode
}

func NewRedemptionCodes() *RedemptionCodes {
	return &RedemptionCodes{codes: make(map[string]domain.RedemptionCode)}
}

func (r *RedemptionCodes) Create(_ context.Context, code domain.RedemptionCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.codes[code.Code]; exists {
		return onboard.ErrConflict
	}
	r.codes[code.Code] = code
	return nil
}

func (r *RedemptionCodes) Get(_ context.Context, code string) (domain.RedemptionCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.codes[code]
	if !ok {
		return domain.RedemptionCode{}, onboard.ErrCodeNotFound
	}
	return rc, nil
}

func (r *RedemptionCodes) Claim(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.codes[code]
	if !ok || rc.Used {
		return false, nil
	}
	rc.Used = true
	r.codes[code] = rc
	return true, nil
}

func (r *RedemptionCodes) Release(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rc, ok := r.codes[code]; ok {
		rc.Used = false
		r.codes[code] = rc
	}
	return nil
}

func (r *RedemptionCodes) Count(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes), nil
}

// Settings keeps a single settings value; nil until saved.
type Settings struct {
	mu    sync.Mutex
	saved *domain.Settings
}

func NewSettings() *Settings {
	return &Settings{}
}

// NewSavedSettings starts as if settings had already been saved.
func NewSavedSettings(saved domain.Settings) *Settings {
	return &Settings{saved: &saved}
}

func (s *Settings) Get(context.Context) (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		return nil, nil
	}
	out := *s.saved
	return &out, nil
}

func (s *Settings) Save(_ context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = &settings
	return nil
}

// StateTokens keeps state tokens with an expiry deadline.
type StateTokens struct {
	mu     sync.Mutex
	tokens map[string]stateEntry
	now    func() time.Time
}

type stateEntry struct {
	token    onboard.StateToken
	deadline time.Time
}

func NewStateTokens(now func() time.Time) *StateTokens {
	if now == nil {
		now = time.Now
	}
	return &StateTokens{tokens: make(map[string]stateEntry), now: now}
}

func (s *StateTokens) Save(_ context.Context, token onboard.StateToken, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.TokenID] = stateEntry{token: token, deadline: s.now().Add(ttl)}
	return nil
}

func (s *StateTokens) Take(_ context.Context, tokenID string) (*onboard.StateToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[tokenID]
	if !ok {
		return nil, nil
	}
	delete(s.tokens, tokenID)
	if s.now().After(entry.deadline) {
		return nil, nil
	}
	token := entry.token
	return &token, nil
}

// BatchStatuses keeps batch statuses in a map.
type BatchStatuses struct {
	mu       sync.Mutex
	statuses map[string]onboard.BatchStatus
}

func NewBatchStatuses() *BatchStatuses {
	return &BatchStatuses{statuses: make(map[string]onboard.BatchStatus)}
}

func (b *BatchStatuses) Put(_ context.Context, status onboard.BatchStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses[status.Batch.ID] = status
	return nil
}

func (b *BatchStatuses) Get(_ context.Context, batchID string) (*onboard.BatchStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	status, ok := b.statuses[batchID]
	if !ok {
		return nil, onboard.ErrBatchNotFound
	}
	return &status, nil
}

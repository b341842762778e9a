package onboard

import "time"

// AnySubject binds a state token to whichever subject completes the authorization.
const AnySubject = "*"

// StateToken binds one authorization attempt to the subject and group it started from.
type StateToken struct {
	TokenID       string    `json:"token_id"`
	SubjectID     string    `json:"subject_id"`
	OriginGroupID string    `json:"origin_group_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Wildcard reports whether any subject may complete the authorization.
func (t StateToken) Wildcard() bool {
	return t.SubjectID == AnySubject
}

// Expired reports whether the token is older than ttl at now.
func (t StateToken) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(t.CreatedAt) > ttl
}

// Group is a resolved platform group.
type Group struct {
	ID              string
	Name            string
	SystemChannelID string
}

// Identity is the subject profile returned by the platform after token exchange.
type Identity struct {
	ID       string
	Username string
	Avatar   string
}

// TokenGrant is the token endpoint response of a code exchange.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresIn    int64
}

// Result is the aggregate outcome of one batch.
type Result struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Batch source values.
const (
	SourceAdmin  = "admin"
	SourceRedeem = "redeem"
)

// Batch describes one invocation of the bulk onboarding orchestrator.
type Batch struct {
	ID          string   `json:"id"`
	GroupID     string   `json:"group_id"`
	GroupName   string   `json:"group_name,omitempty"`
	Quantity    int      `json:"quantity"`
	Roles       []string `json:"roles,omitempty"`
	Source      string   `json:"source"`
	RequestedBy string   `json:"requested_by,omitempty"`
	Code        string   `json:"code,omitempty"`
}

// Batch status values.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// BatchStatus is the completion event the worker records for a batch.
type BatchStatus struct {
	Batch      Batch      `json:"batch"`
	Status     string     `json:"status"`
	Result     *Result    `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

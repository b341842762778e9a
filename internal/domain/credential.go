package domain

import "time"

// CredentialRecord stores the platform credentials of one previously authorized subject.
type CredentialRecord struct {
	SubjectID    string
	DisplayName  string
	AccessToken  string
	RefreshToken string
	GrantedRoles []string
	IssuedAt     time.Time
}

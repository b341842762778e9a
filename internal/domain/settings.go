package domain

// Settings holds the per-deployment values an administrator can change at runtime.
// Once saved they replace the environment defaults as a whole; an empty field
// disables the feature it configures.
type Settings struct {
	MainGroupID    string `json:"main_group_id"`
	VerifiedRoleID string `json:"verified_role_id"`
	LogWebhookURL  string `json:"log_webhook_url"`
}

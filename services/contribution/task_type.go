package contribution

const (
	TypeContributionRetry = "contribution:retry"
)

type RetryPayload struct {
	ContributionID string `json:"contribution_id"`
}

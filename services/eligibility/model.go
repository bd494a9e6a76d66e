package eligibility

// CreativeAd is read-only catalog configuration for one creative. The rule
// engine never mutates it.
type CreativeAd struct {
	CampaignID    string   `json:"campaign_id"`
	CreativeSetID string   `json:"creative_set_id"`
	DailyCap      int      `json:"daily_cap"`
	PerDay        int      `json:"per_day"`
	PerWeek       int      `json:"per_week"`
	PerMonth      int      `json:"per_month"`
	TotalMax      int      `json:"total_max"`
	Conditions    []string `json:"conditions,omitempty"`
}

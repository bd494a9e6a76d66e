package contribution

import (
	"time"

	"rewards-pipeline/services/order"
)

// Step is the persisted resume point of a contribution. It only ever moves
// forward through the flow steps; the sink steps are terminal.
type Step string

const (
	StepStart               Step = "start"
	StepPrepare             Step = "prepare"
	StepReserve             Step = "reserve"
	StepExternalTransaction Step = "external_transaction"
	StepCreds               Step = "creds"
	StepCompleted           Step = "completed"

	StepFailed         Step = "failed"
	StepNotEnoughFunds Step = "not_enough_funds"
	StepAcTableEmpty   Step = "ac_table_empty"
	StepRewardsOff     Step = "rewards_off"
	StepAcOff          Step = "ac_off"
)

// stepRank orders the flow steps for the forward-only transition guard.
var stepRank = map[Step]int{
	StepStart:               0,
	StepPrepare:             1,
	StepReserve:             2,
	StepExternalTransaction: 3,
	StepCreds:               4,
	StepCompleted:           5,
}

// Terminal reports whether the step ends the contribution: completion or one
// of the sink steps.
func (s Step) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepNotEnoughFunds, StepAcTableEmpty, StepRewardsOff, StepAcOff:
		return true
	}
	return false
}

// Sink reports whether the step is a failure/abandonment sink.
func (s Step) Sink() bool {
	return s.Terminal() && s != StepCompleted
}

type ContributionType string

const (
	TypeAutoContribute ContributionType = "auto_contribute"
	TypeOneTimeTip     ContributionType = "one_time_tip"
	TypeRecurringTip   ContributionType = "recurring_tip"
	TypePayment        ContributionType = "payment"
)

type Contribution struct {
	ID         string           `json:"id" gorm:"column:id;primaryKey"`
	Amount     float64          `json:"amount" gorm:"column:amount"`
	Type       ContributionType `json:"type" gorm:"column:type"`
	Step       Step             `json:"step" gorm:"column:step;index"`
	RetryCount int              `json:"retry_count" gorm:"column:retry_count"`
	Processor  order.WalletType `json:"processor" gorm:"column:processor"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (Contribution) TableName() string {
	return "contributions"
}

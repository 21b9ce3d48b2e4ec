// Package balance holds the reference economy and timing values. Config
// defaults come from here; the running server reads them through config.
package balance

import "time"

const (
	StartingResources = 1000
	StartingHype      = 100

	// Transaction rush
	RewardPerVerification = 10
	CompletionBonus       = 1.5
	SurgeDuration         = 30 * time.Second
	SurgeTarget           = 50
	SurgeTargetMin        = 30
	SurgeTargetMax        = 70
	SurgeInitialDelay     = 5 * time.Second
	SurgeRetriggerMin     = 60 * time.Second
	SurgeRetriggerMax     = 180 * time.Second

	// Viral spread
	ViralSpreadInterval       = 120 * time.Second
	MinHypeToGoViral          = 50
	MinViralityScoreThreshold = 30
	ViralRewardAmount         = 500

	// Inbound flood control, per connection
	MessagesPerSecond = 20
	MessageBurst      = 40
)

const (
	ReasonRushReward      = "Transaction Rush Reward"
	ReasonRushRewardBonus = "Transaction Rush Reward + Bonus!"
)

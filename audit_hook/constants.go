package audithook

// Action constants for audit events.
const (
	// Schedule actions
	ActionScheduleCreated  = "vesting.schedule.created"
	ActionImmediateRelease = "vesting.immediate_release"

	// Claim actions
	ActionClaimed       = "vesting.claimed"
	ActionClaimRejected = "vesting.claim.rejected"

	// Funding actions
	ActionUnderfunded = "vesting.underfunded"
)

// Resource constants for audit events.
const (
	ResourceSchedule = "schedule"
	ResourceClaim    = "claim"
	ResourcePool     = "funding_pool"
)

// Category constants for audit events.
const (
	CategoryVesting = "vesting"
	CategoryPayout  = "payout"
	CategoryFunding = "funding"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

package discount

// Reasons a promotional code does not compete. An invalid code is never an error.
const (
	ReasonUnknownCode          = "unknown_code"
	ReasonInactive             = "inactive"
	ReasonNotStarted           = "not_started"
	ReasonExpired              = "expired"
	ReasonUsageExhausted       = "usage_exhausted"
	ReasonClientUsageExhausted = "client_usage_exhausted"
	ReasonOfferingNotEligible  = "offering_not_eligible"
	ReasonClientNotEligible    = "client_not_eligible"
)

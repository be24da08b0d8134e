package staffing

const (
	mismatchOffering    = "period belongs to another offering"
	mismatchDate        = "session date is outside the period"
	mismatchUnifiedMode = "offering does not use override periods"
)

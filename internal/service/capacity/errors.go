package capacity

const (
	ReasonNoSlots      = "no slots available"
	ReasonSlotNotFound = "slot not found"
)

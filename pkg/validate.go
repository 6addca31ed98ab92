package nxload

const (
	fieldEventTimeZero   = "event_time_zero"
	fieldEventIndex      = "event_index"
	fieldEventID         = "event_id"
	fieldEventTimeOffset = "event_time_offset"
)

var requiredEventFields = []string{
	fieldEventTimeZero,
	fieldEventIndex,
	fieldEventID,
	fieldEventTimeOffset,
}

// ValidateSource checks that an NXevent_data group has every required
// field. All missing fields are reported, not only the first one.
func ValidateSource(group Group) error {
	missing := make([]string, 0)
	for _, field := range requiredEventFields {
		if !group.Has(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &ErrMissingFields{Path: group.Path(), Fields: missing}
	}
	return nil
}

package cache

import (
	"fmt"
	"time"
)

const ns = "classbook:v1"

func KeyCapacity(slotID int64, date time.Time) string {
	return fmt.Sprintf("%s:slot:%d:capacity:%s", ns, slotID, date.Format(time.DateOnly))
}

func KeyStaff(slotID int64, date time.Time) string {
	return fmt.Sprintf("%s:slot:%d:staff:%s", ns, slotID, date.Format(time.DateOnly))
}

// DateKeys expands [from, to] into one key per calendar day using keyFn.
// Ranges longer than maxDays are clipped so a misconfigured period cannot
// produce an unbounded delete.
func DateKeys(slotID int64, from, to time.Time, keyFn func(int64, time.Time) string) []string {
	const maxDays = 400

	if to.Before(from) {
		return nil
	}

	keys := make([]string, 0, 8)
	for d, n := from, 0; !d.After(to) && n < maxDays; d, n = d.AddDate(0, 0, 1), n+1 {
		keys = append(keys, keyFn(slotID, d))
	}

	return keys
}

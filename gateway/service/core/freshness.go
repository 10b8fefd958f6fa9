package core

import "time"

// TooOld reports whether a message's send timestamp falls outside the
// freshness window. Messages without a timestamp (sentUnix == 0) are never
// considered old: Meta omits the field in some payloads and dropping those
// silently would lose real traffic.
func TooOld(sentUnix int64, now time.Time, threshold time.Duration) bool {
	if sentUnix == 0 {
		return false
	}
	return now.Sub(time.Unix(sentUnix, 0)) > threshold
}

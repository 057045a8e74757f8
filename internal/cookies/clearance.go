// File: internal/cookies/clearance.go

// Package cookies handles clearance-token extraction from browser cookie
// snapshots and the file-backed store of solved records.
package cookies

import (
	"time"

	"github.com/chromedp/cdproto/network"
)

// ClearanceCookieName is the fixed name of the cookie the edge service issues
// once a client is judged non-automated.
const ClearanceCookieName = "cf_clearance"

// ExtractClearance returns the clearance cookie from a snapshot, or nil when
// absent. The first exact name match wins; any duplicates are ignored.
func ExtractClearance(snapshot []*network.Cookie) *network.Cookie {
	for _, c := range snapshot {
		if c.Name == ClearanceCookieName {
			return c
		}
	}
	return nil
}

// ExpiryTime converts a cookie's expiry (unix seconds, fractional) to an
// absolute time. Session cookies (expires <= 0) yield the zero time.
func ExpiryTime(c *network.Cookie) time.Time {
	if c == nil || c.Expires <= 0 {
		return time.Time{}
	}
	sec := int64(c.Expires)
	nsec := int64((c.Expires - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

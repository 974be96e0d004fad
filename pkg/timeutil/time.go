// Package timeutil keeps every timestamp the gateway writes in UTC, so ledger
// rows, documents and job leases compare without zone conversions.
package timeutil

import "time"

// Now is time.Now in UTC
func Now() time.Time {
	return time.Now().UTC()
}

// Age is the time elapsed since t
func Age(t time.Time) time.Duration {
	return Now().Sub(t.UTC())
}

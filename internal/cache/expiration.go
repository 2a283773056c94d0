package cache

import (
	"fmt"
	"math"
	"time"
)

// DefaultExpiration is the budget used when no expiration is given.
const DefaultExpiration = time.Hour

type unit uint8

const (
	unitDefault unit = iota
	unitDuration
	unitMilliseconds
	unitSeconds
	unitMinutes
	unitHours
)

// Expiration is how long an entry stays valid after it is set.
// The zero value resolves to DefaultExpiration.
type Expiration struct {
	unit   unit
	amount float64
	d      time.Duration
}

// Milliseconds returns an expiration of n milliseconds.
func Milliseconds(n float64) Expiration { return Expiration{unit: unitMilliseconds, amount: n} }

// Seconds returns an expiration of n seconds.
func Seconds(n float64) Expiration { return Expiration{unit: unitSeconds, amount: n} }

// Minutes returns an expiration of n minutes.
func Minutes(n float64) Expiration { return Expiration{unit: unitMinutes, amount: n} }

// Hours returns an expiration of n hours. Bare numeric budgets coming from
// older callers are hours and should go through here.
func Hours(n float64) Expiration { return Expiration{unit: unitHours, amount: n} }

// After returns an expiration of exactly d.
func After(d time.Duration) Expiration { return Expiration{unit: unitDuration, d: d} }

// Duration resolves the expiration budget.
func (e Expiration) Duration() time.Duration {
	switch e.unit {
	case unitDuration:
		return e.d
	case unitMilliseconds:
		return scale(e.amount, time.Millisecond)
	case unitSeconds:
		return scale(e.amount, time.Second)
	case unitMinutes:
		return scale(e.amount, time.Minute)
	case unitHours:
		return scale(e.amount, time.Hour)
	default:
		return DefaultExpiration
	}
}

func (e Expiration) String() string {
	switch e.unit {
	case unitMilliseconds:
		return fmt.Sprintf("%gms", e.amount)
	case unitSeconds:
		return fmt.Sprintf("%gs", e.amount)
	case unitMinutes:
		return fmt.Sprintf("%gm", e.amount)
	case unitHours:
		return fmt.Sprintf("%gh", e.amount)
	default:
		return e.Duration().String()
	}
}

// scale saturates instead of wrapping: NaN and non-positive amounts give 0,
// anything past the int64 range gives the largest Duration.
func scale(n float64, u time.Duration) time.Duration {
	v := n * float64(u)
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(v)
}

// ExpirationOptions names a budget in one or more units. When several are set
// the finest unit wins: Milliseconds, then Seconds, then Minutes, then Hours.
type ExpirationOptions struct {
	Milliseconds *float64
	Seconds      *float64
	Minutes      *float64
	Hours        *float64
}

// Expiration resolves the options to a single budget.
func (o ExpirationOptions) Expiration() Expiration {
	switch {
	case o.Milliseconds != nil:
		return Milliseconds(*o.Milliseconds)
	case o.Seconds != nil:
		return Seconds(*o.Seconds)
	case o.Minutes != nil:
		return Minutes(*o.Minutes)
	case o.Hours != nil:
		return Hours(*o.Hours)
	default:
		return Expiration{}
	}
}

// Package domain defines the core value objects, enums, and interfaces of the
// strategy decision engine: instrument keys, orders, trades, domain events,
// portfolio snapshots, and the contracts of the external collaborators.
package domain

import (
	"fmt"
	"strings"
)

// InstrumentClass categorizes a position bucket within a venue.
type InstrumentClass string

const (
	ClassBaseToken    InstrumentClass = "BaseToken"
	ClassLSTAToken    InstrumentClass = "LST/aToken"
	ClassPerpPosition InstrumentClass = "PerpPosition"
	ClassDebtPosition InstrumentClass = "DebtPosition"
)

// Valid reports whether c is one of the four known instrument classes.
func (c InstrumentClass) Valid() bool {
	switch c {
	case ClassBaseToken, ClassLSTAToken, ClassPerpPosition, ClassDebtPosition:
		return true
	}
	return false
}

// RegisteredVenues is the set of venue identifiers this deployment trades on.
// An instrument key referencing any other venue is rejected as malformed.
var RegisteredVenues = map[string]bool{
	"binance":     true,
	"bybit":       true,
	"hyperliquid": true,
	"aave":        true,
	"etherfi":     true,
	"lido":        true,
	"wallet":      true,
}

// InstrumentKey is the canonical "venue:instrument_class:symbol" string that
// uniquely identifies one position bucket. Expected deltas, exposure snapshots
// and strategy allow-lists are all keyed by it.
type InstrumentKey string

// NewInstrumentKey builds a key from its three parts without validating them.
// Use Validate (or ParseInstrumentKey) when the parts come from the outside.
func NewInstrumentKey(venue string, class InstrumentClass, symbol string) InstrumentKey {
	return InstrumentKey(venue + ":" + string(class) + ":" + symbol)
}

// ParseInstrumentKey splits and validates a raw instrument key string.
func ParseInstrumentKey(raw string) (InstrumentKey, error) {
	k := InstrumentKey(raw)
	if err := k.Validate(); err != nil {
		return "", err
	}
	return k, nil
}

// parts splits the key into venue, class, and symbol. The class segment may
// itself contain a slash (LST/aToken) but never a colon, so a 3-way split on
// ":" is unambiguous.
func (k InstrumentKey) parts() (string, InstrumentClass, string, error) {
	s := strings.SplitN(string(k), ":", 3)
	if len(s) != 3 || s[0] == "" || s[1] == "" || s[2] == "" {
		return "", "", "", fmt.Errorf("instrument key %q: want venue:class:symbol", string(k))
	}
	return s[0], InstrumentClass(s[1]), s[2], nil
}

// Venue returns the venue segment, or "" for a malformed key.
func (k InstrumentKey) Venue() string {
	v, _, _, err := k.parts()
	if err != nil {
		return ""
	}
	return v
}

// Class returns the instrument class segment, or "" for a malformed key.
func (k InstrumentKey) Class() InstrumentClass {
	_, c, _, err := k.parts()
	if err != nil {
		return ""
	}
	return c
}

// Symbol returns the symbol segment, or "" for a malformed key.
func (k InstrumentKey) Symbol() string {
	_, _, s, err := k.parts()
	if err != nil {
		return ""
	}
	return s
}

// Validate checks the three-part shape, that the venue is registered, and
// that the instrument class is one of the four known classes.
func (k InstrumentKey) Validate() error {
	venue, class, _, err := k.parts()
	if err != nil {
		return err
	}
	if !RegisteredVenues[venue] {
		return fmt.Errorf("instrument key %q: venue %q not registered", string(k), venue)
	}
	if !class.Valid() {
		return fmt.Errorf("instrument key %q: unknown instrument class %q", string(k), class)
	}
	return nil
}

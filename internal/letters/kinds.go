// Package letters defines diplomatic letters, the per-player mailbox that
// holds them, and the cooldown table that rate-limits courtesy letters.
package letters

import (
	"fmt"
	"strings"
)

// Kind is the type of a diplomatic letter.
type Kind uint8

const (
	Request Kind = iota + 1
	Offer
	Contract
	Compliment
	Insult
	Warning
	Ultimatum
	WarDeclaration
	AllianceProposal
	WhitePeace
	Surrender
	AllianceBreak
)

// AllKinds lists every letter kind.
var AllKinds = []Kind{
	Request, Offer, Contract, Compliment, Insult, Warning, Ultimatum,
	WarDeclaration, AllianceProposal, WhitePeace, Surrender, AllianceBreak,
}

var kindNames = map[Kind]string{
	Request:          "request",
	Offer:            "offer",
	Contract:         "contract",
	Compliment:       "compliment",
	Insult:           "insult",
	Warning:          "warning",
	Ultimatum:        "ultimatum",
	WarDeclaration:   "war_declaration",
	AllianceProposal: "alliance_proposal",
	WhitePeace:       "white_peace",
	Surrender:        "surrender",
	AllianceBreak:    "alliance_break",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind maps a wire tag to a Kind.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// IsDeal reports whether k is a resource deal (Request, Offer, Contract).
func (k Kind) IsDeal() bool {
	return k == Request || k == Offer || k == Contract
}

// IsPeace reports whether k ends a war.
func (k Kind) IsPeace() bool {
	return k == WhitePeace || k == Surrender
}

// HasPayload reports whether k carries a primary resource payload.
func (k Kind) HasPayload() bool {
	return k.IsDeal() || k == Ultimatum
}

// RateLimited reports whether k is subject to the per-pair cooldown.
func (k Kind) RateLimited() bool {
	return k == Compliment || k == Insult
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("marshal kind %d: unknown", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown letter kind %q", string(b))
	}
	*k = v
	return nil
}

// Status is a letter's lifecycle state. Pending is the only non-terminal
// state and is never re-entered.
type Status uint8

const (
	Pending Status = iota
	Accepted
	Refused
	Expired
)

var statusNames = [...]string{"pending", "accepted", "refused", "expired"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool { return s != Pending }

// ParseStatus maps a wire tag to a Status.
func ParseStatus(str string) (Status, bool) {
	str = strings.ToLower(strings.TrimSpace(str))
	for i, name := range statusNames {
		if name == str {
			return Status(i), true
		}
	}
	return 0, false
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, ok := ParseStatus(string(b))
	if !ok {
		return fmt.Errorf("unknown letter status %q", string(b))
	}
	*s = v
	return nil
}

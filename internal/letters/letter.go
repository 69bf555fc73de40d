package letters

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/social"
)

var (
	ErrInvalid  = errors.New("invalid letter")
	ErrTerminal = errors.New("letter already resolved")
	ErrNotFound = errors.New("letter not found")
)

// Payload is an amount of one resource.
type Payload struct {
	Resource economy.ResourceType `json:"resource"`
	Amount   int                  `json:"amount"`
}

// Valid reports whether p names a real resource and a positive amount.
func (p Payload) Valid() bool {
	return p.Resource.Valid() && p.Amount > 0
}

// IsZero reports whether p is the empty payload.
func (p Payload) IsZero() bool { return p == Payload{} }

// Gold returns the plain gold-equivalent of p.
func (p Payload) Gold() float64 {
	return economy.GoldValue(p.Resource, p.Amount)
}

func (p Payload) String() string {
	return humanize.Comma(int64(p.Amount)) + " " + p.Resource.String()
}

// Letter is an immutable diplomatic message. Change it only through the
// With* methods, which return copies.
type Letter struct {
	ID             string
	FromFaction    social.FactionID
	ToPlayer       social.PlayerID
	ToFaction      social.FactionID
	FromPlayer     social.PlayerID
	FromAutonomous bool
	FromName       string
	Kind           Kind
	Status         Status
	CreatedAt      uint64
	ExpiresAt      uint64

	// Primary is the resource moved by deal kinds and ultimatums. For
	// Offer it is what the recipient receives; for Request, Ultimatum and
	// Contract it is what the recipient is asked to give.
	Primary Payload
	// Secondary is what a Contract's recipient receives in return.
	Secondary *Payload
	// Cap bounds a Contract's cumulative trade volume.
	Cap        int
	CasusBelli string

	Subject  string
	Note     string
	InPerson bool
	ReplyTo  string
}

// Spec is the input to New. ID and Status are assigned by New.
type Spec struct {
	FromFaction    social.FactionID
	ToPlayer       social.PlayerID
	ToFaction      social.FactionID
	FromPlayer     social.PlayerID
	FromAutonomous bool
	FromName       string
	Kind           Kind
	CreatedAt      uint64
	ExpiresAt      uint64
	Primary        Payload
	Secondary      *Payload
	Cap            int
	CasusBelli     string
	Note           string
	InPerson       bool
	ReplyTo        string
}

// NewID returns a fresh letter identity.
func NewID() string { return uuid.NewString() }

// New validates s and builds a Pending letter.
func New(s Spec) (Letter, error) {
	if err := validate(s); err != nil {
		return Letter{}, err
	}
	l := Letter{
		ID:             NewID(),
		FromFaction:    s.FromFaction,
		ToPlayer:       s.ToPlayer,
		ToFaction:      s.ToFaction,
		FromPlayer:     s.FromPlayer,
		FromAutonomous: s.FromAutonomous,
		FromName:       s.FromName,
		Kind:           s.Kind,
		Status:         Pending,
		CreatedAt:      s.CreatedAt,
		ExpiresAt:      s.ExpiresAt,
		Primary:        s.Primary,
		Cap:            s.Cap,
		CasusBelli:     s.CasusBelli,
		Note:           s.Note,
		InPerson:       s.InPerson,
		ReplyTo:        s.ReplyTo,
	}
	if s.Secondary != nil {
		sec := *s.Secondary
		l.Secondary = &sec
		if l.Cap == 0 {
			l.Cap = max(s.Primary.Amount, sec.Amount)
		}
	}
	l.Subject = Subject(l.Kind, l.Primary, l.Secondary)
	return l, nil
}

func validate(s Spec) error {
	if !s.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalid, uint8(s.Kind))
	}
	if s.FromFaction == "" && s.FromPlayer == "" {
		return fmt.Errorf("%w: no sender", ErrInvalid)
	}
	if s.ToPlayer == "" && s.ToFaction == "" {
		return fmt.Errorf("%w: no recipient", ErrInvalid)
	}
	if s.ExpiresAt != 0 && s.ExpiresAt <= s.CreatedAt {
		return fmt.Errorf("%w: expires at %d before creation at %d", ErrInvalid, s.ExpiresAt, s.CreatedAt)
	}
	if s.Kind.HasPayload() {
		if !s.Primary.Valid() {
			return fmt.Errorf("%w: %s needs a resource payload", ErrInvalid, s.Kind)
		}
	} else if !s.Primary.IsZero() {
		return fmt.Errorf("%w: %s carries no payload", ErrInvalid, s.Kind)
	}
	if s.Kind == Contract {
		if s.Secondary == nil || !s.Secondary.Valid() {
			return fmt.Errorf("%w: contract needs a return payload", ErrInvalid)
		}
		if s.Cap < 0 {
			return fmt.Errorf("%w: negative contract cap", ErrInvalid)
		}
	} else if s.Secondary != nil || s.Cap != 0 {
		return fmt.Errorf("%w: only contracts carry a return payload or cap", ErrInvalid)
	}
	if s.CasusBelli != "" && s.Kind != WarDeclaration {
		return fmt.Errorf("%w: casus belli on %s", ErrInvalid, s.Kind)
	}
	return nil
}

// IsExpired reports whether the letter's deadline has passed.
func (l Letter) IsExpired(now uint64) bool {
	return l.ExpiresAt > 0 && now >= l.ExpiresAt
}

// IsTerminal reports whether the letter can no longer be answered.
func (l Letter) IsTerminal(now uint64) bool {
	return l.Status.Terminal() || l.IsExpired(now)
}

// WithStatus returns a copy with the status changed. A resolved letter
// cannot change status again.
func (l Letter) WithStatus(s Status) (Letter, error) {
	if l.Status.Terminal() {
		if s == l.Status {
			return l.clone(), nil
		}
		return l, fmt.Errorf("%s -> %s: %w", l.Status, s, ErrTerminal)
	}
	c := l.clone()
	c.Status = s
	return c, nil
}

// WithNote returns a copy with text appended to the note.
func (l Letter) WithNote(text string) Letter {
	c := l.clone()
	if c.Note == "" {
		c.Note = text
	} else {
		c.Note += " " + text
	}
	return c
}

func (l Letter) clone() Letter {
	c := l
	if l.Secondary != nil {
		sec := *l.Secondary
		c.Secondary = &sec
	}
	return c
}

// Recipient returns the letter's addressee as a string key.
func (l Letter) Recipient() string {
	if l.ToPlayer != "" {
		return string(l.ToPlayer)
	}
	return string(l.ToFaction)
}

// Sender returns the letter's author as a string key.
func (l Letter) Sender() string {
	if l.FromPlayer != "" {
		return string(l.FromPlayer)
	}
	return string(l.FromFaction)
}

// Subject derives a human subject line for a letter.
func Subject(k Kind, primary Payload, secondary *Payload) string {
	switch k {
	case Request:
		return "A request for " + primary.String()
	case Offer:
		return "A gift of " + primary.String()
	case Contract:
		if secondary != nil {
			return fmt.Sprintf("Proposed trade: %s for %s", primary, secondary)
		}
		return "Proposed trade"
	case Compliment:
		return "Words of esteem"
	case Insult:
		return "An insult"
	case Warning:
		return "A warning"
	case Ultimatum:
		return "Ultimatum: surrender " + primary.String()
	case WarDeclaration:
		return "Declaration of war"
	case AllianceProposal:
		return "Proposal of alliance"
	case WhitePeace:
		return "Offer of white peace"
	case Surrender:
		return "Terms of surrender"
	case AllianceBreak:
		return "The alliance is ended"
	}
	return "A letter"
}

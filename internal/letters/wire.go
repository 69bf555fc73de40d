package letters

import (
	"encoding/json"
	"fmt"

	"github.com/talgya/kingdoms/internal/economy"
	"github.com/talgya/kingdoms/internal/social"
)

// NoResource is the wire tag for an absent payload.
const NoResource = "none"

// Wire is the flat encoding of a Letter used by the API and the save
// file. Optional fields are encoded as a sentinel tag plus a has_* flag;
// nothing outside this file sees that encoding.
type Wire struct {
	ID             string `json:"id" db:"id"`
	Player         string `json:"-" db:"player"`
	Position       int    `json:"-" db:"position"`
	FromFaction    string `json:"from_faction" db:"from_faction"`
	FromPlayer     string `json:"from_player,omitempty" db:"from_player"`
	ToPlayer       string `json:"to_player,omitempty" db:"to_player"`
	ToFaction      string `json:"to_faction,omitempty" db:"to_faction"`
	FromAutonomous bool   `json:"from_autonomous" db:"from_autonomous"`
	FromName       string `json:"from_name" db:"from_name"`
	Kind           string `json:"kind" db:"kind"`
	Status         string `json:"status" db:"status"`
	CreatedAt      uint64 `json:"created_at" db:"created_at"`
	ExpiresAt      uint64 `json:"expires_at" db:"expires_at"`

	Resource string `json:"resource" db:"resource"`
	Amount   int    `json:"amount" db:"amount"`

	HasSecondary      bool   `json:"has_secondary" db:"has_secondary"`
	SecondaryResource string `json:"secondary_resource" db:"secondary_resource"`
	SecondaryAmount   int    `json:"secondary_amount" db:"secondary_amount"`
	Cap               int    `json:"cap" db:"cap"`

	HasCasusBelli bool   `json:"has_casus_belli" db:"has_casus_belli"`
	CasusBelli    string `json:"casus_belli" db:"casus_belli"`

	Subject  string `json:"subject" db:"subject"`
	Note     string `json:"note" db:"note"`
	InPerson bool   `json:"in_person" db:"in_person"`
	ReplyTo  string `json:"reply_to,omitempty" db:"reply_to"`
}

// Encode flattens a letter.
func Encode(l Letter) Wire {
	w := Wire{
		ID:                l.ID,
		FromFaction:       string(l.FromFaction),
		FromPlayer:        string(l.FromPlayer),
		ToPlayer:          string(l.ToPlayer),
		ToFaction:         string(l.ToFaction),
		FromAutonomous:    l.FromAutonomous,
		FromName:          l.FromName,
		Kind:              l.Kind.String(),
		Status:            l.Status.String(),
		CreatedAt:         l.CreatedAt,
		ExpiresAt:         l.ExpiresAt,
		Resource:          NoResource,
		SecondaryResource: NoResource,
		Cap:               l.Cap,
		Subject:           l.Subject,
		Note:              l.Note,
		InPerson:          l.InPerson,
		ReplyTo:           l.ReplyTo,
	}
	if l.Kind.HasPayload() {
		w.Resource = l.Primary.Resource.String()
		w.Amount = l.Primary.Amount
	}
	if l.Secondary != nil {
		w.HasSecondary = true
		w.SecondaryResource = l.Secondary.Resource.String()
		w.SecondaryAmount = l.Secondary.Amount
	}
	if l.CasusBelli != "" {
		w.HasCasusBelli = true
		w.CasusBelli = l.CasusBelli
	}
	return w
}

// Decode rebuilds a letter, rejecting unknown tags and fields present on
// kinds that do not use them.
func Decode(w Wire) (Letter, error) {
	if w.ID == "" {
		return Letter{}, fmt.Errorf("%w: missing id", ErrInvalid)
	}
	kind, ok := ParseKind(w.Kind)
	if !ok {
		return Letter{}, fmt.Errorf("%w: kind %q", ErrInvalid, w.Kind)
	}
	status, ok := ParseStatus(w.Status)
	if !ok {
		return Letter{}, fmt.Errorf("%w: status %q", ErrInvalid, w.Status)
	}
	l := Letter{
		ID:             w.ID,
		FromFaction:    social.FactionID(w.FromFaction),
		FromPlayer:     social.PlayerID(w.FromPlayer),
		ToPlayer:       social.PlayerID(w.ToPlayer),
		ToFaction:      social.FactionID(w.ToFaction),
		FromAutonomous: w.FromAutonomous,
		FromName:       w.FromName,
		Kind:           kind,
		Status:         status,
		CreatedAt:      w.CreatedAt,
		ExpiresAt:      w.ExpiresAt,
		Subject:        w.Subject,
		Note:           w.Note,
		InPerson:       w.InPerson,
		ReplyTo:        w.ReplyTo,
	}
	if kind.HasPayload() {
		p, err := decodePayload(w.Resource, w.Amount)
		if err != nil {
			return Letter{}, err
		}
		l.Primary = p
	}
	if w.HasSecondary {
		if kind != Contract {
			return Letter{}, fmt.Errorf("%w: return payload on %s", ErrInvalid, kind)
		}
		p, err := decodePayload(w.SecondaryResource, w.SecondaryAmount)
		if err != nil {
			return Letter{}, err
		}
		l.Secondary = &p
		l.Cap = w.Cap
	} else if kind == Contract {
		return Letter{}, fmt.Errorf("%w: contract without return payload", ErrInvalid)
	}
	if w.HasCasusBelli {
		if kind != WarDeclaration {
			return Letter{}, fmt.Errorf("%w: casus belli on %s", ErrInvalid, kind)
		}
		l.CasusBelli = w.CasusBelli
	}
	if l.Subject == "" {
		l.Subject = Subject(kind, l.Primary, l.Secondary)
	}
	return l, nil
}

func decodePayload(tag string, amount int) (Payload, error) {
	r, ok := economy.ParseResource(tag)
	if !ok {
		return Payload{}, fmt.Errorf("%w: resource %q", ErrInvalid, tag)
	}
	p := Payload{Resource: r, Amount: amount}
	if !p.Valid() {
		return Payload{}, fmt.Errorf("%w: amount %d", ErrInvalid, amount)
	}
	return p, nil
}

func (l Letter) MarshalJSON() ([]byte, error) {
	return json.Marshal(Encode(l))
}

func (l *Letter) UnmarshalJSON(b []byte) error {
	var w Wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	v, err := Decode(w)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

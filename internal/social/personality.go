package social

import (
	"encoding/json"
	"hash/fnv"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// PersonalityView is the read side of a kingdom's temperament. Every trait
// is in [0,1].
type PersonalityView interface {
	Aggression() float64
	Honor() float64
	Greed() float64
	Generosity() float64
	Pragmatism() float64
	TrustBias() float64
}

// Traits is the plain data behind a Personality.
type Traits struct {
	Aggression float64 `json:"aggression" yaml:"aggression"`
	Honor      float64 `json:"honor" yaml:"honor"`
	Greed      float64 `json:"greed" yaml:"greed"`
	Generosity float64 `json:"generosity" yaml:"generosity"`
	Pragmatism float64 `json:"pragmatism" yaml:"pragmatism"`
	TrustBias  float64 `json:"trust_bias" yaml:"trust_bias"`
}

// NeutralTrait is the value every absent trait reads as.
const NeutralTrait = 0.5

// Personality implements PersonalityView. A nil *Personality reads neutral.
type Personality struct {
	t Traits
}

// NewPersonality clamps every trait into [0,1].
func NewPersonality(t Traits) *Personality {
	return &Personality{t: Traits{
		Aggression: unit(t.Aggression),
		Honor:      unit(t.Honor),
		Greed:      unit(t.Greed),
		Generosity: unit(t.Generosity),
		Pragmatism: unit(t.Pragmatism),
		TrustBias:  unit(t.TrustBias),
	}}
}

// Neutral returns a profile with every trait at 0.5.
func Neutral() *Personality {
	return NewPersonality(Traits{
		Aggression: NeutralTrait,
		Honor:      NeutralTrait,
		Greed:      NeutralTrait,
		Generosity: NeutralTrait,
		Pragmatism: NeutralTrait,
		TrustBias:  NeutralTrait,
	})
}

func (p *Personality) Aggression() float64 { return p.traits().Aggression }
func (p *Personality) Honor() float64      { return p.traits().Honor }
func (p *Personality) Greed() float64      { return p.traits().Greed }
func (p *Personality) Generosity() float64 { return p.traits().Generosity }
func (p *Personality) Pragmatism() float64 { return p.traits().Pragmatism }
func (p *Personality) TrustBias() float64  { return p.traits().TrustBias }

// Traits returns a copy of the underlying values.
func (p *Personality) Traits() Traits { return p.traits() }

func (p *Personality) traits() Traits {
	if p == nil {
		return Neutral().t
	}
	return p.t
}

func (p *Personality) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.traits())
}

func (p *Personality) UnmarshalJSON(b []byte) error {
	// Missing traits default to neutral rather than zero.
	t := Neutral().t
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	*p = *NewPersonality(t)
	return nil
}

// GeneratePersonality derives stable traits for a kingdom from the world
// seed. Each trait samples its own band of a simplex field at a point
// hashed from the kingdom ID, so neighbors in ID space are uncorrelated.
func GeneratePersonality(seed int64, id FactionID) *Personality {
	noise := opensimplex.NewNormalized(seed)

	h := fnv.New64a()
	h.Write([]byte(id))
	sum := h.Sum64()
	x := float64(sum&0xffff) / 97.0
	y := float64((sum>>16)&0xffff) / 89.0

	sample := func(band int) float64 {
		v := noise.Eval2(x+float64(band)*31.7, y-float64(band)*17.3)
		// Simplex output clusters around the middle; widen it.
		return unit(0.5 + (v-0.5)*1.8)
	}

	return NewPersonality(Traits{
		Aggression: sample(0),
		Honor:      sample(1),
		Greed:      sample(2),
		Generosity: sample(3),
		Pragmatism: sample(4),
		TrustBias:  sample(5),
	})
}

func unit(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

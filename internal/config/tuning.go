// Package config loads the policy tuning file and the daemon's runtime
// settings. Every diplomacy constant lives in Tuning so worlds can be
// rebalanced without a rebuild.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TicksPerSecond is the host simulation's tick rate.
const TicksPerSecond = 20

// Seconds converts seconds of simulated time to ticks.
func Seconds(n uint64) uint64 { return n * TicksPerSecond }

// Minutes converts minutes of simulated time to ticks.
func Minutes(n uint64) uint64 { return n * 60 * TicksPerSecond }

type Tuning struct {
	Relations   RelationTuning    `yaml:"relations"`
	Alliances   AllianceTuning    `yaml:"alliances"`
	Policy      PolicyTuning      `yaml:"policy"`
	Negotiation NegotiationTuning `yaml:"negotiation"`
	Schedule    ScheduleTuning    `yaml:"schedule"`
	Letters     LetterTuning      `yaml:"letters"`
	World       WorldTuning       `yaml:"world"`
}

type RelationTuning struct {
	ScaleDamping        float64 `yaml:"scale_damping"`
	NormalizeEveryTicks uint64  `yaml:"normalize_every_ticks"`
	DecayStep           int     `yaml:"decay_step"`
	AttractorBand       int     `yaml:"attractor_band"`
}

type AllianceTuning struct {
	Capacity int `yaml:"capacity"`
}

type PolicyTuning struct {
	DealMinRelation        int      `yaml:"deal_min_relation"`
	UltimatumMaxRelation   int      `yaml:"ultimatum_max_relation"`
	ComplimentMinRelation  int      `yaml:"compliment_min_relation"`
	AllianceMinRelation    int      `yaml:"alliance_min_relation"`
	CooldownTicks          uint64   `yaml:"cooldown_ticks"`
	InPersonCooldownFactor float64  `yaml:"in_person_cooldown_factor"`
	FactionWarKinds        []string `yaml:"faction_war_kinds"`
}

type NegotiationTuning struct {
	InPersonTrustBonus       float64 `yaml:"in_person_trust_bonus"`
	InPersonAggressionFactor float64 `yaml:"in_person_aggression_factor"`
	WarPainFactor            float64 `yaml:"war_pain_factor"`
	WarPressurePain          float64 `yaml:"war_pressure_pain"`

	OfferRefuseRelation int `yaml:"offer_refuse_relation"`

	RequestTrustMin      float64 `yaml:"request_trust_min"`
	RequestGenerosityMin float64 `yaml:"request_generosity_min"`
	RequestSpareMin      float64 `yaml:"request_spare_min"`
	RequestFairnessMin   float64 `yaml:"request_fairness_min"`
	CounterFairness      float64 `yaml:"counter_fairness"`

	ContractAlliedBonus float64 `yaml:"contract_allied_bonus"`
	ContractUnfair      float64 `yaml:"contract_unfair"`
	ContractGreat       float64 `yaml:"contract_great"`

	AllianceMinRelation int     `yaml:"alliance_min_relation"`
	AllianceMinTrust    float64 `yaml:"alliance_min_trust"`

	PeaceLowRatio      float64 `yaml:"peace_low_ratio"`
	PeaceHighRatio     float64 `yaml:"peace_high_ratio"`
	PeaceOfferMaxRatio float64 `yaml:"peace_offer_max_ratio"`

	// TargetStock overrides the default target per resource tag.
	TargetStock map[string]int `yaml:"target_stock"`
}

type ScheduleTuning struct {
	FactionPeriodTicks uint64  `yaml:"faction_period_ticks"`
	PlayerPeriodTicks  uint64  `yaml:"player_period_ticks"`
	Jitter             float64 `yaml:"jitter"`
	BudgetPerTick      int     `yaml:"budget_per_tick"`

	ResponseMinTicks uint64 `yaml:"response_min_ticks"`
	ResponseMaxTicks uint64 `yaml:"response_max_ticks"`
	FastMinTicks     uint64 `yaml:"fast_min_ticks"`
	FastMaxTicks     uint64 `yaml:"fast_max_ticks"`
}

type LetterTuning struct {
	TTLTicks    uint64 `yaml:"ttl_ticks"`
	RetainTicks uint64 `yaml:"retain_ticks"`
	MaxInbox    int    `yaml:"max_inbox"`
}

type WorldTuning struct {
	DiplomaticRange int `yaml:"diplomatic_range"`
	InPersonRadius  int `yaml:"in_person_radius"`
}

// DefaultTuning returns the stock balance.
func DefaultTuning() Tuning {
	return Tuning{
		Relations: RelationTuning{
			ScaleDamping:        0.70,
			NormalizeEveryTicks: Minutes(5),
			DecayStep:           1,
			AttractorBand:       40,
		},
		Alliances: AllianceTuning{Capacity: 3},
		Policy: PolicyTuning{
			DealMinRelation:        -40,
			UltimatumMaxRelation:   -30,
			ComplimentMinRelation:  -5,
			AllianceMinRelation:    50,
			CooldownTicks:          Minutes(8),
			InPersonCooldownFactor: 0.75,
			FactionWarKinds:        []string{"warning", "insult", "ultimatum"},
		},
		Negotiation: NegotiationTuning{
			InPersonTrustBonus:       0.12,
			InPersonAggressionFactor: 0.75,
			WarPainFactor:            1.35,
			WarPressurePain:          0.25,
			OfferRefuseRelation:      -85,
			RequestTrustMin:          0.55,
			RequestGenerosityMin:     0.30,
			RequestSpareMin:          0.60,
			RequestFairnessMin:       0.20,
			CounterFairness:          1.15,
			ContractAlliedBonus:      0.10,
			ContractUnfair:           0.85,
			ContractGreat:            1.20,
			AllianceMinRelation:      55,
			AllianceMinTrust:         0.55,
			PeaceLowRatio:            0.45,
			PeaceHighRatio:           1.25,
			PeaceOfferMaxRatio:       1.05,
		},
		Schedule: ScheduleTuning{
			FactionPeriodTicks: Minutes(10),
			PlayerPeriodTicks:  Minutes(15),
			Jitter:             0.25,
			BudgetPerTick:      2,
			ResponseMinTicks:   Seconds(30),
			ResponseMaxTicks:   Minutes(4),
			FastMinTicks:       Seconds(8),
			FastMaxTicks:       Seconds(12),
		},
		Letters: LetterTuning{
			TTLTicks:    Minutes(20),
			RetainTicks: Minutes(60),
			MaxInbox:    64,
		},
		World: WorldTuning{
			DiplomaticRange: 48,
			InPersonRadius:  2,
		},
	}
}

// LoadTuning overlays a YAML file on the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Validate rejects settings the engine cannot run with.
func (t Tuning) Validate() error {
	var errs []error
	if t.Relations.ScaleDamping < 0 || t.Relations.ScaleDamping >= 1 {
		errs = append(errs, fmt.Errorf("relations.scale_damping must be in [0,1), got %v", t.Relations.ScaleDamping))
	}
	if t.Relations.NormalizeEveryTicks == 0 {
		errs = append(errs, errors.New("relations.normalize_every_ticks must be positive"))
	}
	if t.Relations.AttractorBand < 0 || t.Relations.AttractorBand > 100 {
		errs = append(errs, fmt.Errorf("relations.attractor_band must be in [0,100], got %d", t.Relations.AttractorBand))
	}
	if t.Alliances.Capacity < 1 {
		errs = append(errs, errors.New("alliances.capacity must be at least 1"))
	}
	if t.Schedule.FactionPeriodTicks == 0 || t.Schedule.PlayerPeriodTicks == 0 {
		errs = append(errs, errors.New("schedule periods must be positive"))
	}
	if t.Schedule.Jitter < 0 || t.Schedule.Jitter >= 1 {
		errs = append(errs, fmt.Errorf("schedule.jitter must be in [0,1), got %v", t.Schedule.Jitter))
	}
	if t.Schedule.ResponseMinTicks > t.Schedule.ResponseMaxTicks || t.Schedule.FastMinTicks > t.Schedule.FastMaxTicks {
		errs = append(errs, errors.New("schedule response delay bounds are inverted"))
	}
	if t.Policy.InPersonCooldownFactor <= 0 || t.Policy.InPersonCooldownFactor > 1 {
		errs = append(errs, fmt.Errorf("policy.in_person_cooldown_factor must be in (0,1], got %v", t.Policy.InPersonCooldownFactor))
	}
	return errors.Join(errs...)
}

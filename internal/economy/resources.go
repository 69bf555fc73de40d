// Package economy provides the resource kinds kingdoms trade, their
// gold-equivalent values, and the ledger that holds each kingdom's stockpile.
package economy

import (
	"fmt"
	"strings"
)

// ResourceType enumerates the eleven stockpiled resources.
type ResourceType uint8

const (
	Gold ResourceType = iota
	Meat
	Grain
	Fish
	Wood
	Metal
	Armor
	Weapons
	Gems
	Horses
	Potions
)

// ResourceCount is the number of resource kinds.
const ResourceCount = 11

// AllResources lists every resource kind in declaration order.
var AllResources = [ResourceCount]ResourceType{
	Gold, Meat, Grain, Fish, Wood, Metal, Armor, Weapons, Gems, Horses, Potions,
}

var resourceNames = [ResourceCount]string{
	"gold", "meat", "grain", "fish", "wood", "metal",
	"armor", "weapons", "gems", "horses", "potions",
}

// String returns the lowercase tag used on the wire and in logs.
func (r ResourceType) String() string {
	if int(r) < len(resourceNames) {
		return resourceNames[r]
	}
	return "unknown"
}

// Valid reports whether r is one of the eleven known kinds.
func (r ResourceType) Valid() bool {
	return int(r) < ResourceCount
}

func (r ResourceType) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("marshal resource %d: unknown", uint8(r))
	}
	return []byte(r.String()), nil
}

func (r *ResourceType) UnmarshalText(b []byte) error {
	v, ok := ParseResource(string(b))
	if !ok {
		return fmt.Errorf("unknown resource %q", string(b))
	}
	*r = v
	return nil
}

// ParseResource maps a wire tag back to a resource kind.
func ParseResource(s string) (ResourceType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range resourceNames {
		if name == s {
			return ResourceType(i), true
		}
	}
	return 0, false
}

// unitValues is the gold-equivalent worth of one unit of each resource.
var unitValues = [ResourceCount]float64{
	Gold:    1,
	Meat:    2,
	Grain:   1,
	Fish:    2,
	Wood:    1,
	Metal:   4,
	Armor:   12,
	Weapons: 10,
	Gems:    15,
	Horses:  20,
	Potions: 8,
}

// UnitValue returns the gold-equivalent of a single unit.
func UnitValue(r ResourceType) float64 {
	if !r.Valid() {
		return 0
	}
	return unitValues[r]
}

// GoldValue returns the gold-equivalent of amount units of r.
func GoldValue(r ResourceType, amount int) float64 {
	if amount <= 0 {
		return 0
	}
	return float64(amount) * UnitValue(r)
}

// targetStock is the stock level a kingdom tries to hold. Below it a
// resource is needed; at twice it a resource is spare.
var targetStock = [ResourceCount]int{
	Gold:    400,
	Meat:    128,
	Grain:   192,
	Fish:    128,
	Wood:    256,
	Metal:   128,
	Armor:   32,
	Weapons: 32,
	Gems:    24,
	Horses:  16,
	Potions: 24,
}

// TargetStock returns the default target stock for r.
func TargetStock(r ResourceType) int {
	if !r.Valid() {
		return 1
	}
	return targetStock[r]
}

// IsWarMaterial reports whether r is hoarded during conflict.
func IsWarMaterial(r ResourceType) bool {
	switch r {
	case Metal, Weapons, Armor, Gold, Horses, Potions:
		return true
	}
	return false
}

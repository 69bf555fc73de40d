// Seat placement: scores every hex of a round realm with layered simplex
// noise and picks well-spaced high ground for each kingdom's seat.
package world

import (
	"math"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/kingdoms/internal/social"
)

// PlaceConfig controls seat placement.
type PlaceConfig struct {
	Radius    int    // hex radius of the realm
	Seed      int64  // noise seed
	MinDist   int    // minimum hexes between two seats
	Dimension string // dimension every seat is placed in
}

// Site is a scored candidate location.
type Site struct {
	Coord HexCoord `json:"coord"`
	// Fertility in [0,1] drives a kingdom's starting stock.
	Fertility float64 `json:"fertility"`
	Richness  float64 `json:"richness"`
}

// Score is the desirability of a site as a seat.
func (s Site) Score() float64 {
	return 2*s.Fertility + s.Richness
}

// Survey samples every hex within the realm radius.
func Survey(cfg PlaceConfig) []Site {
	fert := opensimplex.NewNormalized(cfg.Seed)
	rich := opensimplex.NewNormalized(cfg.Seed + 1)

	var out []Site
	for q := -cfg.Radius; q <= cfg.Radius; q++ {
		for r := -cfg.Radius; r <= cfg.Radius; r++ {
			c := HexCoord{Q: q, R: r}
			if abs(c.S()) > cfg.Radius {
				continue
			}
			x, y := float64(q), float64(r)+float64(q)*0.5
			out = append(out, Site{
				Coord:     c,
				Fertility: octaveNoise(fert, x, y, 4, 0.08, 0.5),
				Richness:  octaveNoise(rich, x, y, 3, 0.12, 0.55),
			})
		}
	}
	return out
}

// PlaceSeats assigns each kingdom the best remaining site at least MinDist
// from every other seat. Kingdoms that find no site are left out of the
// result.
func PlaceSeats(cfg PlaceConfig, ids []social.FactionID) map[social.FactionID]Site {
	sites := Survey(cfg)
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].Score() != sites[j].Score() {
			return sites[i].Score() > sites[j].Score()
		}
		if sites[i].Coord.Q != sites[j].Coord.Q {
			return sites[i].Coord.Q < sites[j].Coord.Q
		}
		return sites[i].Coord.R < sites[j].Coord.R
	})

	out := make(map[social.FactionID]Site, len(ids))
	var taken []HexCoord
	next := 0
	for _, id := range ids {
		for ; next < len(sites); next++ {
			if !tooClose(sites[next].Coord, taken, cfg.MinDist) {
				break
			}
		}
		if next >= len(sites) {
			break
		}
		out[id] = sites[next]
		taken = append(taken, sites[next].Coord)
		next++
	}
	return out
}

// SeatAtlas places the given kingdoms and returns an atlas holding their
// seats.
func SeatAtlas(cfg PlaceConfig, rangeHexes, inPersonRadius int, ids []social.FactionID) (*Atlas, map[social.FactionID]Site) {
	a := NewAtlas(rangeHexes, inPersonRadius)
	sites := PlaceSeats(cfg, ids)
	for id, s := range sites {
		a.SetSeat(id, Position{Dimension: cfg.Dimension, Coord: s.Coord})
	}
	return a, sites
}

func tooClose(c HexCoord, taken []HexCoord, minDist int) bool {
	for _, t := range taken {
		if Distance(c, t) < minDist {
			return true
		}
	}
	return false
}

// octaveNoise sums several noise layers at rising frequency, normalized
// to [0,1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total, amp, maxAmp := 0.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amp
		maxAmp += amp
		amp *= persistence
		frequency *= 2
	}
	return math.Max(0, math.Min(1, total/maxAmp))
}

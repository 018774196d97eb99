package gate

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/osmauxi/gjRepository/pkg/game/mask"
)

type Settings struct {
	// Energy a kind needs before it can be activated.
	Threshold int
	// Written to MovementConfig.SpeedMultipliers on activation.
	Multipliers map[mask.Kind]float64

	MaxHealth        int
	PandaHealthBonus int

	// Dear energy grows while the entity moves and decays while it idles.
	DearGain float64
	DearLoss float64
	// The float buffer is resynced when the counter drifts further than this
	// from it, for example after a pickup.
	DearResync float64
	DearCap    float64
}

func DefaultSettings() Settings {
	return Settings{
		Threshold: 100,
		Multipliers: map[mask.Kind]float64{
			mask.Dear:   1.5,
			mask.Panda:  0.8,
			mask.Monkey: 1.2,
		},
		MaxHealth:        100,
		PandaHealthBonus: 50,
		DearGain:         6,
		DearLoss:         10,
		DearResync:       2,
		DearCap:          100,
	}
}

// Gate holds the resources of one entity: health, energy per transformation
// and the mask it took on. It lives with the authority.
type Gate struct {
	settings Settings
	log      zerolog.Logger

	mask       mask.Kind
	energy     map[mask.Kind]int
	dearBuffer float64

	health    int
	maxHealth int
}

func New(settings Settings, logger zerolog.Logger) *Gate {
	return &Gate{
		settings:  settings,
		log:       logger,
		energy:    make(map[mask.Kind]int),
		health:    settings.MaxHealth,
		maxHealth: settings.MaxHealth,
	}
}

func (g *Gate) Settings() Settings {
	return g.settings
}

func (g *Gate) Mask() mask.Kind {
	return g.mask
}

func (g *Gate) Energy(kind mask.Kind) int {
	return g.energy[kind]
}

func (g *Gate) Health() int {
	return g.health
}

func (g *Gate) MaxHealth() int {
	return g.maxHealth
}

func (g *Gate) Alive() bool {
	return g.health > 0
}

// CanActivate reports whether kind may be taken on now. A mask is
// permanent once chosen.
func (g *Gate) CanActivate(kind mask.Kind) bool {
	if kind == mask.None || g.mask != mask.None {
		return false
	}
	return g.energy[kind] >= g.settings.Threshold
}

// Activate records the transformation and its resource effects. Movement
// effects are applied separately by Apply in every process that simulates
// the entity.
func (g *Gate) Activate(kind mask.Kind) bool {
	if !g.CanActivate(kind) {
		return false
	}

	g.mask = kind
	if kind == mask.Panda {
		g.maxHealth += g.settings.PandaHealthBonus
		g.health += g.settings.PandaHealthBonus
	}

	g.log.Info().
		Str("mask", kind.String()).
		Int("health", g.health).
		Msg("transformed")
	return true
}

func (g *Gate) AddEnergy(kind mask.Kind, amount int) {
	if kind == mask.None || amount == 0 {
		return
	}
	g.energy[kind] += amount
}

// AddToMost adds to whichever counter is largest, preferring dear, then
// panda, then monkey on ties. It returns the kind that received it.
func (g *Gate) AddToMost(amount int) mask.Kind {
	most := mask.Dear
	for _, kind := range []mask.Kind{mask.Panda, mask.Monkey} {
		if g.energy[kind] > g.energy[most] {
			most = kind
		}
	}
	g.AddEnergy(most, amount)
	return most
}

// AccrueDear runs once per tick with whether the entity is moving. Nothing
// accrues once a mask has been taken.
func (g *Gate) AccrueDear(moving bool, dt float64) {
	if g.mask != mask.None {
		return
	}

	value := g.energy[mask.Dear]
	if math.Abs(g.dearBuffer-float64(value)) > g.settings.DearResync {
		g.dearBuffer = float64(value)
	}

	switch {
	case moving:
		g.dearBuffer += g.settings.DearGain * dt
	case value < g.settings.Threshold:
		g.dearBuffer -= g.settings.DearLoss * dt
	}

	g.dearBuffer = math.Max(0, math.Min(g.settings.DearCap, g.dearBuffer))
	g.energy[mask.Dear] = int(math.Floor(g.dearBuffer))
}

// Damage lowers health and reports whether this blow was the fatal one.
func (g *Gate) Damage(amount int) bool {
	if !g.Alive() || amount <= 0 {
		return false
	}

	g.health -= amount
	if g.health > 0 {
		return false
	}

	g.health = 0
	g.log.Info().Msg("died")
	return true
}

// Restore refills health, used on respawn. The mask persists.
func (g *Gate) Restore() {
	g.health = g.maxHealth
}

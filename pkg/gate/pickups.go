package gate

import (
	"sort"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/repeale/fp-go/option"

	"github.com/osmauxi/gjRepository/pkg/game/mask"
)

type PickupKind uint8

const (
	// Adds to the entity's largest energy counter.
	PickupCommon PickupKind = iota
	PickupMonkey
)

func ParsePickupKind(s string) (PickupKind, bool) {
	switch strings.ToLower(s) {
	case "common":
		return PickupCommon, true
	case "monkey":
		return PickupMonkey, true
	}
	return PickupCommon, false
}

func (k PickupKind) String() string {
	switch k {
	case PickupCommon:
		return "common"
	case PickupMonkey:
		return "monkey"
	}
	return strconv.Itoa(int(k))
}

type Pickup struct {
	ID       uint32
	Kind     PickupKind
	Amount   int
	Position mgl64.Vec3
}

// Grant credits a claimed pickup to a gate and returns the counter that
// received it.
func Grant(g *Gate, p Pickup) mask.Kind {
	switch p.Kind {
	case PickupMonkey:
		g.AddEnergy(mask.Monkey, p.Amount)
		return mask.Monkey
	default:
		return g.AddToMost(p.Amount)
	}
}

// Pickups is the registry of energy pickups lying in the world. Ids are
// never reused, so a claim for a pickup someone else took resolves to
// nothing.
type Pickups struct {
	items map[uint32]Pickup
	next  uint32
}

func NewPickups() *Pickups {
	return &Pickups{items: make(map[uint32]Pickup)}
}

func (p *Pickups) Spawn(kind PickupKind, amount int, position mgl64.Vec3) Pickup {
	p.next++
	pickup := Pickup{
		ID:       p.next,
		Kind:     kind,
		Amount:   amount,
		Position: position,
	}
	p.items[pickup.ID] = pickup
	return pickup
}

func (p *Pickups) Get(id uint32) opt.Option[Pickup] {
	pickup, ok := p.items[id]
	if !ok {
		return opt.None[Pickup]()
	}
	return opt.Some(pickup)
}

// Claim removes a pickup and returns it, if it is still there.
func (p *Pickups) Claim(id uint32) opt.Option[Pickup] {
	pickup := p.Get(id)
	if opt.IsSome(pickup) {
		delete(p.items, id)
	}
	return pickup
}

// Within returns the pickups closer than radius to position, lowest id first.
func (p *Pickups) Within(position mgl64.Vec3, radius float64) []Pickup {
	var found []Pickup
	for _, pickup := range p.items {
		if pickup.Position.Sub(position).Len() <= radius {
			found = append(found, pickup)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].ID < found[j].ID
	})
	return found
}

func (p *Pickups) All() []Pickup {
	all := make([]Pickup, 0, len(p.items))
	for _, pickup := range p.items {
		all = append(all, pickup)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].ID < all[j].ID
	})
	return all
}

func (p *Pickups) Len() int {
	return len(p.items)
}

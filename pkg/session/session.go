package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sasha-s/go-deadlock"

	"github.com/osmauxi/gjRepository/pkg/config"
	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
	"github.com/osmauxi/gjRepository/pkg/protocol"
	"github.com/osmauxi/gjRepository/pkg/sim"
	"github.com/osmauxi/gjRepository/pkg/transport"
)

// Intent is what the local player wants this tick.
type Intent struct {
	Command game.InputCommand
	// Transform requests a mask; mask.None for nothing.
	Transform mask.Kind
}

// InputSource is polled once per fixed tick. Implementations come from the
// camera and input layer, or are bots.
type InputSource interface {
	Poll() Intent
}

// Idle never does anything.
type Idle struct{}

func (Idle) Poll() Intent {
	return Intent{Command: game.NewInputCommand()}
}

// Script replays intents in order and then idles.
type Script struct {
	intents []Intent
}

func NewScript(intents ...Intent) *Script {
	return &Script{intents: intents}
}

func (s *Script) Push(intents ...Intent) {
	s.intents = append(s.intents, intents...)
}

func (s *Script) Poll() Intent {
	if len(s.intents) == 0 {
		return Idle{}.Poll()
	}
	intent := s.intents[0]
	s.intents = s.intents[1:]
	return intent
}

// View is what the presentation layer and the status endpoint see of one
// entity.
type View struct {
	Entity    uint32         `json:"entity"`
	Owner     uint32         `json:"owner"`
	Role      string         `json:"role"`
	Mode      string         `json:"mode"`
	Position  mgl64.Vec3     `json:"position"`
	Yaw       float64        `json:"yaw"`
	Tag       string         `json:"tag"`
	Dead      bool           `json:"dead"`
	Mask      string         `json:"mask"`
	Tick      uint32         `json:"tick"`
	Digest    string         `json:"digest"`
	Health    int            `json:"health,omitempty"`
	MaxHealth int            `json:"maxHealth,omitempty"`
	Energy    map[string]int `json:"energy,omitempty"`
}

func newView(id, owner uint32, state game.EntityState, shown game.Transform) View {
	placed := state
	placed.Position = shown.Position
	placed.Rotation = shown.Rotation

	return View{
		Entity:   id,
		Owner:    owner,
		Position: shown.Position,
		Yaw:      placed.Yaw(),
		Tag:      state.Tag.String(),
		Dead:     state.IsDead,
		Tick:     state.Tick,
		Digest:   fmt.Sprintf("%016x", game.Digest(state)),
	}
}

// Views is the table the session loop publishes and HTTP handlers read.
type Views struct {
	mutex deadlock.RWMutex
	views []View
}

func (v *Views) publish(views []View) {
	sort.Slice(views, func(i, j int) bool {
		return views[i].Entity < views[j].Entity
	})

	v.mutex.Lock()
	v.views = views
	v.mutex.Unlock()
}

func (v *Views) List() []View {
	v.mutex.RLock()
	defer v.mutex.RUnlock()
	return append([]View(nil), v.views...)
}

func (v *Views) Get(entity uint32) (View, bool) {
	v.mutex.RLock()
	defer v.mutex.RUnlock()
	for _, view := range v.views {
		if view.Entity == entity {
			return view, true
		}
	}
	return View{}, false
}

// ServeHTTP writes the table as JSON.
func (v *Views) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v.List())
}

func newSimulator(cfg *config.Config, state game.EntityState) *sim.Simulator {
	world := cfg.World.Build()
	port := cfg.Physics.NewPort(world, state.Position, state.Rotation)
	return sim.New(cfg.Movement.Build(), port)
}

func send(t transport.Transport, kind protocol.Kind, entity uint32, to uint32, lane protocol.Lane, body interface{}) error {
	env, err := protocol.New(kind, entity, body)
	if err != nil {
		return err
	}
	return t.Send(env.WithTo(to).WithLane(lane))
}

package replication

import (
	"github.com/repeale/fp-go/option"

	"github.com/osmauxi/gjRepository/pkg/game"
)

// InputChanged reports whether b is worth sending after a.
func InputChanged(a, b game.InputCommand, settings Settings) bool {
	d := b.Move.Sub(a.Move)
	if d.Dot(d) > settings.InputMoveEpsilon {
		return true
	}
	if a.Jump != b.Jump || a.Attack != b.Attack || a.Skill != b.Skill {
		return true
	}
	return game.YawDelta(a.AimYaw, b.AimYaw) > settings.InputYawEpsilon
}

// InputSender decides which of the owner's commands go out.
type InputSender struct {
	settings Settings
	last     opt.Option[game.InputCommand]
	since    float64
	sequence uint32
}

func NewInputSender(settings Settings) *InputSender {
	return &InputSender{
		settings: settings,
		last:     opt.None[game.InputCommand](),
	}
}

// Offer stamps the command with the next sequence number and reports whether
// it should be sent this tick.
func (s *InputSender) Offer(cmd game.InputCommand, dt float64) (game.InputCommand, bool) {
	s.since += dt
	s.sequence++
	cmd.Sequence = s.sequence

	send := opt.IsNone(s.last) ||
		InputChanged(s.last.Value, cmd, s.settings) ||
		s.since >= s.settings.InputHeartbeat
	if !send {
		return cmd, false
	}

	s.last = opt.Some(cmd)
	s.since = 0
	return cmd, true
}

// HeldInput is the authority's copy of an owner's command. The latest
// command persists across ticks; its action flags fire once.
type HeldInput struct {
	command game.InputCommand
	// Action flags received but not yet stepped.
	pending game.InputCommand
}

func NewHeldInput() *HeldInput {
	return &HeldInput{command: game.NewInputCommand()}
}

// Receive replaces the held command unless it is older.
func (h *HeldInput) Receive(cmd game.InputCommand) bool {
	if cmd.Sequence != 0 && h.command.Sequence != 0 && int32(cmd.Sequence-h.command.Sequence) <= 0 {
		return false
	}

	h.pending.Jump = h.pending.Jump || cmd.Jump
	h.pending.Attack = h.pending.Attack || cmd.Attack
	h.pending.Skill = h.pending.Skill || cmd.Skill
	h.command = cmd.WithoutActions()
	return true
}

// Take returns the command for this tick and consumes its actions.
func (h *HeldInput) Take() game.InputCommand {
	cmd := h.command
	cmd.Jump = h.pending.Jump
	cmd.Attack = h.pending.Attack
	cmd.Skill = h.pending.Skill
	h.pending = game.InputCommand{}
	return cmd
}

func (h *HeldInput) Command() game.InputCommand {
	return h.command
}

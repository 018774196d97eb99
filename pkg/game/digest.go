package game

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

func quantize(value float64) uint64 {
	return uint64(int64(value * 1000))
}

// Digest hashes the replicated parts of a state at millimetre precision. Two
// processes that agree on a tick produce the same digest, which makes desyncs
// easy to spot in logs.
func Digest(s EntityState) uint64 {
	h := xxhash.New()
	buf := make([]byte, 8)
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf, v)
		h.Write(buf)
	}

	for _, v := range s.Position {
		put(quantize(v))
	}
	put(quantize(s.Rotation.W))
	for _, v := range s.Rotation.V {
		put(quantize(v))
	}

	flags := uint64(0)
	for i, set := range []bool{s.IsGrounded, s.IsAttacking, s.IsJumping, s.IsUsingSkill, s.IsDead} {
		if set {
			flags |= 1 << i
		}
	}
	put(flags)
	put(uint64(s.Tag))
	put(quantize(s.SkillCooldownTimer))
	put(quantize(s.AttackCooldownTimer))

	return h.Sum64()
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osmauxi/gjRepository/pkg/game"
	"github.com/osmauxi/gjRepository/pkg/game/authority"
	"github.com/osmauxi/gjRepository/pkg/game/mask"
	"github.com/osmauxi/gjRepository/pkg/gate"
	"github.com/osmauxi/gjRepository/pkg/physics"
	"github.com/osmauxi/gjRepository/pkg/replication"
)

func write(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	config, err := Process([]string{})
	require.NoError(t, err)

	assert.Equal(t, authority.Server, config.Server.AuthorityMode())
	assert.Equal(t, 0.02, config.Server.FixedStep())
	assert.Len(t, config.Server.SpawnPoints, 5)
	assert.True(t, config.Server.Ingress.Web.Enabled)
	assert.False(t, config.Server.Ingress.ENet.Enabled)

	// The embedded defaults agree with the package defaults.
	assert.Equal(t, game.DefaultMovementConfig(), config.Movement.Build())
	assert.Equal(t, replication.DefaultSettings(), config.Replication.Build())
	assert.Equal(t, gate.DefaultSettings(), config.Gate.Build())
	assert.Equal(t, physics.DefaultBodyConfig(), config.Physics.Build())

	world := config.World.Build()
	_, hit := world.Raycast(mgl64.Vec3{0, 1, 0}, mgl64.Vec3{1, 0, 0}, 20, physics.LayerObstacle)
	assert.True(t, hit)
}

func TestProcess(t *testing.T) {
	dir := t.TempDir()

	// yaml config
	{
		yaml := write(t, dir, "config.yaml", `
server:
  ingress:
    web:
      port: 1234
`)
		config, err := Process([]string{yaml})
		require.NoError(t, err)
		assert.Equal(t, 1234, config.Server.Ingress.Web.Port)
		assert.Equal(t, 50, config.Server.TickRate)
	}

	// json config
	{
		json := write(t, dir, "config.json", `{
  "server": {
    "mode": "owner",
    "ingress": {
      "enet": {
        "enabled": true
      }
    }
  }
}`)
		config, err := Process([]string{json})
		require.NoError(t, err)
		assert.Equal(t, authority.Owner, config.Server.AuthorityMode())
		assert.True(t, config.Server.Ingress.ENet.Enabled)
	}

	// multiple yaml
	{
		yaml1 := write(t, dir, "config1.yaml", `
movement:
  maxMoveSpeed: 7
  jumpCurve:
    - time: 0
      value: 10
    - time: 0.5
      value: 0
`)
		yaml2 := write(t, dir, "config2.yaml", `
gate:
  multipliers:
    panda: 0.5
`)
		config, err := Process([]string{yaml1, yaml2})
		require.NoError(t, err)

		movement := config.Movement.Build()
		assert.Equal(t, 7.0, movement.MaxMoveSpeed)
		assert.Equal(t, game.Curve{{Time: 0, Value: 10}, {Time: 0.5, Value: 0}}, movement.JumpCurve)
		assert.Equal(t, 0.5, config.Gate.Build().Multipliers[mask.Panda])
		assert.Equal(t, 1.5, config.Gate.Build().Multipliers[mask.Dear])
	}

	// Invalid config
	{
		bad := write(t, dir, "bad.yaml", `
server:
  mode: everyone
`)
		_, err := Process([]string{bad})
		assert.Error(t, err)

		_, err = Process([]string{filepath.Join(dir, "missing.yaml")})
		assert.Error(t, err)

		_, err = Process([]string{write(t, dir, "config.toml", "")})
		assert.Error(t, err)
	}
}

func TestEffective(t *testing.T) {
	yaml := write(t, t.TempDir(), "config.yaml", `
replication:
  heartbeat: 2
`)
	out, err := Effective([]string{yaml})
	require.NoError(t, err)
	assert.Contains(t, string(out), "heartbeat: 2")
	assert.Contains(t, string(out), "tickRate: 50")
}

func TestErrorsNameTheFile(t *testing.T) {
	dir := t.TempDir()
	good := write(t, dir, "good.yaml", `
server:
  tickRate: 30
`)
	bad := write(t, dir, "bad.json", `{"server": {"mode": "everyone"}}`)
	broken := write(t, dir, "broken.yaml", "server: [")

	_, err := Process([]string{good, bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)

	_, err = Process([]string{broken})
	require.Error(t, err)
	assert.Contains(t, err.Error(), broken)

	_, err = Effective([]string{filepath.Join(dir, "missing.yml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.yml")

	// Files unify, so two of them cannot set different values.
	override := write(t, dir, "override.yml", `
server:
  tickRate: 60
`)
	config, err := Process([]string{good, override})
	require.Error(t, err)
	assert.Nil(t, config)
	assert.Contains(t, err.Error(), override)
}

package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {
	topics := Topics{prefix: "unii"}
	require.Equal(t, "unii/status", topics.Status())
	require.Equal(t, "unii/section/ground_floor", topics.Section("Ground Floor"))
	require.Equal(t, "unii/section/ground_floor/command", topics.SectionCommand("Ground Floor"))
	require.Equal(t, "unii/input/pir_23", topics.Input("PIR #23"))
}

func TestSlugify(t *testing.T) {
	require.Equal(t, "front_door", slugify("Front Door"))
	require.Equal(t, "attic_west", slugify("  Attic/West "))
	require.Equal(t, "zone_9", slugify("Zone 9!"))
}

func TestLoadConfigDefaults(t *testing.T) {
	path := t.TempDir() + "/config.yml"
	require.NoError(t, os.WriteFile(path, []byte(`
panel:
  host: 10.0.0.9
  shared_key: secret
mqtt:
  username: u
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "25301", cfg.Panel.Port)
	require.Equal(t, "unii-mqtt", cfg.MQTT.ClientID)
	require.Equal(t, "localhost", cfg.MQTT.Host)
	require.Equal(t, 1883, cfg.MQTT.Port)
	require.Equal(t, "unii", cfg.MQTT.Prefix)
}

func TestLoadConfigMissingHost(t *testing.T) {
	path := t.TempDir() + "/config.yml"
	require.NoError(t, os.WriteFile(path, []byte("panel:\n  shared_key: secret\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPrinter() ConnectionConfig {
	return ConnectionConfig{
		Name:           "bench-k1",
		IPAddress:      "192.168.1.50",
		ProxyEnabled:   true,
		ProxyWSPort:    3031,
		ProxyVideoPort: 3032,
		AccessCode:     "123456",
	}
}

func TestConnectionConfig_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validPrinter().Validate())
	})

	t.Run("missing name", func(t *testing.T) {
		p := validPrinter()
		p.Name = ""
		assert.Error(t, p.Validate())
	})

	t.Run("missing ip", func(t *testing.T) {
		p := validPrinter()
		p.IPAddress = ""
		assert.Error(t, p.Validate())
	})

	t.Run("invalid ip", func(t *testing.T) {
		p := validPrinter()
		p.IPAddress = "not-an-ip"
		assert.Error(t, p.Validate())
	})

	t.Run("proxy enabled without ports", func(t *testing.T) {
		p := validPrinter()
		p.ProxyWSPort = 0
		assert.Error(t, p.Validate())
	})

	t.Run("proxy enabled with identical ports", func(t *testing.T) {
		p := validPrinter()
		p.ProxyVideoPort = p.ProxyWSPort
		assert.Error(t, p.Validate())
	})

	t.Run("proxy disabled tolerates zero ports", func(t *testing.T) {
		p := validPrinter()
		p.ProxyEnabled = false
		p.ProxyWSPort = 0
		p.ProxyVideoPort = 0
		assert.NoError(t, p.Validate())
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("empty config is valid", func(t *testing.T) {
		cfg := Config{}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("bad log level rejected", func(t *testing.T) {
		cfg := Config{LogLevel: "verbose"}
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative discovery timeout rejected", func(t *testing.T) {
		cfg := Config{DiscoveryTimeout: -1}
		assert.Error(t, cfg.Validate())
	})

	t.Run("duplicate printer names rejected", func(t *testing.T) {
		p := validPrinter()
		cfg := Config{Printers: []ConnectionConfig{p, p}}
		assert.Error(t, cfg.Validate())
	})

	t.Run("distinct printers accepted", func(t *testing.T) {
		p1 := validPrinter()
		p2 := validPrinter()
		p2.Name = "bench-k2"
		p2.IPAddress = "192.168.1.51"
		cfg := Config{Printers: []ConnectionConfig{p1, p2}}
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfig_Clone(t *testing.T) {
	original := &Config{
		LogLevel: "debug",
		Printers: []ConnectionConfig{validPrinter()},
	}

	clone := original.Clone()
	require.Len(t, clone.Printers, 1)

	// Mutating the clone must not affect the original.
	clone.Printers[0].Name = "mutated"
	assert.Equal(t, "bench-k1", original.Printers[0].Name)
}

func TestLoadFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/printers.yaml"

	original := &Config{
		LogLevel:         "debug",
		DiscoveryTimeout: 10,
		Printers:         []ConnectionConfig{validPrinter()},
	}

	require.NoError(t, original.SaveToFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, original.LogLevel, loaded.LogLevel)
	assert.Equal(t, original.DiscoveryTimeout, loaded.DiscoveryTimeout)
	require.Len(t, loaded.Printers, 1)
	assert.Equal(t, original.Printers[0].IPAddress, loaded.Printers[0].IPAddress)
}

func TestLoadFile_RejectsInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.yaml"

	bad := &Config{LogLevel: "nonsense"}
	require.NoError(t, bad.SaveToFile(path))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFile_RejectsNonYAMLExtension(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/printers.json"

	require.NoError(t, (&Config{}).SaveToFile(dir+"/printers.yaml"))
	_, err := LoadFile(path)
	assert.Error(t, err)
}

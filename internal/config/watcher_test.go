package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcherRequiresValidInitialLoad(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "tuning.json", `{"conf_high": 0.2, "conf_low": 0.5}`)
	_, err := NewWatcher(path)
	assert.Error(t, err, "daemon must not start on broken tuning")
}

func TestWatcherReload(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "tuning.json", `{"conf_high": 0.7}`)
	w, err := NewWatcher(path)
	require.NoError(t, err)
	assert.Equal(t, 0.7, w.Current().GetConfHigh())

	updates := make(chan *TuningConfig, 4)
	w.OnChange(func(cfg *TuningConfig) { updates <- cfg })
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte(`{"conf_high": 0.8}`), 0o644))

	select {
	case cfg := <-updates:
		assert.Equal(t, 0.8, cfg.GetConfHigh())
		assert.Equal(t, 0.8, w.Current().GetConfHigh())
	case <-time.After(5 * time.Second):
		t.Fatal("no reload callback after config write")
	}
}

func TestWatcherKeepsLastGoodOnBadReload(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "tuning.json", `{"conf_high": 0.7}`)
	w, err := NewWatcher(path)
	require.NoError(t, err)

	updates := make(chan *TuningConfig, 4)
	w.OnChange(func(cfg *TuningConfig) { updates <- cfg })
	require.NoError(t, w.Start())
	defer w.Stop()

	// Broken write: rejected, last good config stays live, no callback.
	require.NoError(t, os.WriteFile(path, []byte(`{"conf_high": `), 0o644))

	select {
	case <-updates:
		t.Fatal("broken config must not reach callbacks")
	case <-time.After(500 * time.Millisecond):
	}
	assert.Equal(t, 0.7, w.Current().GetConfHigh())

	// Recovery write flows through normally.
	require.NoError(t, os.WriteFile(path, []byte(`{"conf_high": 0.9}`), 0o644))
	select {
	case cfg := <-updates:
		assert.Equal(t, 0.9, cfg.GetConfHigh())
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after recovery write")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"conf_high": 0.7}`), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)

	updates := make(chan *TuningConfig, 4)
	w.OnChange(func(cfg *TuningConfig) { updates <- cfg })
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte(`{}`), 0o644))

	select {
	case <-updates:
		t.Fatal("write to a sibling file must not trigger a reload")
	case <-time.After(500 * time.Millisecond):
	}
}

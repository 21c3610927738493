package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  addr: ":8080"
resilience:
  driver: window
  default:
    failure_rate_threshold: 50
    sliding_window_size: 10
  kinds:
    dataWarehouse:
      per_attempt_timeout: 45s
`

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNew_Defaults(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	impl := l.(*loader)
	assert.Equal(t, "config", impl.cfg.Name)
	assert.Equal(t, "yaml", impl.cfg.FileType)
	assert.Equal(t, "DEALFLOW", impl.cfg.EnvPrefix)
}

func TestLoad_FileAndUnmarshalKey(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dealflow.yaml", sampleYAML)

	l, err := New(&Config{Name: "dealflow", Paths: []string{dir}}, WithoutWatch())
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))

	assert.Equal(t, ":8080", l.Get("server.addr"))

	var res struct {
		Driver  string `mapstructure:"driver"`
		Default struct {
			Threshold float64 `mapstructure:"failure_rate_threshold"`
			Window    int     `mapstructure:"sliding_window_size"`
		} `mapstructure:"default"`
		Kinds map[string]struct {
			Timeout time.Duration `mapstructure:"per_attempt_timeout"`
		} `mapstructure:"kinds"`
	}
	require.NoError(t, l.UnmarshalKey("resilience", &res))
	assert.Equal(t, "window", res.Driver)
	assert.Equal(t, 50.0, res.Default.Threshold)
	assert.Equal(t, 10, res.Default.Window)
	assert.Equal(t, 45*time.Second, res.Kinds["datawarehouse"].Timeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dealflow.yaml", sampleYAML)
	t.Setenv("DFTEST_SERVER_ADDR", ":9999")

	l, err := New(&Config{Name: "dealflow", Paths: []string{dir}, EnvPrefix: "dftest"}, WithoutWatch())
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))

	assert.Equal(t, ":9999", l.Get("server.addr"))
}

func TestLoad_EnvironmentSpecificMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dealflow.yaml", sampleYAML)
	writeConfig(t, dir, "dealflow.prod.yaml", "server:\n  addr: \":443\"\n")
	t.Setenv("DFPROD_ENV", "prod")

	l, err := New(&Config{Name: "dealflow", Paths: []string{dir}, EnvPrefix: "DFPROD"}, WithoutWatch())
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))

	assert.Equal(t, ":443", l.Get("server.addr"))
	assert.Equal(t, "window", l.Get("resilience.driver"))
}

func TestLoad_DefaultsOnlyIsValid(t *testing.T) {
	l, err := New(&Config{Name: "missing", Paths: []string{t.TempDir()}},
		WithDefaults(map[string]any{"server.addr": ":8080"}), WithoutWatch())
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))
	assert.Equal(t, ":8080", l.Get("server.addr"))
}

func TestLoad_EmptyConfigFails(t *testing.T) {
	l, err := New(&Config{Name: "missing", Paths: []string{t.TempDir()}}, WithoutWatch())
	require.NoError(t, err)
	err = l.Load(context.Background())
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))
}

func TestWatch_NotifiesOnChangeAndClosesOnCancel(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "dealflow.yaml", sampleYAML)

	l, err := New(&Config{Name: "dealflow", Paths: []string{dir}}, WithoutWatch())
	require.NoError(t, err)
	require.NoError(t, l.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := l.Watch(ctx, "server.addr")
	require.NoError(t, err)

	impl := l.(*loader)
	impl.notify("test")
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event for unchanged value: %+v", ev)
	default:
	}

	impl.v.Set("server.addr", ":7070")
	impl.notify("test")

	select {
	case ev := <-ch:
		assert.Equal(t, "server.addr", ev.Key)
		assert.Equal(t, ":7070", ev.Value)
		assert.Equal(t, ":8080", ev.OldValue)
	case <-time.After(time.Second):
		t.Fatal("expected change event")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestWatch_EmptyKey(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	_, err = l.Watch(context.Background(), "")
	assert.True(t, IsInvalidInput(err))
}

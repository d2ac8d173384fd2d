package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxnlabs/gpublas/fixtures"
	"github.com/fxnlabs/gpublas/internal/config"
	"github.com/fxnlabs/gpublas/pkg/gpublas"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newCLIApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"gpublas"}, args...))
	return out.String(), err
}

func TestRuntimeModule(t *testing.T) {
	cfg := config.Default()
	cfg.Device.MemoryBytes = 1 << 24
	cfg.Metrics.ListenAddress = "127.0.0.1:0"

	var handle *gpublas.Handle
	app := fxtest.New(t,
		fx.Supply(cfg, zap.NewNop()),
		runtimeModule,
		fx.Populate(&handle),
	)
	app.RequireStart()

	x := []float32{1, 2}
	y := []float32{3, 4}
	require.NoError(t, handle.Srot(context.Background(), 2, x, 1, y, 1, 0, 1))
	assert.Equal(t, []float32{3, 4}, x)
	assert.Equal(t, []float32{-1, -2}, y)

	app.RequireStop()
	assert.Nil(t, handle.Manager())
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := runCLI(t, "--config", path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fixtures.ConfigTemplate, data)

	_, err = runCLI(t, "--config", path, "init")
	assert.ErrorContains(t, err, "already exists")
	_, err = runCLI(t, "--config", path, "init", "--force")
	assert.NoError(t, err)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config.BackendAuto, cfg.Device.Backend)
}

func TestInvalidConfig(t *testing.T) {
	_, err := runCLI(t, "--config", "../../fixtures/tests/invalid_config/config.yaml", "variants")
	assert.Error(t, err)
}

func TestVariantsCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "missing.yaml")
	out, err := runCLI(t, "--config", cfgPath, "variants")
	require.NoError(t, err)
	assert.Contains(t, out, "Ssyr_early_return_simd16x1x1_upper")
	assert.Contains(t, out, "Csrot_chunked")
	assert.Equal(t, 8, strings.Count(out, "\n"))

	out, err = runCLI(t, "--config", cfgPath, "variants", "--json")
	require.NoError(t, err)
	var variants []variantInfo
	require.NoError(t, json.Unmarshal([]byte(out), &variants))
	require.Len(t, variants, 8)
	assert.Equal(t, variantInfo{"ssyr", "Ssyr_naive_simd64", "Ssyr_naive_simd64", "Ssyr_naive_simd64"}, variants[2])
}

func TestSelectCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "missing.yaml")

	out, err := runCLI(t, "--config", cfgPath, "select", "--op", "csrot", "--n", "65536", "--incx", "2", "--incy", "3", "--json")
	require.NoError(t, err)
	var s struct {
		Operation  string `json:"operation"`
		Selected   string `json:"selected"`
		Candidates []struct {
			Variant    string `json:"Variant"`
			Applicable bool   `json:"Applicable"`
		} `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "csrot", s.Operation)
	assert.Equal(t, "Csrot_chunked", s.Selected)
	require.Len(t, s.Candidates, 3)
	assert.False(t, s.Candidates[0].Applicable)

	out, err = runCLI(t, "--config", cfgPath, "select", "--op", "ssyr", "--uplo", "lower", "--n", "32")
	require.NoError(t, err)
	assert.Contains(t, out, "* Ssyr_early_return_simd16x1x1_lower")

	_, err = runCLI(t, "--config", cfgPath, "select", "--op", "sgemm")
	assert.ErrorContains(t, err, `unknown operation "sgemm"`)
	_, err = runCLI(t, "--config", cfgPath, "select", "--op", "ssyr", "--uplo", "diagonal")
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "missing.yaml")

	for _, args := range [][]string{
		{"--op", "csrot", "--n", "1000", "--incx", "2", "--incy", "3"},
		{"--op", "srot", "--n", "5000", "--repeat", "3"},
		{"--op", "ssyr", "--n", "40", "--uplo", "lower", "--lda", "45", "--incx", "2", "--repeat", "2"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			out, err := runCLI(t, append([]string{"--config", cfgPath, "run", "--json"}, args...)...)
			require.NoError(t, err)

			var res runResult
			require.NoError(t, json.Unmarshal([]byte(out), &res))
			assert.Equal(t, "SUCCESS", res.Status)
			assert.NotEmpty(t, res.Variant)
			assert.LessOrEqual(t, res.MaxAbsError, 1e-3)
		})
	}

	_, err := runCLI(t, "--config", cfgPath, "run", "--op", "srot", "--n", "-1")
	assert.Error(t, err)
}

func TestInfoCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "missing.yaml")

	out, err := runCLI(t, "--config", cfgPath, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend:        host")

	out, err = runCLI(t, "--config", cfgPath, "info", "--json")
	require.NoError(t, err)
	var info struct {
		Backend string `json:"backend"`
		Device  struct {
			Name string `json:"name"`
		} `json:"device"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "host", info.Backend)
	assert.NotEmpty(t, info.Device.Name)
}

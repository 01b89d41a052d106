package diag_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/smartinfra/internal/diag"
	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGPUs struct {
	stats []gpu.Stats
	err   error
}

func (f fakeGPUs) Stats() ([]gpu.Stats, error) { return f.stats, f.err }
func (fakeGPUs) Shutdown() error               { return nil }

func TestSelfTestPasses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	var out bytes.Buffer

	require.NoError(t, diag.SelfTest(context.Background(), &out, diag.DefaultChecks(dir)))

	assert.Contains(t, out.String(), "SQLite driver available")
	assert.Contains(t, out.String(), "File system operations successful")
	assert.Contains(t, out.String(), "Network binding successful (test port: ")
	assert.Contains(t, out.String(), "All basic functionality tests passed!")

	assert.DirExists(t, dir)
	assert.NoFileExists(t, filepath.Join(dir, "test.json"))
}

func TestSelfTestStopsAtFirstFailure(t *testing.T) {
	var ran []string
	check := func(name string, err error) diag.Check {
		return diag.Check{Name: name, Run: func(context.Context) (string, error) {
			ran = append(ran, name)
			return name + " ok", err
		}}
	}

	var out bytes.Buffer
	err := diag.SelfTest(context.Background(), &out, []diag.Check{
		check("first", nil),
		check("second", fmt.Errorf("disk full")),
		check("third", nil),
	})

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrSelfTestFailed))
	assert.Contains(t, err.Error(), "second check failed: disk full")
	assert.Equal(t, []string{"first", "second"}, ran)
	assert.Contains(t, out.String(), "❌ second: disk full")
	assert.NotContains(t, out.String(), "All basic functionality tests passed!")
}

func TestCheckFilesystemFailure(t *testing.T) {
	// A regular file where the directory should be.
	path := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := diag.CheckFilesystem(path)
	assert.Error(t, err)
}

func TestBenchmark(t *testing.T) {
	var out bytes.Buffer
	res := diag.Benchmark(&out, fakeGPUs{stats: []gpu.Stats{{Index: 0, Name: "L4", Temperature: 51, GPUUtilization: 12}}})

	assert.Equal(t, int64(333328333350000), res.CPUResult)
	assert.Equal(t, 10000, res.MemoryItems)
	assert.Positive(t, res.MemoryBytes)
	assert.Len(t, res.GPUs, 1)
	assert.Contains(t, out.String(), "result: 333328333350000")
	assert.Contains(t, out.String(), "✅ GPU 0: L4, 51°C, 12.0% util")
	assert.Contains(t, out.String(), "Quick benchmark completed!")
}

func TestBenchmarkWithoutGPU(t *testing.T) {
	var out bytes.Buffer
	res := diag.Benchmark(&out, nil)
	assert.Empty(t, res.GPUs)
	assert.Contains(t, out.String(), "skipping GPU benchmark")

	out.Reset()
	diag.Benchmark(&out, fakeGPUs{})
	assert.Contains(t, out.String(), "No GPUs detected")
}

func TestInfo(t *testing.T) {
	dir := t.TempDir()
	info := diag.CollectInfo(diag.Environment{
		DataDir: dir,
		GPUErr:  fmt.Errorf("NVML library not found"),
	})

	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.Platform)
	require.Len(t, info.Components, 4)

	byName := map[string]diag.Component{}
	for _, c := range info.Components {
		byName[c.Name] = c
	}
	assert.False(t, byName["nvml"].OK)
	assert.True(t, byName["sqlite"].OK)
	assert.False(t, byName["mqtt"].OK)
	assert.True(t, byName["data directory"].OK)

	var out bytes.Buffer
	info.Print(&out)
	assert.Contains(t, out.String(), "Working Directory:")
	assert.Contains(t, out.String(), "❌ nvml: NVML library not found")
	assert.Contains(t, out.String(), "✅ data directory: "+dir)
}

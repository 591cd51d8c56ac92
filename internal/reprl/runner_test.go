package reprl_test

import (
	"context"
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ilfuzz/internal/execution"
	"ilfuzz/internal/reprl"
)

// TestMain lets this test binary double as its own REPRL child fixture:
// when invoked with GO_WANT_HELPER_PROCESS=1 it behaves as the
// protocol's child side instead of running the test suite, the
// standard pattern for faking an exec.Command target without a
// separate compiled helper binary. Otherwise it runs under goleak to
// catch Runner goroutines (pipe readers, wait-loops) that outlive a
// test's Shutdown call.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		runHelperChild()
		os.Exit(0)
	}
	goleak.VerifyTestMain(m)
}

// runHelperChild echoes a fixed status word after reading one request,
// matching spec.md §9's determinism fixture: status 0x00000100 decodes
// to didExit|exitCode=1.
func runHelperChild() {
	ctrlRead := os.NewFile(3, "ctrlRead")
	ctrlWrite := os.NewFile(4, "ctrlWrite")
	dataRead := os.NewFile(5, "dataRead")
	fuzzWrite := os.NewFile(6, "fuzzWrite")

	token := make([]byte, 4)
	if _, err := ctrlRead.Read(token); err != nil {
		return
	}
	lenBuf := make([]byte, 8)
	if _, err := ctrlRead.Read(lenBuf); err != nil {
		return
	}
	n := binary.LittleEndian.Uint64(lenBuf)
	script := make([]byte, n)
	total := 0
	for uint64(total) < n {
		k, err := dataRead.Read(script[total:])
		if err != nil {
			break
		}
		total += k
	}

	var status uint32 = 0x00000100 // exitCode=1 (bits 8-15); signal bits clear, so didExit
	statusBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(statusBuf, status)
	_, _ = ctrlWrite.Write(statusBuf)
	_, _ = fuzzWrite.Write([]byte("fuzzout-data\x00"))
}

func helperRunner(t *testing.T) *reprl.Runner {
	t.Helper()
	return reprl.New(reprl.Options{
		BinaryPath: os.Args[0],
		Args:       []string{"-test.run=^TestHelperProcessEntry$", "-test.v=false"},
		Env: append(os.Environ(),
			"GO_WANT_HELPER_PROCESS=1",
		),
	})
}

// TestHelperProcessEntry exists purely so -test.run matches something;
// TestMain intercepts execution before any real test runs.
func TestHelperProcessEntry(t *testing.T) {}

func TestRunnerRoundTripsFixedStatusWord(t *testing.T) {
	r := helperRunner(t)
	ctx := context.Background()
	require.NoError(t, r.Initialize(ctx))
	defer r.Shutdown()

	result, err := r.Run(ctx, "1+1;", time.Second)
	require.NoError(t, err)
	assert.Equal(t, execution.Failed, result.Outcome)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "fuzzout-data", result.Fuzzout)
}

func TestRunnerRejectsOversizedScript(t *testing.T) {
	r := reprl.New(reprl.Options{
		BinaryPath:  os.Args[0],
		Args:        []string{"-test.run=^TestHelperProcessEntry$"},
		Env:         append(os.Environ(), "GO_WANT_HELPER_PROCESS=1"),
		MaxDataSize: 4,
	})
	ctx := context.Background()
	require.NoError(t, r.Initialize(ctx))
	defer r.Shutdown()

	result, err := r.Run(ctx, "this script is longer than four bytes", time.Second)
	require.NoError(t, err)
	assert.Equal(t, execution.TimedOut, result.Outcome)
}

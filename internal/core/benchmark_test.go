package core

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"github.com/3cpo-dev/ahctl/pkg/api"
)

func manyTargets(n int) []api.Target {
	out := make([]api.Target, n)
	for i := range out {
		out[i] = api.Target{ID: fmt.Sprint(i), Name: fmt.Sprintf("target-%d", i)}
	}
	return out
}

func BenchmarkResolveTargets(b *testing.B) {
	all := manyTargets(500)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, _ = ResolveTargets(all, "target-499")
	}
}

func BenchmarkAggregate(b *testing.B) {
	results := make([]api.SyncResult, 200)
	for i := range results {
		results[i] = api.SyncResult{TargetID: fmt.Sprint(i), Success: i%7 != 0, Error: "boom"}
	}
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		r := Aggregate(results)
		_ = r.WriteDiagnostics(io.Discard)
	}
}

func BenchmarkOperationRun(b *testing.B) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.Disabled)
	defer zerolog.SetGlobalLevel(prev)

	backend := &mockBackend{}
	clock := newRecordingClock()
	target := api.Target{ID: "1", Name: "a"}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		NewOperation(target, backend, testPolicy(), WithClock(clock)).Run(context.Background())
	}
}

func BenchmarkParallelCoordinator(b *testing.B) {
	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.Disabled)
	defer zerolog.SetGlobalLevel(prev)

	backend := &mockBackend{}
	clock := newRecordingClock()
	ts := manyTargets(50)
	c := &Coordinator{
		Mode:        ModeParallel,
		MaxParallel: 8,
		Clock:       clock,
		NewOperation: func(t api.Target) *Operation {
			return NewOperation(t, backend, testPolicy(), WithClock(clock))
		},
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = c.Run(context.Background(), ts)
	}
}

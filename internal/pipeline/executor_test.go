package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/omnirelay/omnirelay/internal/pipeline"
	"github.com/omnirelay/omnirelay/internal/protocol"
)

func step(name string, fn func(mc *protocol.MessageContext) (protocol.PipelineResult, error)) pipeline.Step {
	return pipeline.StepFunc{
		StepName: name,
		Fn: func(_ context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			return fn(mc)
		},
	}
}

func newContext() *protocol.MessageContext {
	return protocol.NewMessageContext(protocol.TypedMessage{}, "t1", "p1", "th1", "ev1")
}

func TestExecute_RunsStepsInOrder(t *testing.T) {
	t.Parallel()

	var order []string
	p := pipeline.Pipeline{Steps: []pipeline.Step{
		step("a", func(mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			order = append(order, "a")
			return protocol.Continue(mc), nil
		}),
		step("b", func(mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			order = append(order, "b")
			return protocol.Continue(mc), nil
		}),
	}}

	mc := newContext()
	result := pipeline.NewExecutor(nil).Execute(context.Background(), p, mc)
	if !result.ShouldContinue {
		t.Fatalf("result = %+v", result)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v", order)
	}
	if len(mc.History) != 2 {
		t.Fatalf("history = %d entries", len(mc.History))
	}
	for _, exec := range mc.History {
		if exec.Outcome != protocol.OutcomeContinued {
			t.Fatalf("outcome = %s", exec.Outcome)
		}
	}
}

func TestExecute_StopShortCircuits(t *testing.T) {
	t.Parallel()

	ran := map[string]bool{}
	mk := func(name string, stop bool) pipeline.Step {
		return step(name, func(mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			ran[name] = true
			if stop {
				return protocol.Stop(mc, "buffered"), nil
			}
			return protocol.Continue(mc), nil
		})
	}
	p := pipeline.Pipeline{Steps: []pipeline.Step{mk("a", false), mk("b", true), mk("c", false)}}

	mc := newContext()
	result := pipeline.NewExecutor(nil).Execute(context.Background(), p, mc)
	if result.ShouldContinue {
		t.Fatal("want stop result")
	}
	if result.StopReason != "buffered" {
		t.Fatalf("stop reason = %q", result.StopReason)
	}
	if ran["c"] {
		t.Fatal("step after stop must not run")
	}
	if len(mc.History) != 2 {
		t.Fatalf("history = %d entries, want 2 (a continued, b stopped)", len(mc.History))
	}
	if mc.History[1].Outcome != protocol.OutcomeStopped {
		t.Fatalf("outcome = %s", mc.History[1].Outcome)
	}
}

func TestExecute_StepErrorBecomesFailureStop(t *testing.T) {
	t.Parallel()

	p := pipeline.Pipeline{Steps: []pipeline.Step{
		step("boom", func(mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			return protocol.PipelineResult{}, errors.New("db down")
		}),
	}}

	mc := newContext()
	result := pipeline.NewExecutor(nil).Execute(context.Background(), p, mc)
	if result.ShouldContinue {
		t.Fatal("want failure stop")
	}
	if result.StopReason != "step boom failed: db down" {
		t.Fatalf("stop reason = %q", result.StopReason)
	}
	if mc.History[0].Outcome != protocol.OutcomeFailed {
		t.Fatalf("outcome = %s", mc.History[0].Outcome)
	}
}

func TestExecute_PanicIsContained(t *testing.T) {
	t.Parallel()

	p := pipeline.Pipeline{Steps: []pipeline.Step{
		step("panics", func(mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			panic("unexpected")
		}),
	}}

	mc := newContext()
	result := pipeline.NewExecutor(nil).Execute(context.Background(), p, mc)
	if result.ShouldContinue {
		t.Fatal("want failure stop")
	}
	if mc.History[0].Outcome != protocol.OutcomeFailed {
		t.Fatalf("outcome = %s", mc.History[0].Outcome)
	}
}

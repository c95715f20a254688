package callapi

import (
	"errors"
	"testing"
)

type namedPlugin struct {
	name  string
	hooks Hooks
}

func (p *namedPlugin) Name() string { return p.name }
func (p *namedPlugin) Hooks() Hooks { return p.hooks }

func TestHooksAppend(t *testing.T) {
	var order []string
	record := func(tag string) Hook {
		return func(hctx *HookContext) error {
			order = append(order, tag)
			return nil
		}
	}

	merged := Hooks{OnRequest: []Hook{record("a")}}.append(Hooks{OnRequest: []Hook{record("b")}})
	c := New()
	c.runStage(StageRequest, merged.OnRequest, &HookContext{})

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v, want [a b]", order)
	}
}

func TestMergeHooksOrder(t *testing.T) {
	var order []string
	record := func(tag string) Hook {
		return func(hctx *HookContext) error {
			order = append(order, tag)
			return nil
		}
	}

	plugins := []Plugin{
		&namedPlugin{name: "p1", hooks: Hooks{OnRequest: []Hook{record("plugin1")}}},
		&namedPlugin{name: "p2", hooks: Hooks{OnRequest: []Hook{record("plugin2")}}},
	}
	clientHooks := Hooks{OnRequest: []Hook{record("client")}}
	callHooks := Hooks{OnRequest: []Hook{record("call")}}

	merged := mergeHooks(plugins, clientHooks, callHooks)
	c := New()
	c.runStage(StageRequest, merged.OnRequest, &HookContext{})

	want := []string{"plugin1", "plugin2", "client", "call"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRunStageShortCircuitsOnError(t *testing.T) {
	c := New()
	ran := false

	hooks := []Hook{
		func(hctx *HookContext) error { return errors.New("boom") },
		func(hctx *HookContext) error { ran = true; return nil },
	}

	hookErr := c.runStage(StageRequest, hooks, &HookContext{})
	if hookErr == nil {
		t.Fatal("stage should fail")
	}
	if hookErr.Type != ErrorTypeHook {
		t.Errorf("type = %q, want Hook", hookErr.Type)
	}
	if ran {
		t.Error("later hooks should not run after a failure")
	}
}

func TestRunStagePreservesClassifiedError(t *testing.T) {
	c := New()
	want := &Error{Type: ErrorTypeRateLimit, Message: "rate limit exceeded"}

	hookErr := c.runStage(StageRequest, []Hook{
		func(hctx *HookContext) error { return want },
	}, &HookContext{})

	if hookErr != want {
		t.Errorf("classified error should pass through unchanged, got %+v", hookErr)
	}
}

func TestRunCompleteRunsAll(t *testing.T) {
	c := New()
	count := 0

	hooks := []Hook{
		func(hctx *HookContext) error { count++; return errors.New("ignored") },
		func(hctx *HookContext) error { count++; return nil },
		func(hctx *HookContext) error { count++; return errors.New("also ignored") },
	}
	c.runComplete(hooks, &HookContext{})

	if count != 3 {
		t.Errorf("ran %d complete hooks, want 3", count)
	}
}

func TestHookContextValues(t *testing.T) {
	hctx := &HookContext{}
	if hctx.Value("missing") != nil {
		t.Error("missing key should return nil")
	}
	hctx.Set("k", 42)
	if hctx.Value("k") != 42 {
		t.Error("stored value should round-trip")
	}
	hctx.Set("k", nil)
	if hctx.Value("k") != nil {
		t.Error("overwriting with nil should clear the value")
	}
}

package graph

import (
	"testing"

	"github.com/phobologic/repoctx/internal/model"
)

func sym(name, file string, calls ...string) model.Symbol {
	if calls == nil {
		calls = []string{}
	}
	return model.Symbol{Kind: model.Function, Name: name, File: file, RawCalls: calls}
}

func find(t *testing.T, syms []model.Symbol, name, file string) model.Symbol {
	t.Helper()
	for _, s := range syms {
		if s.Name == name && s.File == file {
			return s
		}
	}
	t.Fatalf("symbol %s in %s not found", name, file)
	return model.Symbol{}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestResolveHelperAndMain(t *testing.T) {
	t.Parallel()

	syms := []model.Symbol{
		sym("helper", "a.py"),
		sym("main", "a.py", "helper"),
	}
	Resolve(syms)

	main := find(t, syms, "main", "a.py")
	if !equal(main.InternalCalls, []string{"helper"}) {
		t.Errorf("main.InternalCalls = %v", main.InternalCalls)
	}
	helper := find(t, syms, "helper", "a.py")
	if !equal(helper.CalledBy, []string{"main"}) {
		t.Errorf("helper.CalledBy = %v", helper.CalledBy)
	}
	if helper.ExternalCalls == nil || len(helper.ExternalCalls) != 0 {
		t.Errorf("helper.ExternalCalls = %#v, want empty non-nil", helper.ExternalCalls)
	}
}

func TestResolvePartition(t *testing.T) {
	t.Parallel()

	syms := []model.Symbol{
		sym("a", "x.py", "b", "len", "print"),
		sym("b", "y.rs", "a", "c", "unwrap"),
		sym("c", "y.rs"),
	}
	Resolve(syms)

	for _, s := range syms {
		union := map[string]int{}
		for _, c := range s.InternalCalls {
			union[c]++
		}
		for _, c := range s.ExternalCalls {
			union[c]++
		}
		if len(union) != len(s.RawCalls) {
			t.Errorf("%s: union %v != raw %v", s.Name, union, s.RawCalls)
		}
		for _, c := range s.RawCalls {
			if union[c] != 1 {
				t.Errorf("%s: call %q appears %d times across partitions", s.Name, c, union[c])
			}
		}
	}

	a := find(t, syms, "a", "x.py")
	if !equal(a.ExternalCalls, []string{"len", "print"}) {
		t.Errorf("a.ExternalCalls = %v", a.ExternalCalls)
	}
}

func TestResolveSymmetry(t *testing.T) {
	t.Parallel()

	syms := []model.Symbol{
		sym("a", "x.py", "b", "c"),
		sym("b", "y.py", "c"),
		sym("c", "z.py", "a"),
		sym("d", "z.py"),
	}
	Resolve(syms)

	for _, s := range syms {
		for _, tt := range syms {
			calls := contains(tt.InternalCalls, s.Name)
			called := contains(s.CalledBy, tt.Name)
			if calls != called {
				t.Errorf("%s→%s: internal=%v called_by=%v", tt.Name, s.Name, calls, called)
			}
		}
	}
	if c := find(t, syms, "c", "z.py"); !equal(c.CalledBy, []string{"a", "b"}) {
		t.Errorf("c.CalledBy = %v", c.CalledBy)
	}
}

func TestResolveNameCollisionIsInternal(t *testing.T) {
	t.Parallel()

	// "parse" is an unrelated function in another file, yet any call named
	// parse resolves internal.
	syms := []model.Symbol{
		sym("load", "a.py", "parse"),
		sym("parse", "lib/json.rs"),
		sym("parse", "b.go"),
	}
	Resolve(syms)

	load := find(t, syms, "load", "a.py")
	if !equal(load.InternalCalls, []string{"parse"}) {
		t.Errorf("load.InternalCalls = %v", load.InternalCalls)
	}
	for _, file := range []string{"lib/json.rs", "b.go"} {
		if p := find(t, syms, "parse", file); !equal(p.CalledBy, []string{"load"}) {
			t.Errorf("parse(%s).CalledBy = %v", file, p.CalledBy)
		}
	}
}

func TestResolveRecomputesFromScratch(t *testing.T) {
	t.Parallel()

	syms := []model.Symbol{sym("main", "a.py", "helper"), sym("helper", "b.py")}
	Resolve(syms)

	// helper's file is removed: main's call flips to external.
	syms = syms[:1]
	Resolve(syms)
	if !equal(syms[0].ExternalCalls, []string{"helper"}) || len(syms[0].InternalCalls) != 0 {
		t.Errorf("after removal: internal=%v external=%v", syms[0].InternalCalls, syms[0].ExternalCalls)
	}
}

func TestResolveRecursionAndDuplicateCallers(t *testing.T) {
	t.Parallel()

	syms := []model.Symbol{
		sym("walk", "a.py", "walk"),
		sym("run", "a.py", "walk"),
		sym("run", "b.py", "walk"),
	}
	Resolve(syms)

	w := find(t, syms, "walk", "a.py")
	if !equal(w.CalledBy, []string{"run", "walk"}) {
		t.Errorf("walk.CalledBy = %v", w.CalledBy)
	}
}

func TestFileDependencies(t *testing.T) {
	t.Parallel()

	idx := &model.Index{Symbols: []model.Symbol{
		sym("main", "a.py", "helper", "local", "print"),
		sym("local", "a.py"),
		sym("helper", "b.py"),
		sym("util", "c.py", "helper"),
	}}
	Resolve(idx.Symbols)

	deps := FileDependencies(idx)
	if len(deps) != 2 {
		t.Fatalf("expected 2 deps, got %+v", deps)
	}
	if deps[0].Source != "a.py" || deps[0].Target != "b.py" || !equal(deps[0].Symbols, []string{"helper"}) {
		t.Errorf("dep 0: %+v", deps[0])
	}
	if deps[1].Source != "c.py" || deps[1].Target != "b.py" {
		t.Errorf("dep 1: %+v", deps[1])
	}
}

func TestFileDependenciesNoSelfEdge(t *testing.T) {
	t.Parallel()

	idx := &model.Index{Symbols: []model.Symbol{sym("foo", "a.py"), sym("bar", "a.py", "foo")}}
	Resolve(idx.Symbols)
	if deps := FileDependencies(idx); len(deps) != 0 {
		t.Errorf("expected 0 deps (no self-edges), got %d", len(deps))
	}
}

func TestCallEdges(t *testing.T) {
	t.Parallel()

	idx := &model.Index{Symbols: []model.Symbol{
		sym("b", "z.py", "a"),
		sym("a", "y.py", "c", "ext"),
		sym("c", "y.py"),
	}}
	Resolve(idx.Symbols)

	edges := CallEdges(idx)
	want := []CallEdge{
		{Caller: "a", File: "y.py", Callee: "c"},
		{Caller: "b", File: "z.py", Callee: "a"},
	}
	if len(edges) != len(want) {
		t.Fatalf("edges = %+v", edges)
	}
	for i := range want {
		if edges[i] != want[i] {
			t.Errorf("edge %d = %+v, want %+v", i, edges[i], want[i])
		}
	}
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

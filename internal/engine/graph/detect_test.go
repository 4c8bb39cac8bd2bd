package graph

import (
	"testing"
)

func imports(targets ...string) []ImportEdge {
	out := make([]ImportEdge, 0, len(targets))
	for _, t := range targets {
		out = append(out, ImportEdge{To: t, Kind: EdgeImport})
	}
	return out
}

func TestDetectCycles_Iterative(t *testing.T) {
	g := NewGraph()

	// A -> B -> C -> A
	g.AddModule(Module{Name: "modA"}, imports("modB"))
	g.AddModule(Module{Name: "modB"}, imports("modC"))
	g.AddModule(Module{Name: "modC"}, imports("modA"))

	cycles := g.DetectCycles()
	if len(cycles) != 1 {
		t.Fatalf("Expected 1 cycle, got %d", len(cycles))
	}

	expected := []string{"modA", "modB", "modC"}
	if len(cycles[0]) != 3 {
		t.Fatalf("Expected cycle length 3, got %d", len(cycles[0]))
	}
	for i, name := range expected {
		if cycles[0][i] != name {
			t.Fatalf("Unexpected cycle: %v", cycles[0])
		}
	}
}

func TestDetectCycles_SelfImport(t *testing.T) {
	g := NewGraph()
	g.AddModule(Module{Name: "self"}, imports("self"))

	cycles := g.DetectCycles()
	if len(cycles) != 1 || len(cycles[0]) != 1 || cycles[0][0] != "self" {
		t.Fatalf("expected self cycle, got %v", cycles)
	}
}

func TestDetectCycles_NoneInDAG(t *testing.T) {
	g := NewGraph()
	g.AddModule(Module{Name: "a"}, imports("b", "c"))
	g.AddModule(Module{Name: "b"}, imports("c"))
	g.AddModule(Module{Name: "c"}, nil)

	if cycles := g.DetectCycles(); len(cycles) != 0 {
		t.Fatalf("expected no cycles, got %v", cycles)
	}
}

func TestFindImportChain(t *testing.T) {
	g := NewGraph()
	g.AddModule(Module{Name: "a"}, imports("b", "x"))
	g.AddModule(Module{Name: "b"}, imports("c"))
	g.AddModule(Module{Name: "x"}, imports("y"))
	g.AddModule(Module{Name: "y"}, imports("c"))
	g.AddModule(Module{Name: "c"}, nil)

	chain, ok := g.FindImportChain("a", "c")
	if !ok {
		t.Fatal("expected a chain")
	}
	want := []string{"a", "b", "c"}
	if len(chain) != len(want) {
		t.Fatalf("expected %v, got %v", want, chain)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, chain)
		}
	}

	if _, ok := g.FindImportChain("c", "a"); ok {
		t.Fatal("expected no reverse chain")
	}
}

func TestTransitiveDependents(t *testing.T) {
	g := NewGraph()
	g.AddModule(Module{Name: "types"}, nil)
	g.AddModule(Module{Name: "iface"}, imports("types"))
	g.AddModule(Module{Name: "ip"}, imports("iface", "types"))
	g.AddModule(Module{Name: "unrelated"}, nil)

	got := g.TransitiveDependents("types")
	if len(got) != 2 || got[0] != "iface" || got[1] != "ip" {
		t.Fatalf("unexpected dependents %v", got)
	}
}

package graph

import (
	"testing"
)

func TestGraph_AddEdge(t *testing.T) {
	g := NewGraph()
	g.EnsureNode("a")
	g.EnsureNode("b")

	if err := g.AddEdge("a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	node := g.GetNode("a")
	if len(node.DependsOn) != 1 || node.DependsOn[0] != "b" {
		t.Errorf("expected a to depend on b, got %v", node.DependsOn)
	}
	dep := g.GetNode("b")
	if len(dep.DependedOnBy) != 1 || dep.DependedOnBy[0] != "a" {
		t.Errorf("expected b to be depended on by a, got %v", dep.DependedOnBy)
	}
}

func TestGraph_DuplicateEdgesSuppressed(t *testing.T) {
	g := NewGraph()
	g.EnsureNode("a")
	g.EnsureNode("b")

	for i := 0; i < 3; i++ {
		if err := g.AddEdge("a", "b"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := len(g.GetNode("a").DependsOn); got != 1 {
		t.Errorf("expected 1 edge, got %d", got)
	}
	if got := len(g.GetNode("b").DependedOnBy); got != 1 {
		t.Errorf("expected 1 reverse edge, got %d", got)
	}
}

func TestGraph_SelfLoopIgnored(t *testing.T) {
	g := NewGraph()
	g.EnsureNode("a")

	if err := g.AddEdge("a", "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(g.GetNode("a").DependsOn); got != 0 {
		t.Errorf("expected self-loop to be ignored, got %v", g.GetNode("a").DependsOn)
	}
}

func TestGraph_MissingNodes(t *testing.T) {
	g := NewGraph()
	g.EnsureNode("a")

	if err := g.AddEdge("a", "ghost"); err == nil {
		t.Error("expected error for missing dependency node")
	}
	if err := g.AddEdge("ghost", "a"); err == nil {
		t.Error("expected error for missing dependent node")
	}
}

func TestGraph_DeterministicOrder(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		g.EnsureNode(id)
	}
	_ = g.AddEdge("mid", "zeta")
	_ = g.AddEdge("mid", "alpha")

	ids := g.NodeIDs()
	want := []string{"alpha", "mid", "zeta"}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}

	providers := g.Providers("mid")
	if providers[0] != "alpha" || providers[1] != "zeta" {
		t.Errorf("expected sorted providers, got %v", providers)
	}
}

func TestGraph_EnsureNodeIdempotent(t *testing.T) {
	g := NewGraph()
	first := g.EnsureNode("a")
	second := g.EnsureNode("a")
	if first != second {
		t.Error("expected EnsureNode to return the same node")
	}
}

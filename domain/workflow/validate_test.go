package workflow

import "testing"

func linearDefinition() Definition {
	return Definition{
		Metadata:   DefinitionMetadata{Name: "linear", Version: 1},
		Entrypoint: "a",
		Nodes: map[string]Node{
			"a": {ID: "a", Type: NodeTransform, Next: []string{"b"}},
			"b": {ID: "b", Type: NodeTransform, Next: []string{"c"}},
			"c": {ID: "c", Type: NodeTransform},
		},
		Edges: []Edge{{From: "a", To: "b"}, {From: "b", To: "c"}},
	}
}

func TestValidateDefinition_Linear(t *testing.T) {
	if err := ValidateDefinition(linearDefinition()); err != nil {
		t.Fatalf("ValidateDefinition() error = %v", err)
	}
}

func TestValidateDefinition_MissingEntrypoint(t *testing.T) {
	def := linearDefinition()
	def.Entrypoint = "missing"
	if err := ValidateDefinition(def); err == nil {
		t.Fatal("expected validation error for missing entrypoint")
	}
}

func TestValidateDefinition_EdgeToMissingNode(t *testing.T) {
	def := linearDefinition()
	def.Edges = append(def.Edges, Edge{From: "c", To: "ghost"})
	if err := ValidateDefinition(def); err == nil {
		t.Fatal("expected validation error for edge to missing node")
	}
}

func TestValidateDefinition_NextToMissingNode(t *testing.T) {
	def := linearDefinition()
	node := def.Nodes["c"]
	node.Next = []string{"ghost"}
	def.Nodes["c"] = node
	if err := ValidateDefinition(def); err == nil {
		t.Fatal("expected validation error for next referencing missing node")
	}
}

func TestValidateDefinition_Cycle(t *testing.T) {
	def := linearDefinition()
	node := def.Nodes["c"]
	node.Next = []string{"a"}
	def.Nodes["c"] = node
	if err := ValidateDefinition(def); err == nil {
		t.Fatal("expected validation error for cyclic graph")
	}
}

func TestValidateDefinition_ConditionBranches(t *testing.T) {
	def := Definition{
		Entrypoint: "check",
		Nodes: map[string]Node{
			"check": {ID: "check", Type: NodeCondition, Config: []byte(`{"expression":"input.value > 10","trueBranch":"hi","falseBranch":"lo"}`)},
			"hi":    {ID: "hi", Type: NodeTransform},
			"lo":    {ID: "lo", Type: NodeTransform},
		},
	}
	if err := ValidateDefinition(def); err != nil {
		t.Fatalf("ValidateDefinition() error = %v", err)
	}

	node := def.Nodes["check"]
	node.Config = []byte(`{"expression":"input.value > 10","trueBranch":"ghost"}`)
	def.Nodes["check"] = node
	if err := ValidateDefinition(def); err == nil {
		t.Fatal("expected validation error for missing trueBranch target")
	}
}

func TestValidateDefinition_MismatchedNodeID(t *testing.T) {
	def := Definition{
		Entrypoint: "a",
		Nodes: map[string]Node{
			"a": {ID: "not-a", Type: NodeTransform},
		},
	}
	if err := ValidateDefinition(def); err == nil {
		t.Fatal("expected validation error for mismatched node id")
	}
}

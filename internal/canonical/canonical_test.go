package canonical

import (
	"testing"
)

func TestMarshalSortsKeys(t *testing.T) {
	type payload struct {
		Zebra string `json:"zebra"`
		Alpha string `json:"alpha"`
		Mid   int    `json:"mid"`
	}

	out, err := Marshal(payload{Zebra: "z", Alpha: "a", Mid: 5})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"alpha":"a","mid":5,"zebra":"z"}`
	if string(out) != want {
		t.Errorf("canonical form = %s, want %s", out, want)
	}
}

func TestMarshalSortsNestedKeys(t *testing.T) {
	v := map[string]any{
		"outer": map[string]any{
			"b": 2,
			"a": 1,
		},
		"list": []any{map[string]any{"y": 1, "x": 2}},
	}

	out, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"list":[{"x":2,"y":1}],"outer":{"a":1,"b":2}}`
	if string(out) != want {
		t.Errorf("canonical form = %s, want %s", out, want)
	}
}

func TestMarshalPreservesArrayOrder(t *testing.T) {
	out, err := Marshal(map[string]any{"seq": []int{3, 1, 2}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"seq":[3,1,2]}`
	if string(out) != want {
		t.Errorf("canonical form = %s, want %s", out, want)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	v := map[string]any{"memory": "x", "tags": []string{"a", "b"}, "n": 0.0001}

	first, err := Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(first) != string(again) {
			t.Fatalf("non-deterministic output: %s vs %s", first, again)
		}
	}
}

func TestHash(t *testing.T) {
	a, err := Hash(map[string]any{"b": 1, "a": 2})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := Hash(map[string]any{"a": 2, "b": 1})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if a != b {
		t.Errorf("key order changed the hash: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}

	c, err := Hash(map[string]any{"a": 2, "b": 9})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if c == a {
		t.Error("different values produced the same hash")
	}
}

package doctree

import (
	"strings"
	"testing"
)

func sampleDoc() *Value {
	root := NewMap()
	root.SetField("title", NewScalar("Rollout plan"))

	meta := NewMap()
	meta.SetField("id", NewScalar("PLN-1"))
	meta.SetField("createdAt", NewScalar("2026-01-10"))
	root.SetField("meta", meta)

	causes := NewList()
	c0 := NewMap()
	c0.SetField("causeId", NewScalar("C-1"))
	c0.SetField("description", NewScalar("Vendor delay"))
	c0.SetField("severity", NewScalar("High"))
	causes.Append(c0)
	root.SetField("causes", causes)

	root.SetField("attempts", &Value{Kind: Scalar, Str: "3", Tag: "!!int"})
	root.SetField("archived", &Value{Kind: Scalar, Str: "false", Tag: "!!bool"})
	root.SetField("note", NewScalar("   "))
	return root
}

func TestLeaves_DepthFirstDocumentOrder(t *testing.T) {
	leaves := Leaves(sampleDoc())

	want := []string{
		"title",
		"meta.id",
		"meta.createdAt",
		"causes[0].causeId",
		"causes[0].description",
		"causes[0].severity",
		"attempts",
		"archived",
	}
	if len(leaves) != len(want) {
		paths := make([]string, len(leaves))
		for i, l := range leaves {
			paths[i] = l.Path.String()
		}
		t.Fatalf("leaves = %v, want %v", paths, want)
	}
	for i, l := range leaves {
		if l.Path.String() != want[i] {
			t.Errorf("leaf %d = %s, want %s", i, l.Path, want[i])
		}
	}
}

func TestLeaves_TypedScalarsCarryTheirTag(t *testing.T) {
	tags := map[string]string{}
	for _, l := range Leaves(sampleDoc()) {
		p := l.Path.String()
		if p == "note" {
			t.Errorf("blank leaf %s should be excluded from the index", p)
		}
		tags[p] = l.Tag
	}
	if tags["attempts"] != "!!int" {
		t.Errorf("attempts tag = %q, want !!int", tags["attempts"])
	}
	if tags["archived"] != "!!bool" {
		t.Errorf("archived tag = %q, want !!bool", tags["archived"])
	}
	if tags["title"] != "" {
		t.Errorf("title tag = %q, want plain string", tags["title"])
	}
}

func TestLeaves_StableAcrossRuns(t *testing.T) {
	doc := sampleDoc()
	first := Leaves(doc)
	second := Leaves(doc)
	if len(first) != len(second) {
		t.Fatal("leaf count changed between runs")
	}
	for i := range first {
		if first[i].Path.String() != second[i].Path.String() || first[i].Hash != second[i].Hash {
			t.Fatalf("leaf %d differs between runs", i)
		}
	}
}

// Writing a new value at a leaf's path and re-indexing yields a leaf at
// the same path carrying the new value.
func TestLeaves_RoundTripAddressing(t *testing.T) {
	doc := sampleDoc()
	for _, l := range Leaves(doc) {
		if err := SetString(doc, l.Path, l.Value+" (edited)"); err != nil {
			t.Fatalf("SetString at %s: %v", l.Path, err)
		}
	}
	reindexed := Leaves(doc)
	if len(reindexed) != len(Leaves(sampleDoc())) {
		t.Fatal("leaf count changed after write-back")
	}
	for _, l := range reindexed {
		if !strings.HasSuffix(l.Value, " (edited)") {
			t.Errorf("leaf %s = %q, want the written value", l.Path, l.Value)
		}
	}
}

func TestHashText_TrimsWhitespace(t *testing.T) {
	a := HashText("Vendor delay")
	b := HashText("  Vendor delay \n")
	if a != b {
		t.Error("hash should ignore surrounding whitespace")
	}
	if a == HashText("vendor delay") {
		t.Error("hash should be case sensitive")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

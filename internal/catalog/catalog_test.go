package catalog

import "testing"

func TestDefaultLookup(t *testing.T) {
	c := Default()
	tire, ok := c.Lookup("tire")
	if !ok {
		t.Fatal("tire missing from default catalogue")
	}
	if tire.BasePrice != 65 {
		t.Fatalf("tire base price = %v, want 65", tire.BasePrice)
	}
	if _, ok := c.Lookup("teleport"); ok {
		t.Fatal("unexpected category")
	}
	if len(c.List()) != 8 {
		t.Fatalf("expected 8 service types, got %d", len(c.List()))
	}
}

func TestNewSkipsDuplicates(t *testing.T) {
	c := New([]ServiceType{{ID: "a", BasePrice: 1}, {ID: "a", BasePrice: 2}, {ID: "b"}})
	if len(c.List()) != 2 {
		t.Fatalf("expected 2 types, got %d", len(c.List()))
	}
	a, _ := c.Lookup("a")
	if a.BasePrice != 1 {
		t.Fatalf("first definition should win, got %v", a.BasePrice)
	}
	ids := c.IDs()
	if ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

package capreg

import "testing"

func TestSidebarRegisterAndList(t *testing.T) {
	r := NewSidebarRegistry()
	r.Register("x", "main", SidebarPanelDefinition{Title: "Main", Order: 10})
	r.Register("y", "other", SidebarPanelDefinition{Title: "Other", Order: 5})

	panels := r.List()
	if len(panels) != 2 {
		t.Fatalf("expected 2 panels, got %d", len(panels))
	}
	if panels[0].Title != "Other" {
		t.Errorf("expected Other first by lower order, got %s", panels[0].Title)
	}
}

func TestSidebarUnregisterAllOwnedOnly(t *testing.T) {
	r := NewSidebarRegistry()
	r.Register("x", "a", SidebarPanelDefinition{})
	r.Register("x", "b", SidebarPanelDefinition{})
	r.Register("y", "c", SidebarPanelDefinition{})

	removed := r.UnregisterAll("x")
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if len(r.List()) != 1 {
		t.Errorf("expected 1 panel left, got %d", len(r.List()))
	}
}

func TestOnPanelActivateInvokedAndIsolated(t *testing.T) {
	r := NewSidebarRegistry()
	fullID := r.Register("x", "main", SidebarPanelDefinition{})

	called := false
	r.OnPanelActivate(fullID, func(id string) { panic("boom") })
	r.OnPanelActivate(fullID, func(id string) { called = true })

	r.ActivatePanel(fullID)
	if !called {
		t.Error("expected second listener to run despite first panicking")
	}
}

func TestSidebarSetState(t *testing.T) {
	r := NewSidebarRegistry()
	fullID := r.Register("x", "main", SidebarPanelDefinition{})
	if !r.SetState(fullID, map[string]any{"collapsed": true}) {
		t.Fatal("expected SetState to succeed for existing panel")
	}
	if r.SetState("missing.panel", map[string]any{}) {
		t.Error("expected SetState to fail for unknown panel")
	}
}

package features

import "testing"

func TestDefaultManager(t *testing.T) {
	m := NewDefaultManager()
	for _, name := range []string{FeatureValidationJournal, FeatureReceiptCache, FeatureEventHooks} {
		if !m.IsEnabled(name) {
			t.Errorf("Expected %s enabled", name)
		}
	}
	if m.IsEnabled("unknown") {
		t.Error("Expected unknown flag disabled")
	}

	flags := m.List()
	if len(flags) != 3 || flags[0].Name != FeatureEventHooks {
		t.Errorf("Expected 3 flags sorted by name, got %+v", flags)
	}
}

func TestManager_Toggle(t *testing.T) {
	m := NewDefaultManager()
	if !m.Disable(FeatureReceiptCache) || m.IsEnabled(FeatureReceiptCache) {
		t.Fatal("Expected receipt cache disabled")
	}
	if !m.Enable(FeatureReceiptCache) || !m.IsEnabled(FeatureReceiptCache) {
		t.Fatal("Expected receipt cache enabled")
	}
	if m.Set("unknown", true) {
		t.Error("Expected unknown flag to be rejected")
	}
}

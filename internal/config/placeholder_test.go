package config

import "testing"

func TestCheckPlaceholdersFindsRequiredTags(t *testing.T) {
	v := Map().
		Set("allocation", String(PlaceholderRequiredOnHPC)).
		Set("nested", Map().Set("walltime", String(PlaceholderRequired))).
		Set("ok", String("fine"))

	errs := CheckPlaceholders(v)
	if len(errs) != 2 {
		t.Fatalf("CheckPlaceholders() found %d placeholders, want 2: %v", len(errs), errs)
	}
}

func TestCheckPlaceholdersCleanConfig(t *testing.T) {
	v := Map().Set("allocation", String("my-account"))
	if errs := CheckPlaceholders(v); len(errs) != 0 {
		t.Fatalf("expected no placeholders, got %v", errs)
	}
}

package catalog_test

import (
	"testing"

	"waveq/internal/catalog"
)

func TestLookupByCanonicalName(t *testing.T) {
	op, ok := catalog.Lookup("normalize")
	if !ok {
		t.Fatal("expected normalize to be registered")
	}
	if op.Name != catalog.OpNormalize {
		t.Fatalf("unexpected name: %s", op.Name)
	}
	if len(op.Params) != 1 || op.Params[0].Name != "target_db" {
		t.Fatalf("unexpected params: %#v", op.Params)
	}
}

func TestLookupNormalizesCase(t *testing.T) {
	if _, ok := catalog.Lookup("  TRIM "); !ok {
		t.Fatal("expected case-insensitive lookup to succeed")
	}
	if catalog.Known("frobnicate") {
		t.Fatal("expected unknown operation to be rejected")
	}
}

func TestDefaults(t *testing.T) {
	defaults := catalog.Defaults("normalize")
	if got := defaults["target_db"]; got != -20.0 {
		t.Fatalf("expected target_db default -20, got %v", got)
	}

	// trim has no defaults: both bounds come from the request text.
	if defaults := catalog.Defaults("trim"); len(defaults) != 0 {
		t.Fatalf("expected no trim defaults, got %v", defaults)
	}

	if catalog.Defaults("nope") != nil {
		t.Fatal("expected nil defaults for unknown operation")
	}
}

func TestAllReturnsEveryOperationOnce(t *testing.T) {
	all := catalog.All()
	if len(all) != 14 {
		t.Fatalf("expected 14 operations, got %d", len(all))
	}
	seen := make(map[string]struct{}, len(all))
	for _, op := range all {
		if _, dup := seen[op.Name]; dup {
			t.Fatalf("duplicate operation %s", op.Name)
		}
		seen[op.Name] = struct{}{}
	}
}

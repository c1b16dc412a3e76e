package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestIsTestFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"test_auth.py", true},
		{"auth_test.py", true},
		{"cache_test.go", true},
		{"checkout.test.js", true},
		{"checkout.spec.ts", true},
		{"auth.py", false},
		{"test_data.json", false},
		{"main.go", false},
		{"checkout.js", false},
	}
	for _, tt := range tests {
		if got := IsTestFile(tt.name); got != tt.want {
			t.Errorf("IsTestFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDiscover_WalksAndProfiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"tests/unit/test_auth.py":    "def test_login(): pass",
		"tests/e2e/test_checkout.py": "def test_buy(): pass",
		"app/helper.py":              "x = 1",
		"node_modules/dep/x.test.js": "ignored",
		"__pycache__/test_stale.py":  "ignored",
	})

	d := NewDiscoverer(root, nil, nil)
	profiles, err := d.Discover(context.Background(), "all")
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}

	if len(profiles) != 2 {
		t.Fatalf("discovered %d profiles, want 2", len(profiles))
	}

	byName := make(map[string]*Profile)
	for _, p := range profiles {
		byName[p.Name] = p
	}

	auth, ok := byName["tests.unit.test_auth"]
	if !ok {
		t.Fatalf("missing dotted profile name, got %v", byName)
	}
	if auth.Category != CategoryUnit {
		t.Errorf("category = %s, want unit", auth.Category)
	}
	if auth.Priority != PriorityCritical {
		t.Errorf("priority = %s, want critical (auth keyword)", auth.Priority)
	}
	if auth.AvgDuration != 1.0 {
		t.Errorf("unit duration = %v, want 1.0", auth.AvgDuration)
	}

	checkout := byName["tests.e2e.test_checkout"]
	if checkout.Category != CategoryE2E {
		t.Errorf("category = %s, want e2e", checkout.Category)
	}
	if checkout.AvgDuration != 30.0 {
		t.Errorf("e2e duration = %v, want 30.0", checkout.AvgDuration)
	}
}

func TestDiscover_CategoryFilter(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"tests/unit/test_a.py": "pass",
		"tests/e2e/test_b.py":  "pass",
	})

	d := NewDiscoverer(root, nil, nil)
	profiles, err := d.Discover(context.Background(), "unit")
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 || profiles[0].Category != CategoryUnit {
		t.Errorf("category filter returned %d profiles", len(profiles))
	}
}

func TestDiscover_ExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"tests/test_keep.py":       "pass",
		"tests/legacy/test_old.py": "pass",
	})

	d := NewDiscoverer(root, nil, []string{"*legacy*"})
	profiles, err := d.Discover(context.Background(), "all")
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 || profiles[0].Name != "tests.test_keep" {
		t.Errorf("exclude pattern not applied, got %d profiles", len(profiles))
	}
}

func TestDiscover_EmptyTree(t *testing.T) {
	d := NewDiscoverer(t.TempDir(), nil, nil)
	profiles, err := d.Discover(context.Background(), "all")
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 0 {
		t.Errorf("empty tree discovered %d profiles", len(profiles))
	}
}

func TestCategoryFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Category
	}{
		{"tests/e2e/test_flow.py", CategoryE2E},
		{"tests/integration/test_db.py", CategoryIntegration},
		{"tests/performance/test_load.py", CategoryPerformance},
		{"tests/unit/test_calc.py", CategoryUnit},
		{"tests/test_misc.py", CategoryGeneral},
	}
	for _, tt := range tests {
		if got := CategoryFromPath(tt.path); got != tt.want {
			t.Errorf("CategoryFromPath(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestPriorityFromPath(t *testing.T) {
	tests := []struct {
		path, name string
		want       Priority
	}{
		{"tests/test_payment.py", "tests.test_payment", PriorityCritical},
		{"tests/test_api_routes.py", "tests.test_api_routes", PriorityHigh},
		{"tests/test_helpers.py", "tests.test_helpers", PriorityLow},
		{"tests/test_widgets.py", "tests.test_widgets", PriorityNormal},
		// Critical keywords outrank high ones when both match
		{"tests/core/test_auth.py", "tests.core.test_auth", PriorityCritical},
	}
	for _, tt := range tests {
		if got := PriorityFromPath(tt.path, tt.name); got != tt.want {
			t.Errorf("PriorityFromPath(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

package profile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestScan_PythonImports(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app/auth.py":         "def login(): pass",
		"app/db/__init__.py":  "",
		"tests/test_login.py": "import app.auth\nfrom app.db import session\nimport os\n",
	})

	s := NewImportScanner(root)
	deps, err := s.Scan(context.Background(), filepath.Join(root, "tests/test_login.py"))
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	want := map[string]bool{
		filepath.Join(root, "app/auth.py"):        true,
		filepath.Join(root, "app/db/__init__.py"): true,
	}
	if len(deps) != len(want) {
		t.Fatalf("deps = %v, want %d repo files (stdlib excluded)", deps, len(want))
	}
	for _, dep := range deps {
		if !want[dep] {
			t.Errorf("unexpected dependency %s", dep)
		}
	}
}

func TestScan_PythonAliasedImport(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"helpers.py":      "x = 1",
		"tests/test_h.py": "import helpers as h\n",
	})

	s := NewImportScanner(root)
	deps, err := s.Scan(context.Background(), filepath.Join(root, "tests/test_h.py"))
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 || deps[0] != filepath.Join(root, "helpers.py") {
		t.Errorf("deps = %v, want [helpers.py]", deps)
	}
}

func TestScan_JSRelativeImports(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/cart.js":        "export const cart = {}",
		"src/money/index.js": "export const money = {}",
		"src/cart.test.js":   "import { cart } from './cart';\nimport { money } from './money';\nimport React from 'react';\n",
	})

	s := NewImportScanner(root)
	deps, err := s.Scan(context.Background(), filepath.Join(root, "src/cart.test.js"))
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}

	want := map[string]bool{
		filepath.Join(root, "src/cart.js"):        true,
		filepath.Join(root, "src/money/index.js"): true,
	}
	if len(deps) != len(want) {
		t.Fatalf("deps = %v, want %d (bare specifiers excluded)", deps, len(want))
	}
	for _, dep := range deps {
		if !want[dep] {
			t.Errorf("unexpected dependency %s", dep)
		}
	}
}

func TestScan_GoSiblingSources(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"pkg/calc/calc.go":      "package calc",
		"pkg/calc/extra.go":     "package calc",
		"pkg/calc/calc_test.go": "package calc",
	})

	s := NewImportScanner(root)
	deps, err := s.Scan(context.Background(), filepath.Join(root, "pkg/calc/calc_test.go"))
	if err != nil {
		t.Fatal(err)
	}

	if len(deps) != 2 {
		t.Fatalf("deps = %v, want the 2 non-test sibling sources", deps)
	}
	for _, dep := range deps {
		if filepath.Ext(dep) != ".go" || filepath.Base(dep) == "calc_test.go" {
			t.Errorf("unexpected dependency %s", dep)
		}
	}
}

func TestScan_UnknownExtension(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "test_data.rb")
	os.WriteFile(path, []byte("require 'x'"), 0o644)

	s := NewImportScanner(root)
	deps, err := s.Scan(context.Background(), path)
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if deps != nil {
		t.Errorf("deps = %v for unsupported language, want nil", deps)
	}
}

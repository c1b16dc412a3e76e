package profile

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// ImportScanner extracts import-derived dependency file paths from
// test sources using tree-sitter. Only dependencies that resolve to
// files inside the repository are returned; everything else (stdlib,
// third-party packages) is irrelevant for cache invalidation.
type ImportScanner struct {
	root     string
	pyParser *sitter.Parser
	jsParser *sitter.Parser
}

// NewImportScanner creates a scanner rooted at the repository path
func NewImportScanner(root string) *ImportScanner {
	pyParser := sitter.NewParser()
	pyParser.SetLanguage(python.GetLanguage())

	jsParser := sitter.NewParser()
	jsParser.SetLanguage(javascript.GetLanguage())

	return &ImportScanner{
		root:     root,
		pyParser: pyParser,
		jsParser: jsParser,
	}
}

// Scan parses the file and returns resolved dependency paths, sorted
func (s *ImportScanner) Scan(ctx context.Context, path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py":
		return s.scanPython(ctx, path)
	case ".js", ".ts", ".jsx", ".tsx":
		return s.scanJS(ctx, path)
	case ".go":
		// Go test files exercise their own package; the sibling
		// sources are the dependency set that matters for caching.
		return samePackageSources(path)
	default:
		return nil, nil
	}
}

func (s *ImportScanner) scanPython(ctx context.Context, path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	tree, err := s.pyParser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	modules := make(map[string]bool)
	walk(tree.RootNode(), func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child.Type() == "dotted_name" || child.Type() == "aliased_import" {
					name := child
					if child.Type() == "aliased_import" {
						name = child.ChildByFieldName("name")
					}
					if name != nil {
						modules[name.Content(content)] = true
					}
				}
			}
		case "import_from_statement":
			if mod := n.ChildByFieldName("module_name"); mod != nil {
				modules[mod.Content(content)] = true
			}
		}
	})

	var deps []string
	for mod := range modules {
		if resolved := s.resolvePythonModule(mod); resolved != "" {
			deps = append(deps, resolved)
		}
	}
	sort.Strings(deps)
	return deps, nil
}

func (s *ImportScanner) scanJS(ctx context.Context, path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	tree, err := s.jsParser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	sources := make(map[string]bool)
	walk(tree.RootNode(), func(n *sitter.Node) {
		if n.Type() != "import_statement" {
			return
		}
		if src := n.ChildByFieldName("source"); src != nil {
			sources[strings.Trim(src.Content(content), `"'`)] = true
		}
	})

	dir := filepath.Dir(path)
	var deps []string
	for src := range sources {
		if !strings.HasPrefix(src, ".") {
			continue // bare specifier, not a repo file
		}
		if resolved := resolveJSSource(dir, src); resolved != "" {
			deps = append(deps, resolved)
		}
	}
	sort.Strings(deps)
	return deps, nil
}

// resolvePythonModule maps a dotted module path to a repo file
func (s *ImportScanner) resolvePythonModule(module string) string {
	rel := filepath.FromSlash(strings.ReplaceAll(module, ".", "/"))
	candidates := []string{
		filepath.Join(s.root, rel+".py"),
		filepath.Join(s.root, rel, "__init__.py"),
	}
	for _, c := range candidates {
		if Exists(c) {
			return c
		}
	}
	return ""
}

// resolveJSSource maps a relative import specifier to a repo file
func resolveJSSource(dir, src string) string {
	base := filepath.Join(dir, filepath.FromSlash(src))
	candidates := []string{base}
	for _, ext := range []string{".js", ".ts", ".jsx", ".tsx"} {
		candidates = append(candidates, base+ext)
	}
	for _, idx := range []string{"index.js", "index.ts"} {
		candidates = append(candidates, filepath.Join(base, idx))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// samePackageSources returns the non-test Go sources next to a test file
func samePackageSources(path string) ([]string, error) {
	dir := filepath.Dir(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var deps []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		deps = append(deps, filepath.Join(dir, name))
	}
	sort.Strings(deps)
	return deps, nil
}

// walk visits every named node in depth-first order
func walk(node *sitter.Node, fn func(*sitter.Node)) {
	fn(node)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		walk(node.NamedChild(i), fn)
	}
}

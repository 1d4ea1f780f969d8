package analyzer

import (
	"fmt"
	"os"
	"regexp"
	"sync"
)

var (
	functionPattern = regexp.MustCompile(`(?i)function\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
	classPattern    = regexp.MustCompile(`(?i)\bclass\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	classOpenBrace  = regexp.MustCompile(`(?i)\bclass\s+[a-zA-Z_][a-zA-Z0-9_]*[^{]*\{`)
)

// SymbolTable tracks every function and class declared by modules loaded
// in the current process. Conflict detection runs against it because
// install order is unordered; symbols from already-active modules are as
// much a conflict source as host-core symbols.
type SymbolTable struct {
	mu        sync.RWMutex
	functions map[string]string // symbol -> declaring module id
	classes   map[string]string
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		functions: make(map[string]string),
		classes:   make(map[string]string),
	}
}

// RegisterFile extracts the declarations from a successfully loaded module
// file and records them against the module id.
func (t *SymbolTable) RegisterFile(moduleID, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	functions, classes := extractDeclarations(content)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range functions {
		t.functions[f] = moduleID
	}
	for _, cl := range classes {
		t.classes[cl] = moduleID
	}
	return nil
}

// Forget drops every symbol registered for a module id.
func (t *SymbolTable) Forget(moduleID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for s, owner := range t.functions {
		if owner == moduleID {
			delete(t.functions, s)
		}
	}
	for s, owner := range t.classes {
		if owner == moduleID {
			delete(t.classes, s)
		}
	}
}

// FunctionOwner returns the module that declared a function, if any.
func (t *SymbolTable) FunctionOwner(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	owner, ok := t.functions[name]
	return owner, ok
}

// ClassOwner returns the module that declared a class, if any.
func (t *SymbolTable) ClassOwner(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	owner, ok := t.classes[name]
	return owner, ok
}

// extractDeclarations pulls top-level function and class names out of a
// source file by pattern matching. This is not a real parser; full parsing
// is unnecessary for collision detection. Functions declared inside a
// class body are methods and excluded from the free-function list.
func extractDeclarations(content []byte) (functions, classes []string) {
	spans := classBodySpans(content)

	for _, m := range functionPattern.FindAllSubmatchIndex(content, -1) {
		if insideSpan(spans, m[0]) {
			continue
		}
		functions = append(functions, string(content[m[2]:m[3]]))
	}
	for _, m := range classPattern.FindAllSubmatchIndex(content, -1) {
		classes = append(classes, string(content[m[2]:m[3]]))
	}
	return functions, classes
}

// classBodySpans approximates the byte ranges of class bodies by walking
// braces from each class declaration's opening brace.
func classBodySpans(content []byte) [][2]int {
	var spans [][2]int
	for _, m := range classOpenBrace.FindAllIndex(content, -1) {
		depth := 0
		end := len(content)
		for i := m[1] - 1; i < len(content); i++ {
			switch content[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					end = i
					i = len(content)
				}
			}
		}
		spans = append(spans, [2]int{m[0], end})
	}
	return spans
}

func insideSpan(spans [][2]int, pos int) bool {
	for _, s := range spans {
		if pos > s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

// CheckConflicts extracts the candidate file's top-level declarations and
// cross-references each against the host-core allow-list and the runtime
// symbol table. Any collision is a hard error carrying a rename
// suggestion derived from the module id.
func (c *Checker) CheckConflicts(path, moduleID string) *Result {
	result := newResult()

	content, err := os.ReadFile(path)
	if err != nil {
		result.Errors = append(result.Errors, Finding{
			Type:    "file_not_found",
			Message: "Module file not found.",
		})
		return result
	}

	functions, classes := extractDeclarations(content)

	for _, name := range functions {
		if _, core := hostCoreSymbols[name]; core {
			continue
		}
		if _, exists := c.symbols.FunctionOwner(name); exists {
			result.Errors = append(result.Errors, Finding{
				Type:       "function_conflict",
				Message:    fmt.Sprintf("Function %q already exists in the host or another module.", name),
				Suggestion: fmt.Sprintf("Rename the function to something unique, like %q.", moduleID+"_"+name),
			})
		}
	}
	for _, name := range classes {
		if _, exists := c.symbols.ClassOwner(name); exists {
			result.Errors = append(result.Errors, Finding{
				Type:       "class_conflict",
				Message:    fmt.Sprintf("Class %q already exists in the host or another module.", name),
				Suggestion: fmt.Sprintf("Rename the class to something unique, like %q.", moduleID+"_"+name),
			})
		}
	}
	return result
}

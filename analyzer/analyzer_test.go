package analyzer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "source.php")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write source file: %s", err)
	}
	return p
}

func TestExtractDeclarations(t *testing.T) {
	content := []byte(`<?php
function free_one() {}
class Widget {
    function method_one() {}
    public function method_two() {}
}
function free_two() {}
`)
	functions, classes := extractDeclarations(content)

	if len(functions) != 2 || functions[0] != "free_one" || functions[1] != "free_two" {
		t.Errorf("expected the two free functions, got %v", functions)
	}
	if len(classes) != 1 || classes[0] != "Widget" {
		t.Errorf("expected class Widget, got %v", classes)
	}
}

func TestSymbolTableRegisterAndForget(t *testing.T) {
	table := NewSymbolTable()
	p := writeSource(t, "<?php\nfunction owned_fn() {}\nclass Owned {}\n")

	if err := table.RegisterFile("owner", p); err != nil {
		t.Fatalf("register failed: %s", err)
	}
	if owner, ok := table.FunctionOwner("owned_fn"); !ok || owner != "owner" {
		t.Errorf("expected owned_fn to belong to owner, got %q %v", owner, ok)
	}
	if owner, ok := table.ClassOwner("Owned"); !ok || owner != "owner" {
		t.Errorf("expected Owned to belong to owner, got %q %v", owner, ok)
	}

	table.Forget("owner")
	if _, ok := table.FunctionOwner("owned_fn"); ok {
		t.Error("expected symbols to be forgotten")
	}
}

func TestCheckConflictsReportsCollision(t *testing.T) {
	c := New(nil, nil, "")
	existing := writeSource(t, "<?php\nfunction shared_fn() {}\n")
	if err := c.Symbols().RegisterFile("first-mod", existing); err != nil {
		t.Fatalf("register failed: %s", err)
	}

	candidate := writeSource(t, "<?php\nfunction shared_fn() {}\nfunction unique_fn() {}\n")
	result := c.CheckConflicts(candidate, "second-mod")

	if len(result.Errors) != 1 {
		t.Fatalf("expected exactly one conflict error, got %d", len(result.Errors))
	}
	f := result.Errors[0]
	if f.Type != "function_conflict" {
		t.Errorf("expected function_conflict, got %q", f.Type)
	}
	if !strings.Contains(f.Message, "shared_fn") {
		t.Errorf("expected the message to name the symbol, got %q", f.Message)
	}
	if !strings.Contains(f.Suggestion, "second-mod_shared_fn") {
		t.Errorf("expected a rename suggestion derived from the module id, got %q", f.Suggestion)
	}
}

func TestCheckConflictsSkipsHostCoreSymbols(t *testing.T) {
	c := New(nil, nil, "")
	candidate := writeSource(t, "<?php\nfunction add_action() {}\n")
	result := c.CheckConflicts(candidate, "wrapper-mod")
	if len(result.Errors) != 0 {
		t.Errorf("host core symbols must not be reported as conflicts, got %v", result.Errors)
	}
}

func TestCheckConflictsClassCollision(t *testing.T) {
	c := New(nil, nil, "")
	existing := writeSource(t, "<?php\nclass Shared {}\n")
	if err := c.Symbols().RegisterFile("first-mod", existing); err != nil {
		t.Fatalf("register failed: %s", err)
	}

	candidate := writeSource(t, "<?php\nclass Shared {}\n")
	result := c.CheckConflicts(candidate, "second-mod")
	if len(result.Errors) != 1 || result.Errors[0].Type != "class_conflict" {
		t.Fatalf("expected one class_conflict, got %v", result.Errors)
	}
}

func TestCheckSyntaxShortTags(t *testing.T) {
	c := New(nil, nil, "")
	p := writeSource(t, "<? echo 'legacy'; ?>\n")

	result := c.CheckSyntax(p)
	if len(result.Errors) != 0 {
		t.Fatalf("short tags are a warning, not an error: %v", result.Errors)
	}
	found := false
	for _, w := range result.Warnings {
		if w.Type == "short_tags" {
			found = true
			if !w.AutoFixAvailable || w.AutoFixAction != AutoFixShortTags {
				t.Error("expected the short tag warning to carry an auto-fix")
			}
		}
	}
	if !found {
		t.Error("expected a short_tags warning")
	}
}

func TestCheckSyntaxTokenizeFailureIsWarning(t *testing.T) {
	c := New(nil, nil, "")
	p := writeSource(t, "<?php\nfunction broken() {\n")

	result := c.CheckSyntax(p)
	if len(result.Errors) != 0 {
		t.Fatalf("tokenize failures must downgrade to warnings, got %v", result.Errors)
	}
	found := false
	for _, w := range result.Warnings {
		if w.Type == "syntax_check_limited" {
			found = true
		}
	}
	if !found {
		t.Error("expected a syntax_check_limited warning")
	}
}

func TestCheckSyntaxMissingFile(t *testing.T) {
	c := New(nil, nil, "")
	result := c.CheckSyntax(filepath.Join(t.TempDir(), "nope.php"))
	if len(result.Errors) != 1 || result.Errors[0].Type != "file_not_found" {
		t.Fatalf("expected a file_not_found error, got %v", result.Errors)
	}
}

func TestTokenize(t *testing.T) {
	ok := [][]byte{
		[]byte("<?php function a() { return '}'; }\n"),
		[]byte("<?php // a comment with {\n"),
		[]byte("<?php /* block { */ function b() {}\n"),
		[]byte("<?php # hash comment {\n"),
	}
	for _, content := range ok {
		if err := tokenize(content); err != nil {
			t.Errorf("expected %q to tokenize, got %s", content, err)
		}
	}

	bad := [][]byte{
		[]byte("<?php function a() {\n"),
		[]byte("<?php }\n"),
		[]byte("<?php $s = 'unterminated\n"),
		[]byte("<?php /* never closed\n"),
	}
	for _, content := range bad {
		if err := tokenize(content); err == nil {
			t.Errorf("expected %q to fail tokenization", content)
		}
	}
}

func TestScanContentFlagsDangerousCalls(t *testing.T) {
	c := New(nil, nil, "")
	p := writeSource(t, `<?php
eval($_GET['code']);
$data = file_get_contents('https://example.com/payload');
`)

	findings, err := c.ScanContent(p)
	if err != nil {
		t.Fatalf("scan failed: %s", err)
	}
	var labels []string
	for _, f := range findings {
		labels = append(labels, f.Message)
	}
	joined := strings.Join(labels, "\n")
	if !strings.Contains(joined, "eval") {
		t.Errorf("expected eval to be flagged, got %v", labels)
	}
	if !strings.Contains(joined, "file_get_contents") {
		t.Errorf("expected the remote fetch idiom to be flagged, got %v", labels)
	}
}

func TestScanContentCleanFile(t *testing.T) {
	c := New(nil, nil, "")
	p := writeSource(t, "<?php\nfunction harmless() { return 1; }\n")
	findings, err := c.ScanContent(p)
	if err != nil {
		t.Fatalf("scan failed: %s", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected no findings, got %v", findings)
	}
}

func TestApplyAutoFixShortTags(t *testing.T) {
	c := New(nil, nil, "")
	p := writeSource(t, "<? echo 1; ?>\n<?php echo 2; ?>\n<?= 3 ?>\n")

	changed, err := c.ApplyAutoFix(p, AutoFixShortTags)
	if err != nil {
		t.Fatalf("auto-fix failed: %s", err)
	}
	if !changed {
		t.Fatal("expected the file to change")
	}

	fixed, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("failed to read fixed file: %s", err)
	}
	want := "<?php echo 1; ?>\n<?php echo 2; ?>\n<?= 3 ?>\n"
	if string(fixed) != want {
		t.Errorf("unexpected rewrite:\n got %q\nwant %q", fixed, want)
	}

	// Second application is a no-op.
	changed, err = c.ApplyAutoFix(p, AutoFixShortTags)
	if err != nil {
		t.Fatalf("second auto-fix failed: %s", err)
	}
	if changed {
		t.Error("expected no change on an already fixed file")
	}
}

func TestApplyAutoFixUnknownAction(t *testing.T) {
	c := New(nil, nil, "")
	if _, err := c.ApplyAutoFix("whatever.php", "bogus"); err != ErrUnknownAutoFix {
		t.Fatalf("expected ErrUnknownAutoFix, got %v", err)
	}
}

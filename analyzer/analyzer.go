// Package analyzer performs static, best-effort checks over candidate
// module source files without executing them. Findings are advisory: hard
// errors block installation, warnings and security findings are logged
// and surfaced for review.
package analyzer

import (
	"os"
	"regexp"

	"emperror.dev/errors"
	"gorm.io/gorm"

	"github.com/onyxcmd/onyxd/eventlog"
	"github.com/onyxcmd/onyxd/internal/models"
)

var ErrModuleNotFound = errors.New("analyzer: module not found")

// Finding is a single issue produced by a check.
type Finding struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`

	AutoFixAvailable bool              `json:"auto_fix_available"`
	AutoFixAction    string            `json:"auto_fix_action,omitempty"`
	AutoFixData      map[string]string `json:"auto_fix_data,omitempty"`
}

// Result groups the findings of one check pass. Errors block installation;
// warnings and suggestions do not.
type Result struct {
	Errors      []Finding `json:"errors"`
	Warnings    []Finding `json:"warnings"`
	Suggestions []Finding `json:"suggestions"`
}

// ModuleReport is the combined output of a full module scan.
type ModuleReport struct {
	Syntax    *Result   `json:"syntax"`
	Conflicts *Result   `json:"conflicts"`
	Security  []Finding `json:"security"`
}

func newResult() *Result {
	return &Result{
		Errors:      []Finding{},
		Warnings:    []Finding{},
		Suggestions: []Finding{},
	}
}

// Checker runs the analysis pipeline. It holds the fixed host-core symbol
// allow-list and the runtime symbol table of everything loaded so far;
// the loader feeds the table as modules come up.
type Checker struct {
	symbols *SymbolTable
	content []ContentCheck

	db  *gorm.DB
	log *eventlog.Logger

	// modulesDir is the modules root used to resolve registered module
	// file paths during a full scan.
	modulesDir string
}

func New(db *gorm.DB, log *eventlog.Logger, modulesDir string) *Checker {
	return &Checker{
		symbols:    NewSymbolTable(),
		content:    defaultContentChecks(),
		db:         db,
		log:        log,
		modulesDir: modulesDir,
	}
}

// Symbols exposes the runtime symbol table so the loader can register
// declarations from modules it successfully brings up.
func (c *Checker) Symbols() *SymbolTable {
	return c.symbols
}

var shortTagPattern = regexp.MustCompile(`(?i)<\?[^p=]`)

// CheckSyntax verifies the file is readable and runs a best-effort lexical
// pass. A failed tokenization downgrades to a warning rather than a hard
// error; the interpreter's own lint at load time is the authoritative
// check, this one is advisory.
func (c *Checker) CheckSyntax(path string) *Result {
	result := newResult()

	content, err := os.ReadFile(path)
	if err != nil {
		result.Errors = append(result.Errors, Finding{
			Type:       "file_not_found",
			Message:    "Module file not found.",
			Suggestion: "Make sure the file exists and is readable.",
		})
		return result
	}

	if err := tokenize(content); err != nil {
		result.Warnings = append(result.Warnings, Finding{
			Type:       "syntax_check_limited",
			Message:    "Syntax check limited. Module will be loaded anyway.",
			Suggestion: "Monitor for errors during use.",
		})
	}

	if shortTagPattern.Match(content) {
		result.Warnings = append(result.Warnings, Finding{
			Type:             "short_tags",
			Message:          "Short PHP tags detected. These may not work on all servers.",
			Suggestion:       "Replace short tags (<?) with full PHP tags (<?php).",
			AutoFixAvailable: true,
			AutoFixAction:    AutoFixShortTags,
		})
	}
	return result
}

// ScanContent runs the content check pipeline over the file and returns
// the combined findings. Findings here are a heuristic blocklist, not a
// security boundary; both false positives and negatives are possible.
func (c *Checker) ScanContent(path string) ([]Finding, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "analyzer: failed to read file for content scan")
	}
	findings := []Finding{}
	for _, check := range c.content {
		findings = append(findings, check.Run(content)...)
	}
	return findings, nil
}

// ScanModule runs all three checks against a registered module's file and
// logs a summary entry when hard errors are present.
func (c *Checker) ScanModule(moduleID string) (*ModuleReport, error) {
	var m models.Module
	if err := c.db.Where("module_id = ?", moduleID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrModuleNotFound
		}
		return nil, errors.Wrap(err, "analyzer: failed to load module for scan")
	}

	path := c.modulesDir + "/" + m.FilePath
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "analyzer: module file not found on disk")
	}

	security, err := c.ScanContent(path)
	if err != nil {
		return nil, err
	}
	report := &ModuleReport{
		Syntax:    c.CheckSyntax(path),
		Conflicts: c.CheckConflicts(path, moduleID),
		Security:  security,
	}

	if n := len(report.Syntax.Errors) + len(report.Conflicts.Errors); n > 0 {
		c.log.Error("Module scan found issues", m.Name, map[string]interface{}{
			"module_id":   moduleID,
			"error_count": n,
		})
	}
	return report, nil
}

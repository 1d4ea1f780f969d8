package loader

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/iancoleman/strcase"
)

// ModuleInfo is the metadata extracted from a module file's header block.
// The block is comment-embedded key:value text parsed by line patterns,
// never by executing the file.
type ModuleInfo struct {
	ModuleID    string
	Name        string
	Description string
	Version     string
	Author      string

	// Entrypoint is the symbol the module declares for its optional
	// self-registration hook. A bare "Entrypoint:" label with no value
	// selects the conventional name derived from the module id; a missing
	// label means the module is include-only.
	Entrypoint string
}

var headerPatterns = map[string]*regexp.Regexp{
	"module_id":   headerPattern("Module ID"),
	"name":        headerPattern("Module Name"),
	"description": headerPattern("Description"),
	"version":     headerPattern("Version"),
	"author":      headerPattern("Author"),
	"entrypoint":  headerPattern("Entrypoint"),
}

var entrypointLabel = regexp.MustCompile(`(?im)^[\s*#/]*Entrypoint:\s*$`)

func headerPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(label) + `:[ \t]*(.+)`)
}

var (
	moduleIDPattern   = "^[a-z0-9]+(-[a-z0-9]+)*$"
	entrypointPattern = "^[A-Za-z_][A-Za-z0-9_]*$"
)

// ParseModuleInfo extracts header metadata from a file. The two mandatory
// fields are Module ID and Module Name; their absence is an
// invalid_module error. The module id must be a well formed slug since it
// becomes a directory name.
func ParseModuleInfo(path string) (*ModuleInfo, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(CodeInvalidModule, "Unable to read module file.")
	}

	values := make(map[string]string)
	for key, p := range headerPatterns {
		if m := p.FindSubmatch(content); m != nil {
			values[key] = strings.TrimSpace(string(m[1]))
		}
	}

	if values["module_id"] == "" || values["name"] == "" {
		return nil, newError(CodeInvalidModule, "Invalid module file. Missing required headers (Module ID and Module Name).")
	}
	if !govalidator.Matches(values["module_id"], moduleIDPattern) {
		return nil, newError(CodeInvalidModule, "Module ID must be a lowercase slug (letters, digits, hyphens).")
	}

	info := &ModuleInfo{
		ModuleID:    values["module_id"],
		Name:        values["name"],
		Description: values["description"],
		Version:     values["version"],
		Author:      values["author"],
		Entrypoint:  values["entrypoint"],
	}
	if info.Version == "" {
		info.Version = "1.0.0"
	}
	// A bare Entrypoint label opts into the conventional symbol.
	if info.Entrypoint == "" && entrypointLabel.Match(content) {
		info.Entrypoint = ConventionalEntrypoint(info.ModuleID)
	}
	if info.Entrypoint != "" && !govalidator.Matches(info.Entrypoint, entrypointPattern) {
		return nil, newError(CodeInvalidModule, "Entrypoint must be a plain function name.")
	}
	return info, nil
}

// ConventionalEntrypoint derives the default self-registration symbol
// from a module id, e.g. "example-hello-world" -> "Example_Hello_World".
func ConventionalEntrypoint(moduleID string) string {
	parts := strings.Split(moduleID, "-")
	for i, p := range parts {
		parts[i] = strcase.ToCamel(p)
	}
	return strings.Join(parts, "_")
}

// FindMainFile locates the file carrying a recognized header block inside
// an extracted upload. The root is searched first, then one level of
// subdirectories, since authors commonly nest their module in a folder.
// Returns an empty string when nothing qualifies.
func FindMainFile(dir string) string {
	if f := findHeaderFile(dir); f != "" {
		return f
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if f := findHeaderFile(filepath.Join(dir, e.Name())); f != "" {
			return f
		}
	}
	return ""
}

var (
	headerIDProbe   = regexp.MustCompile(`(?i)Module\s+ID:`)
	headerNameProbe = regexp.MustCompile(`(?i)Module\s+Name:`)
)

func findHeaderFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".php") {
			continue
		}
		p := filepath.Join(dir, e.Name())
		content, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if headerIDProbe.Match(content) && headerNameProbe.Match(content) {
			return p
		}
	}
	return ""
}

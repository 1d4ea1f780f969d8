// Package host is the integration layer for the managed site. Everything
// the daemon knows about the site's content rows, options, and
// plugin/theme directories goes through here; the archive and optimizer
// never touch host state directly.
package host

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a host entity does not exist.
var ErrNotFound = errors.New("host: entity not found")

// Site provides access to one managed site: its content database and the
// plugin/theme/upload directories under the site root.
type Site struct {
	db   *gorm.DB
	root string
}

func NewSite(db *gorm.DB, root string) *Site {
	return &Site{db: db, root: root}
}

func (s *Site) PluginsDir() string { return filepath.Join(s.root, "plugins") }
func (s *Site) ThemesDir() string  { return filepath.Join(s.root, "themes") }
func (s *Site) UploadsDir() string { return filepath.Join(s.root, "uploads") }

// PluginPath resolves a plugin identifier ("dir/main.php" or "single.php")
// to the on-disk footprint that deletion would remove: the plugin's
// directory, or the single file for a directory-less plugin.
func (s *Site) PluginPath(pluginFile string) string {
	dir := filepath.Dir(pluginFile)
	if dir == "." {
		return filepath.Join(s.PluginsDir(), pluginFile)
	}
	return filepath.Join(s.PluginsDir(), dir)
}

// PluginSlug derives the slug used for heuristic table and option
// matching from a plugin identifier.
func PluginSlug(pluginFile string) string {
	dir := filepath.Dir(pluginFile)
	if dir != "." {
		return dir
	}
	return strings.TrimSuffix(filepath.Base(pluginFile), filepath.Ext(pluginFile))
}

// PluginInfo is descriptive metadata read from a plugin's header block.
type PluginInfo struct {
	Name        string
	Version     string
	Author      string
	Description string
}

var pluginHeaderPatterns = map[string]*regexp.Regexp{
	"name":        regexp.MustCompile(`(?i)Plugin Name:[ \t]*(.+)`),
	"version":     regexp.MustCompile(`(?i)Version:[ \t]*(.+)`),
	"author":      regexp.MustCompile(`(?i)Author:[ \t]*(.+)`),
	"description": regexp.MustCompile(`(?i)Description:[ \t]*(.+)`),
}

// ReadPluginInfo parses the header block of a plugin's main file. Missing
// fields are left empty; the caller decides whether that matters.
func (s *Site) ReadPluginInfo(pluginFile string) PluginInfo {
	info := PluginInfo{Name: PluginSlug(pluginFile)}
	content, err := os.ReadFile(filepath.Join(s.PluginsDir(), pluginFile))
	if err != nil {
		return info
	}
	values := make(map[string]string)
	for key, p := range pluginHeaderPatterns {
		if m := p.FindSubmatch(content); m != nil {
			values[key] = strings.TrimSpace(string(m[1]))
		}
	}
	if values["name"] != "" {
		info.Name = values["name"]
	}
	info.Version = values["version"]
	info.Author = values["author"]
	info.Description = values["description"]
	return info
}

const activePluginsOption = "active_plugins"

// ActivePlugins returns the site's active plugin identifiers.
func (s *Site) ActivePlugins() ([]string, error) {
	value, ok, err := s.GetOption(activePluginsOption)
	if err != nil || !ok || value == "" {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal([]byte(value), &out); err != nil {
		return nil, errors.Wrap(err, "host: malformed active_plugins option")
	}
	return out, nil
}

// DeactivatePlugin removes a plugin from the active list. Missing entries
// are a no-op.
func (s *Site) DeactivatePlugin(pluginFile string) error {
	return s.setPluginActive(pluginFile, false)
}

// ActivatePlugin adds a plugin to the active list.
func (s *Site) ActivatePlugin(pluginFile string) error {
	return s.setPluginActive(pluginFile, true)
}

func (s *Site) setPluginActive(pluginFile string, active bool) error {
	current, err := s.ActivePlugins()
	if err != nil {
		return err
	}
	out := make([]string, 0, len(current)+1)
	for _, p := range current {
		if p != pluginFile {
			out = append(out, p)
		}
	}
	if active {
		out = append(out, pluginFile)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return errors.Wrap(err, "host: failed to encode active_plugins")
	}
	return s.SetOption(activePluginsOption, string(raw))
}

// GetOption returns an option value and whether it exists.
func (s *Site) GetOption(name string) (string, bool, error) {
	var o Option
	if err := s.db.Where("name = ?", name).First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "host: failed to read option")
	}
	return o.Value, true, nil
}

// SetOption inserts or replaces an option.
func (s *Site) SetOption(name, value string) error {
	var o Option
	err := s.db.Where("name = ?", name).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.WrapIf(s.db.Create(&Option{Name: name, Value: value}).Error, "host: failed to create option")
	}
	if err != nil {
		return errors.Wrap(err, "host: failed to read option")
	}
	o.Value = value
	return errors.WrapIf(s.db.Save(&o).Error, "host: failed to update option")
}

// DeleteOption removes an option. Missing options are a no-op.
func (s *Site) DeleteOption(name string) error {
	return errors.WrapIf(s.db.Where("name = ?", name).Delete(&Option{}).Error, "host: failed to delete option")
}

// OptionsMatching returns every option whose name contains the given
// slug. This is a substring heuristic: it can both under- and over-match
// and its results should be previewed, never trusted as exhaustive.
func (s *Site) OptionsMatching(slug string) (map[string]string, error) {
	if slug == "" {
		return map[string]string{}, nil
	}
	var rows []Option
	pattern := "%" + strings.ReplaceAll(slug, "-", "_") + "%"
	if err := s.db.Where("name LIKE ? OR name LIKE ?", "%"+slug+"%", pattern).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "host: failed to match options")
	}
	out := make(map[string]string, len(rows))
	for _, o := range rows {
		out[o.Name] = o.Value
	}
	return out, nil
}

// TablesMatching dumps every user table whose name contains the slug.
// The same substring caveat as OptionsMatching applies. Core host tables
// are never matched.
func (s *Site) TablesMatching(slug string) ([]TableDump, error) {
	if slug == "" {
		return nil, nil
	}
	needle := strings.ReplaceAll(slug, "-", "_")

	var names []string
	err := s.db.Raw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? AND name NOT LIKE 'host_%' AND name NOT LIKE 'sqlite_%'",
		"%"+needle+"%",
	).Scan(&names).Error
	if err != nil {
		return nil, errors.Wrap(err, "host: failed to enumerate tables")
	}

	var dumps []TableDump
	for _, name := range names {
		if isDaemonTable(name) {
			continue
		}
		dump, err := s.dumpTable(name)
		if err != nil {
			return nil, err
		}
		dumps = append(dumps, dump)
	}
	return dumps, nil
}

// daemonTables are our own bookkeeping tables, excluded from heuristic
// matching so a module slug can never capture or drop them.
var daemonTables = map[string]struct{}{
	"modules": {}, "log_entries": {}, "archive_records": {}, "statistics": {},
}

func isDaemonTable(name string) bool {
	_, ok := daemonTables[name]
	return ok
}

func (s *Site) dumpTable(name string) (TableDump, error) {
	dump := TableDump{Name: name}

	if err := s.db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&dump.CreateSQL).Error; err != nil {
		return dump, errors.Wrap(err, "host: failed to read table schema")
	}
	rows := []map[string]interface{}{}
	if err := s.db.Raw(fmt.Sprintf("SELECT * FROM %q", name)).Scan(&rows).Error; err != nil {
		return dump, errors.Wrap(err, "host: failed to dump table rows")
	}
	dump.Rows = rows
	return dump, nil
}

// DropTable removes a table previously matched by TablesMatching. The
// daemon table guard applies here too.
func (s *Site) DropTable(name string) error {
	if isDaemonTable(name) || strings.HasPrefix(name, "host_") || strings.HasPrefix(name, "sqlite_") {
		return errors.New("host: refusing to drop protected table " + name)
	}
	return errors.WrapIf(s.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", name)).Error, "host: failed to drop table")
}

// RestoreTable recreates a dumped table and reinserts its rows. An
// existing table with the same name is left untouched.
func (s *Site) RestoreTable(dump TableDump) error {
	if dump.CreateSQL == "" {
		return errors.New("host: table dump has no schema")
	}
	var n int64
	if err := s.db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", dump.Name).Scan(&n).Error; err != nil {
		return errors.Wrap(err, "host: failed to check table existence")
	}
	if n > 0 {
		return nil
	}
	if err := s.db.Exec(dump.CreateSQL).Error; err != nil {
		return errors.Wrap(err, "host: failed to recreate table")
	}
	for _, row := range dump.Rows {
		if err := s.db.Table(dump.Name).Create(row).Error; err != nil {
			return errors.Wrap(err, "host: failed to reinsert table row")
		}
	}
	return nil
}

package archive

import (
	"io"
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/goccy/go-json"

	"github.com/onyxcmd/onyxd/host"
	"github.com/onyxcmd/onyxd/internal/models"
)

// pluginPayload is the structured deleted_data for a plugin record.
type pluginPayload struct {
	PluginFile string            `json:"plugin_file"`
	WasActive  bool              `json:"was_active"`
	Tables     []host.TableDump  `json:"tables,omitempty"`
	Options    map[string]string `json:"options,omitempty"`
}

// CompletePreview lists what a complete deletion would additionally
// remove: the heuristically matched tables and options. The match is a
// substring heuristic and must be shown to the operator before the
// destructive action, never applied silently.
type CompletePreview struct {
	Tables  []string          `json:"tables"`
	Options map[string]string `json:"options"`
}

// PreviewCompleteDelete returns the tables and options a complete plugin
// deletion would capture and drop.
func (a *Archive) PreviewCompleteDelete(pluginFile string) (*CompletePreview, error) {
	slug := host.PluginSlug(pluginFile)
	dumps, err := a.site.TablesMatching(slug)
	if err != nil {
		return nil, err
	}
	options, err := a.site.OptionsMatching(slug)
	if err != nil {
		return nil, err
	}
	preview := &CompletePreview{Tables: []string{}, Options: options}
	for _, d := range dumps {
		preview.Tables = append(preview.Tables, d.Name)
	}
	return preview, nil
}

// ArchivePlugin snapshots a plugin and then deletes it. With
// completeDelete the heuristically matched tables and options are
// captured into the record and dropped as well. Any failure before the
// destructive phase aborts with the original untouched.
func (a *Archive) ArchivePlugin(pluginFile string, completeDelete bool, deletedBy string) (*models.ArchiveRecord, error) {
	footprint := a.site.PluginPath(pluginFile)
	if _, err := os.Stat(footprint); err != nil {
		return nil, errors.Wrap(err, "archive: plugin footprint not found")
	}

	if existing, err := a.activeRecord(models.ItemTypePlugin, pluginFile); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	slug := host.PluginSlug(pluginFile)
	info := a.site.ReadPluginInfo(pluginFile)

	active, err := a.site.ActivePlugins()
	if err != nil {
		return nil, err
	}
	wasActive := false
	for _, p := range active {
		if p == pluginFile {
			wasActive = true
			break
		}
	}

	payload := pluginPayload{PluginFile: pluginFile, WasActive: wasActive}
	if completeDelete {
		if payload.Tables, err = a.site.TablesMatching(slug); err != nil {
			return nil, err
		}
		if payload.Options, err = a.site.OptionsMatching(slug); err != nil {
			return nil, err
		}
	}

	// Copy before anything is deleted.
	snapshot := a.snapshotDir(models.ItemTypePlugin, slug)
	if err := copyFootprint(footprint, snapshot); err != nil {
		_ = os.RemoveAll(snapshot)
		return nil, errors.Wrap(err, "archive: failed to copy plugin footprint")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		_ = os.RemoveAll(snapshot)
		return nil, errors.Wrap(err, "archive: failed to encode plugin payload")
	}

	size, count := footprintStats(snapshot)
	deleteType := models.DeleteTypeFilesOnly
	if completeDelete {
		deleteType = models.DeleteTypeComplete
	}
	record := &models.ArchiveRecord{
		ItemType:        models.ItemTypePlugin,
		ItemID:          pluginFile,
		ItemName:        info.Name,
		ItemSlug:        slug,
		ItemVersion:     info.Version,
		ItemAuthor:      info.Author,
		ItemDescription: info.Description,
		ArchivePath:     snapshot,
		OriginalPath:    footprint,
		FileSize:        size,
		FileCount:       count,
		DeletedData:     string(raw),
		DeleteType:      deleteType,
		DeletedBy:       deletedBy,
	}
	if err := a.createRecord(record); err != nil {
		_ = os.RemoveAll(snapshot)
		return nil, err
	}

	// Destructive phase. The snapshot and record exist; a failure past
	// this point leaves a redundant original, never a lost one.
	if wasActive {
		if err := a.site.DeactivatePlugin(pluginFile); err != nil {
			return nil, err
		}
	}
	if completeDelete {
		for _, t := range payload.Tables {
			if err := a.site.DropTable(t.Name); err != nil {
				return nil, err
			}
		}
		for name := range payload.Options {
			if err := a.site.DeleteOption(name); err != nil {
				return nil, err
			}
		}
	}
	if err := os.RemoveAll(footprint); err != nil {
		return nil, errors.Wrap(err, "archive: failed to delete plugin files")
	}

	a.log.Info("Plugin archived", info.Name, map[string]interface{}{
		"item_id":     pluginFile,
		"delete_type": deleteType,
		"file_count":  count,
	})
	return record, nil
}

// restorePlugin copies the snapshot back, reapplies captured options and
// tables, and reactivates the plugin if it was active at deletion time.
func (a *Archive) restorePlugin(r *models.ArchiveRecord) error {
	if _, err := os.Stat(r.ArchivePath); err != nil {
		return errors.Wrap(err, "archive: snapshot files are missing")
	}
	if _, err := os.Stat(r.OriginalPath); err == nil {
		return errors.New("archive: a plugin already exists at the original location")
	}

	var payload pluginPayload
	if err := json.Unmarshal([]byte(r.DeletedData), &payload); err != nil {
		return errors.Wrap(err, "archive: malformed plugin payload")
	}

	if err := copyFootprint(r.ArchivePath, r.OriginalPath); err != nil {
		_ = os.RemoveAll(r.OriginalPath)
		return errors.Wrap(err, "archive: failed to copy plugin files back")
	}

	// The record stays archived on any failure past this point, so the
	// copied tree must come back out or a retry would refuse to run.
	for _, dump := range payload.Tables {
		if err := a.site.RestoreTable(dump); err != nil {
			_ = os.RemoveAll(r.OriginalPath)
			return err
		}
	}
	for name, value := range payload.Options {
		if err := a.site.SetOption(name, value); err != nil {
			_ = os.RemoveAll(r.OriginalPath)
			return err
		}
	}
	if payload.WasActive {
		if err := a.site.ActivatePlugin(payload.PluginFile); err != nil {
			_ = os.RemoveAll(r.OriginalPath)
			return err
		}
	}
	return nil
}

// copyFootprint copies a file or directory tree to dst. The snapshot was
// written with the same routine, so restore is symmetric.
func copyFootprint(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return copyFile(src, dst)
	}
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

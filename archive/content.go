package archive

import (
	"os"
	"path/filepath"
	"strconv"

	"emperror.dev/errors"
	"github.com/goccy/go-json"

	"github.com/onyxcmd/onyxd/host"
	"github.com/onyxcmd/onyxd/internal/models"
)

type postPayload struct {
	Post     host.Post         `json:"post"`
	Meta     map[string]string `json:"meta,omitempty"`
	Comments []host.Comment    `json:"comments,omitempty"`
}

type mediaPayload struct {
	Post host.Post         `json:"post"`
	Meta map[string]string `json:"meta,omitempty"`
	File string            `json:"file,omitempty"`
}

type userPayload struct {
	User host.User         `json:"user"`
	Meta map[string]string `json:"meta,omitempty"`
}

// ArchivePost captures a post or page together with its meta and
// comments, then hard-deletes it. Trashing is routed here too; the
// archive replaces the host's native trash state entirely.
func (a *Archive) ArchivePost(id uint, deletedBy string) (*models.ArchiveRecord, error) {
	p, err := a.site.GetPost(id)
	if err != nil {
		return nil, err
	}

	itemType := models.ItemTypePost
	if p.PostType == host.PostTypePage {
		itemType = models.ItemTypePage
	}
	itemID := strconv.FormatUint(uint64(id), 10)

	if existing, err := a.activeRecord(itemType, itemID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	meta, err := a.site.PostMetaFor(id)
	if err != nil {
		return nil, err
	}
	comments, err := a.site.CommentsFor(id)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(postPayload{Post: *p, Meta: meta, Comments: comments})
	if err != nil {
		return nil, errors.Wrap(err, "archive: failed to encode post payload")
	}

	record := &models.ArchiveRecord{
		ItemType:    itemType,
		ItemID:      itemID,
		ItemName:    p.Title,
		ItemSlug:    p.Slug,
		ItemAuthor:  p.Author,
		DeletedData: string(raw),
		DeleteType:  models.DeleteTypeComplete,
		DeletedBy:   deletedBy,
	}
	if err := a.createRecord(record); err != nil {
		return nil, err
	}

	for _, c := range comments {
		if err := a.site.DeleteComment(c.ID); err != nil && !errors.Is(err, host.ErrNotFound) {
			return nil, err
		}
	}
	if err := a.site.DeletePost(id); err != nil {
		return nil, err
	}

	a.log.Info("Content archived", p.Title, map[string]interface{}{
		"item_type": itemType,
		"item_id":   itemID,
	})
	return record, nil
}

func (a *Archive) restorePost(r *models.ArchiveRecord) error {
	var payload postPayload
	if err := json.Unmarshal([]byte(r.DeletedData), &payload); err != nil {
		return errors.Wrap(err, "archive: malformed post payload")
	}

	if _, err := a.site.GetPost(payload.Post.ID); err == nil {
		return errors.New("archive: a post already exists with the original id")
	}
	if err := a.site.InsertPost(&payload.Post); err != nil {
		return err
	}
	if len(payload.Meta) > 0 {
		if err := a.site.SetPostMeta(payload.Post.ID, payload.Meta); err != nil {
			return err
		}
	}
	for i := range payload.Comments {
		if err := a.site.InsertComment(&payload.Comments[i]); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveMedia captures an attachment row, its meta, and its file under
// the uploads directory, then deletes all three.
func (a *Archive) ArchiveMedia(id uint, deletedBy string) (*models.ArchiveRecord, error) {
	p, err := a.site.GetPost(id)
	if err != nil {
		return nil, err
	}
	itemID := strconv.FormatUint(uint64(id), 10)

	if existing, err := a.activeRecord(models.ItemTypeMedia, itemID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	meta, err := a.site.PostMetaFor(id)
	if err != nil {
		return nil, err
	}

	file := meta[host.AttachedFileMetaKey]
	var snapshot, original string
	var size int64
	var count int
	if file != "" {
		original = filepath.Join(a.site.UploadsDir(), file)
		if _, err := os.Stat(original); err != nil {
			return nil, errors.Wrap(err, "archive: media file not found")
		}
		snapshot = a.snapshotDir(models.ItemTypeMedia, p.Slug)
		if err := copyFootprint(original, filepath.Join(snapshot, filepath.Base(file))); err != nil {
			_ = os.RemoveAll(snapshot)
			return nil, errors.Wrap(err, "archive: failed to copy media file")
		}
		size, count = footprintStats(snapshot)
	}

	raw, err := json.Marshal(mediaPayload{Post: *p, Meta: meta, File: file})
	if err != nil {
		_ = os.RemoveAll(snapshot)
		return nil, errors.Wrap(err, "archive: failed to encode media payload")
	}

	record := &models.ArchiveRecord{
		ItemType:     models.ItemTypeMedia,
		ItemID:       itemID,
		ItemName:     p.Title,
		ItemSlug:     p.Slug,
		ArchivePath:  snapshot,
		OriginalPath: original,
		FileSize:     size,
		FileCount:    count,
		DeletedData:  string(raw),
		DeleteType:   models.DeleteTypeComplete,
		DeletedBy:    deletedBy,
	}
	if err := a.createRecord(record); err != nil {
		_ = os.RemoveAll(snapshot)
		return nil, err
	}

	if err := a.site.DeletePost(id); err != nil {
		return nil, err
	}
	if original != "" {
		if err := os.Remove(original); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "archive: failed to delete media file")
		}
	}

	a.log.Info("Media archived", p.Title, map[string]interface{}{"item_id": itemID})
	return record, nil
}

func (a *Archive) restoreMedia(r *models.ArchiveRecord) error {
	var payload mediaPayload
	if err := json.Unmarshal([]byte(r.DeletedData), &payload); err != nil {
		return errors.Wrap(err, "archive: malformed media payload")
	}

	if payload.File != "" {
		src := filepath.Join(r.ArchivePath, filepath.Base(payload.File))
		if _, err := os.Stat(src); err != nil {
			return errors.Wrap(err, "archive: snapshot files are missing")
		}
		if err := copyFootprint(src, filepath.Join(a.site.UploadsDir(), payload.File)); err != nil {
			return errors.Wrap(err, "archive: failed to copy media file back")
		}
	}

	if _, err := a.site.GetPost(payload.Post.ID); err == nil {
		return errors.New("archive: an attachment already exists with the original id")
	}
	if err := a.site.InsertPost(&payload.Post); err != nil {
		return err
	}
	if len(payload.Meta) > 0 {
		if err := a.site.SetPostMeta(payload.Post.ID, payload.Meta); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveComment captures a single comment row and deletes it.
func (a *Archive) ArchiveComment(id uint, deletedBy string) (*models.ArchiveRecord, error) {
	c, err := a.site.GetComment(id)
	if err != nil {
		return nil, err
	}
	itemID := strconv.FormatUint(uint64(id), 10)

	if existing, err := a.activeRecord(models.ItemTypeComment, itemID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "archive: failed to encode comment payload")
	}

	record := &models.ArchiveRecord{
		ItemType:    models.ItemTypeComment,
		ItemID:      itemID,
		ItemName:    "Comment by " + c.AuthorName,
		ItemAuthor:  c.AuthorName,
		DeletedData: string(raw),
		DeleteType:  models.DeleteTypeComplete,
		DeletedBy:   deletedBy,
	}
	if err := a.createRecord(record); err != nil {
		return nil, err
	}
	if err := a.site.DeleteComment(id); err != nil {
		return nil, err
	}

	a.log.Info("Comment archived", record.ItemName, map[string]interface{}{"item_id": itemID})
	return record, nil
}

func (a *Archive) restoreComment(r *models.ArchiveRecord) error {
	var c host.Comment
	if err := json.Unmarshal([]byte(r.DeletedData), &c); err != nil {
		return errors.Wrap(err, "archive: malformed comment payload")
	}
	if _, err := a.site.GetComment(c.ID); err == nil {
		return errors.New("archive: a comment already exists with the original id")
	}
	return a.site.InsertComment(&c)
}

// ArchiveUser captures a user account with its meta and deletes it.
func (a *Archive) ArchiveUser(id uint, deletedBy string) (*models.ArchiveRecord, error) {
	u, err := a.site.GetUser(id)
	if err != nil {
		return nil, err
	}
	itemID := strconv.FormatUint(uint64(id), 10)

	if existing, err := a.activeRecord(models.ItemTypeUser, itemID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	meta, err := a.site.UserMetaFor(id)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(userPayload{User: *u, Meta: meta})
	if err != nil {
		return nil, errors.Wrap(err, "archive: failed to encode user payload")
	}

	record := &models.ArchiveRecord{
		ItemType:    models.ItemTypeUser,
		ItemID:      itemID,
		ItemName:    u.DisplayName,
		ItemSlug:    u.Login,
		DeletedData: string(raw),
		DeleteType:  models.DeleteTypeComplete,
		DeletedBy:   deletedBy,
	}
	if err := a.createRecord(record); err != nil {
		return nil, err
	}
	if err := a.site.DeleteUser(id); err != nil {
		return nil, err
	}

	a.log.Info("User archived", u.Login, map[string]interface{}{"item_id": itemID})
	return record, nil
}

func (a *Archive) restoreUser(r *models.ArchiveRecord) error {
	var payload userPayload
	if err := json.Unmarshal([]byte(r.DeletedData), &payload); err != nil {
		return errors.Wrap(err, "archive: malformed user payload")
	}
	if _, err := a.site.GetUser(payload.User.ID); err == nil {
		return errors.New("archive: a user already exists with the original id")
	}
	if err := a.site.InsertUser(&payload.User); err != nil {
		return err
	}
	if len(payload.Meta) > 0 {
		return a.site.SetUserMeta(payload.User.ID, payload.Meta)
	}
	return nil
}

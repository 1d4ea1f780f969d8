package archive

import (
	"github.com/onyxcmd/onyxd/internal/models"
)

// RestoreItem reconstructs an archived entity. The record is marked
// restored and its snapshot deleted only after the type-specific
// reconstruction succeeded; a failed restore leaves the record archived
// and cleans up any files it copied back, so the action can be retried.
func (a *Archive) RestoreItem(id uint) (*models.ArchiveRecord, error) {
	r, err := a.Get(id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.ArchiveStatusArchived {
		return nil, ErrNotArchived
	}

	switch r.ItemType {
	case models.ItemTypePlugin:
		err = a.restorePlugin(r)
	case models.ItemTypeTheme:
		err = a.restoreTheme(r)
	case models.ItemTypePost, models.ItemTypePage:
		err = a.restorePost(r)
	case models.ItemTypeMedia:
		err = a.restoreMedia(r)
	case models.ItemTypeComment:
		err = a.restoreComment(r)
	case models.ItemTypeUser:
		err = a.restoreUser(r)
	default:
		return nil, ErrUnknownType
	}
	if err != nil {
		a.log.Error("Archive restore failed", r.ItemName, map[string]interface{}{
			"item_type": r.ItemType,
			"item_id":   r.ItemID,
			"error":     err.Error(),
		})
		return nil, err
	}

	if err := a.markRestored(r); err != nil {
		return nil, err
	}
	return r, nil
}

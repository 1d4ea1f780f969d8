package host

import (
	"emperror.dev/errors"
	"gorm.io/gorm"
)

// AttachedFileMetaKey is the post meta key holding a media attachment's
// file path relative to the uploads directory.
const AttachedFileMetaKey = "_attached_file"

// GetPost returns a content row of any post type.
func (s *Site) GetPost(id uint) (*Post, error) {
	var p Post
	if err := s.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "host: failed to read post")
	}
	return &p, nil
}

// InsertPost creates a content row. The caller may set the ID to restore
// a previously deleted row under its original identity.
func (s *Site) InsertPost(p *Post) error {
	return errors.WrapIf(s.db.Create(p).Error, "host: failed to insert post")
}

// DeletePost removes a content row and its meta.
func (s *Site) DeletePost(id uint) error {
	if err := s.db.Where("post_id = ?", id).Delete(&PostMeta{}).Error; err != nil {
		return errors.Wrap(err, "host: failed to delete post meta")
	}
	res := s.db.Delete(&Post{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "host: failed to delete post")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PostMetaFor returns all meta rows for a post as a map.
func (s *Site) PostMetaFor(id uint) (map[string]string, error) {
	var rows []PostMeta
	if err := s.db.Where("post_id = ?", id).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "host: failed to read post meta")
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.MetaKey] = r.MetaValue
	}
	return out, nil
}

// SetPostMeta writes meta rows for a post, replacing existing keys.
func (s *Site) SetPostMeta(id uint, meta map[string]string) error {
	for key, value := range meta {
		var row PostMeta
		err := s.db.Where("post_id = ? AND meta_key = ?", id, key).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := s.db.Create(&PostMeta{PostID: id, MetaKey: key, MetaValue: value}).Error; err != nil {
				return errors.Wrap(err, "host: failed to create post meta")
			}
			continue
		}
		if err != nil {
			return errors.Wrap(err, "host: failed to read post meta")
		}
		row.MetaValue = value
		if err := s.db.Save(&row).Error; err != nil {
			return errors.Wrap(err, "host: failed to update post meta")
		}
	}
	return nil
}

// CommentsFor returns every comment attached to a post.
func (s *Site) CommentsFor(postID uint) ([]Comment, error) {
	var rows []Comment
	if err := s.db.Where("post_id = ?", postID).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "host: failed to read comments")
	}
	return rows, nil
}

// GetComment returns a single comment row.
func (s *Site) GetComment(id uint) (*Comment, error) {
	var c Comment
	if err := s.db.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "host: failed to read comment")
	}
	return &c, nil
}

// InsertComment creates a comment row, honoring a preset ID.
func (s *Site) InsertComment(c *Comment) error {
	return errors.WrapIf(s.db.Create(c).Error, "host: failed to insert comment")
}

// DeleteComment removes a comment row.
func (s *Site) DeleteComment(id uint) error {
	res := s.db.Delete(&Comment{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "host: failed to delete comment")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUser returns a user account row.
func (s *Site) GetUser(id uint) (*User, error) {
	var u User
	if err := s.db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "host: failed to read user")
	}
	return &u, nil
}

// InsertUser creates a user row, honoring a preset ID.
func (s *Site) InsertUser(u *User) error {
	return errors.WrapIf(s.db.Create(u).Error, "host: failed to insert user")
}

// DeleteUser removes a user row and its meta.
func (s *Site) DeleteUser(id uint) error {
	if err := s.db.Where("user_id = ?", id).Delete(&UserMeta{}).Error; err != nil {
		return errors.Wrap(err, "host: failed to delete user meta")
	}
	res := s.db.Delete(&User{}, id)
	if res.Error != nil {
		return errors.Wrap(res.Error, "host: failed to delete user")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UserMetaFor returns all meta rows for a user as a map.
func (s *Site) UserMetaFor(id uint) (map[string]string, error) {
	var rows []UserMeta
	if err := s.db.Where("user_id = ?", id).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "host: failed to read user meta")
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.MetaKey] = r.MetaValue
	}
	return out, nil
}

// SetUserMeta writes meta rows for a user, replacing existing keys.
func (s *Site) SetUserMeta(id uint, meta map[string]string) error {
	for key, value := range meta {
		var row UserMeta
		err := s.db.Where("user_id = ? AND meta_key = ?", id, key).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := s.db.Create(&UserMeta{UserID: id, MetaKey: key, MetaValue: value}).Error; err != nil {
				return errors.Wrap(err, "host: failed to create user meta")
			}
			continue
		}
		if err != nil {
			return errors.Wrap(err, "host: failed to read user meta")
		}
		row.MetaValue = value
		if err := s.db.Save(&row).Error; err != nil {
			return errors.Wrap(err, "host: failed to update user meta")
		}
	}
	return nil
}

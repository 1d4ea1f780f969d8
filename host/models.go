package host

import (
	"time"
)

// Post is a host content row. Pages and media attachments share the table
// and are distinguished by PostType, mirroring how the host platform
// stores them.
type Post struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	PostType  string    `gorm:"index;default:post" json:"post_type"`
	Title     string    `json:"title"`
	Content   string    `gorm:"type:text" json:"content"`
	Excerpt   string    `gorm:"type:text" json:"excerpt,omitempty"`
	Slug      string    `gorm:"index" json:"slug"`
	Status    string    `gorm:"default:publish" json:"status"`
	Author    string    `json:"author,omitempty"`
	GUID      string    `json:"guid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Post) TableName() string { return "host_posts" }

const (
	PostTypePost  = "post"
	PostTypePage  = "page"
	PostTypeMedia = "attachment"
)

// PostMeta is one key/value row attached to a post.
type PostMeta struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	PostID    uint   `gorm:"index;not null" json:"post_id"`
	MetaKey   string `gorm:"index" json:"meta_key"`
	MetaValue string `gorm:"type:text" json:"meta_value"`
}

func (PostMeta) TableName() string { return "host_post_meta" }

// Comment is a host comment row.
type Comment struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	PostID      uint      `gorm:"index" json:"post_id"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email,omitempty"`
	Content     string    `gorm:"type:text" json:"content"`
	Approved    bool      `gorm:"default:true" json:"approved"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Comment) TableName() string { return "host_comments" }

// User is a host user account row.
type User struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Login       string    `gorm:"uniqueIndex;not null" json:"login"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `gorm:"default:subscriber" json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

func (User) TableName() string { return "host_users" }

// UserMeta is one key/value row attached to a user.
type UserMeta struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	UserID    uint   `gorm:"index;not null" json:"user_id"`
	MetaKey   string `gorm:"index" json:"meta_key"`
	MetaValue string `gorm:"type:text" json:"meta_value"`
}

func (UserMeta) TableName() string { return "host_user_meta" }

// Option is a host configuration option row.
type Option struct {
	ID    uint   `gorm:"primarykey" json:"id"`
	Name  string `gorm:"uniqueIndex;not null" json:"name"`
	Value string `gorm:"type:text" json:"value"`
}

func (Option) TableName() string { return "host_options" }

// Models returns every host table for migration.
func Models() []interface{} {
	return []interface{}{
		&Post{}, &PostMeta{}, &Comment{}, &User{}, &UserMeta{}, &Option{},
	}
}

// TableDump is a captured copy of one database table: its creation DDL
// and every row, enough to recreate it verbatim.
type TableDump struct {
	Name      string                   `json:"name"`
	CreateSQL string                   `json:"create_sql"`
	Rows      []map[string]interface{} `json:"rows"`
}

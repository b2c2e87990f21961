package media

import (
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

// Visibilities
const (
	VisibilityPublic       = "PUBLIC"
	VisibilityStaff        = "STAFF"
	VisibilityStaffStudent = "STAFF_STUDENT"
)

// OwnerKind is the kind of object a media is attached to.
type OwnerKind string

const (
	OwnerPartner     OwnerKind = "partner"
	OwnerPartnership OwnerKind = "partnership"
)

type Owner struct {
	Kind OwnerKind
	ID   int
}

type Media struct {
	ID                int       `json:"id"`
	UUID              string    `json:"uuid"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	URL               string    `json:"url"`
	FileKey           string    `json:"-"`
	FileName          string    `json:"file_name"`
	ContentType       string    `json:"content_type"`
	FileSize          int64     `json:"file_size"`
	TypeID            *int      `json:"type_id"`
	TypeCode          string    `json:"type_code,omitempty"`
	IsVisibleInPortal bool      `json:"is_visible_in_portal"`
	Visibility        string    `json:"visibility"`
	AuthorID          int       `json:"author_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (m Media) HasFile() bool {
	return m.FileKey != ""
}

// Extension returns the lowercased extension of the file, without the dot.
func (m Media) Extension() string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(m.FileName), "."))
}

// IsPublic reports whether anonymous users may see and download the media.
func (m Media) IsPublic() bool {
	return m.Visibility == VisibilityPublic
}

// Upload is a file sent along a media.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// MediaData contains the editable fields of a Media.
type MediaData struct {
	Name              string `json:"name" form:"name" validate:"required,max=255"`
	Description       string `json:"description" form:"description"`
	URL               string `json:"url" form:"url" validate:"omitempty,url,max=255"`
	TypeID            *int   `json:"type_id" form:"type_id"`
	IsVisibleInPortal bool   `json:"is_visible_in_portal" form:"is_visible_in_portal"`
	Visibility        string `json:"visibility" form:"visibility" validate:"required,oneof=PUBLIC STAFF STAFF_STUDENT"`
}

func (md *MediaData) Validate(validate *validator.Validate) error {
	md.Name = core.CleanString(md.Name)
	md.URL = core.CleanString(md.URL)
	return validate.Struct(md)
}

package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
)

var mediaColumns = []string{
	"m.id", "m.uuid", "m.name", "m.description", "m.url", "m.file_key", "m.file_name", "m.content_type",
	"m.file_size", "m.type_id", "COALESCE(mt.code, '') AS type_code", "m.is_visible_in_portal", "m.visibility",
	"m.author_id", "m.created_at", "m.updated_at",
}

type mediaRow struct {
	OwnerID           int       `db:"owner_id"`
	ID                int       `db:"id"`
	UUID              string    `db:"uuid"`
	Name              string    `db:"name"`
	Description       string    `db:"description"`
	URL               string    `db:"url"`
	FileKey           string    `db:"file_key"`
	FileName          string    `db:"file_name"`
	ContentType       string    `db:"content_type"`
	FileSize          int64     `db:"file_size"`
	TypeID            null.Int  `db:"type_id"`
	TypeCode          string    `db:"type_code"`
	IsVisibleInPortal bool      `db:"is_visible_in_portal"`
	Visibility        string    `db:"visibility"`
	AuthorID          int       `db:"author_id"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r mediaRow) media() media.Media {
	return media.Media{
		ID:                r.ID,
		UUID:              r.UUID,
		Name:              r.Name,
		Description:       r.Description,
		URL:               r.URL,
		FileKey:           r.FileKey,
		FileName:          r.FileName,
		ContentType:       r.ContentType,
		FileSize:          r.FileSize,
		TypeID:            intPtr(r.TypeID),
		TypeCode:          r.TypeCode,
		IsVisibleInPortal: r.IsVisibleInPortal,
		Visibility:        r.Visibility,
		AuthorID:          r.AuthorID,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func mediaValues(m media.Media) map[string]interface{} {
	return map[string]interface{}{
		"uuid":                 m.UUID,
		"name":                 m.Name,
		"description":          m.Description,
		"url":                  m.URL,
		"file_key":             m.FileKey,
		"file_name":            m.FileName,
		"content_type":         m.ContentType,
		"file_size":            m.FileSize,
		"type_id":              null.IntFromPtr(m.TypeID),
		"is_visible_in_portal": m.IsVisibleInPortal,
		"visibility":           m.Visibility,
		"author_id":            m.AuthorID,
		"created_at":           m.CreatedAt.UTC(),
		"updated_at":           m.UpdatedAt.UTC(),
	}
}

func selectMedias() sq.SelectBuilder {
	return psql.Select(mediaColumns...).From("media m").LeftJoin("media_type mt ON mt.id = m.type_id")
}

// ownerTable returns the link table and owner column of the owner kind.
func ownerTable(kind media.OwnerKind) (string, string, error) {
	switch kind {
	case media.OwnerPartner:
		return "partner_medias", "partner_id", nil
	case media.OwnerPartnership:
		return "partnership_medias", "partnership_id", nil
	}
	return "", "", errors.Errorf("unknown media owner %q", kind)
}

func insertMedia(ctx context.Context, exe core.DBExecutor, m media.Media) (media.Media, error) {
	id, err := insertID(ctx, exe, psql.Insert("media").SetMap(mediaValues(m)))
	if err != nil {
		return media.Media{}, errors.Wrap(err, "inserting media")
	}
	m.ID = id
	return m, nil
}

func updateMedia(ctx context.Context, exe core.DBExecutor, m media.Media) (media.Media, error) {
	values := mediaValues(m)
	delete(values, "created_at")
	delete(values, "author_id")
	res, err := execute(ctx, exe, psql.Update("media").SetMap(values).Where(sq.Eq{"id": m.ID}))
	if err = mustAffect(res, err, media.ErrNotFound); err != nil {
		return media.Media{}, trapNoRowsErr(err, media.ErrNotFound, "updating media")
	}
	return m, nil
}

func getMedia(ctx context.Context, exe core.DBExecutor, id int, uid string) (media.Media, error) {
	q := selectMedias()
	if id != 0 {
		q = q.Where(sq.Eq{"m.id": id})
	} else {
		q = q.Where(sq.Eq{"m.uuid": uid})
	}
	var r mediaRow
	if err := get(ctx, exe, &r, q); err != nil {
		return media.Media{}, trapNoRowsErr(err, media.ErrNotFound, "getting media")
	}
	return r.media(), nil
}

type mediaRepository struct {
	repository
}

var _ media.Repository = (*mediaRepository)(nil)

func NewMediaRepository(db core.DB) media.Repository {
	return &mediaRepository{repository{db: db}}
}

func (repo mediaRepository) CreateMedia(ctx context.Context, m media.Media, owner *media.Owner, exec ...core.DBExecutor) (media.Media, error) {
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		var err error
		if m, err = insertMedia(ctx, exe, m); err != nil {
			return err
		}
		if owner == nil {
			return nil
		}
		table, col, err := ownerTable(owner.Kind)
		if err != nil {
			return err
		}
		_, err = execute(ctx, exe, psql.Insert(table).Columns(col, "media_id").Values(owner.ID, m.ID))
		return errors.Wrap(err, "attaching media")
	})
	if err != nil {
		return media.Media{}, err
	}
	return getMedia(ctx, repo.getExec(exec), m.ID, "")
}

func (repo mediaRepository) GetMedia(ctx context.Context, id int, uid string, exec ...core.DBExecutor) (media.Media, error) {
	return getMedia(ctx, repo.getExec(exec), id, uid)
}

func (repo mediaRepository) QueryMedias(ctx context.Context, owner media.Owner, exec ...core.DBExecutor) ([]media.Media, error) {
	table, col, err := ownerTable(owner.Kind)
	if err != nil {
		return nil, err
	}
	q := selectMedias().
		Join(table + " o ON o.media_id = m.id").
		Where(sq.Eq{"o." + col: owner.ID}).
		OrderBy("m.name", "m.id")

	var rows []mediaRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying medias")
	}
	medias := make([]media.Media, 0, len(rows))
	for _, r := range rows {
		medias = append(medias, r.media())
	}
	return medias, nil
}

func (repo mediaRepository) IsAttached(ctx context.Context, mediaID int, owner media.Owner, exec ...core.DBExecutor) (bool, error) {
	table, col, err := ownerTable(owner.Kind)
	if err != nil {
		return false, err
	}
	var ok bool
	q := psql.Select("1").From(table).Where(sq.Eq{col: owner.ID, "media_id": mediaID}).Prefix("SELECT EXISTS (").Suffix(")")
	err = get(ctx, repo.getExec(exec), &ok, q)
	return ok, errors.Wrap(err, "checking media owner")
}

func (repo mediaRepository) UpdateMedia(ctx context.Context, m media.Media, exec ...core.DBExecutor) (media.Media, error) {
	if _, err := updateMedia(ctx, repo.getExec(exec), m); err != nil {
		return media.Media{}, err
	}
	return getMedia(ctx, repo.getExec(exec), m.ID, "")
}

func (repo mediaRepository) DeleteMedia(ctx context.Context, id int, exec ...core.DBExecutor) error {
	res, err := execute(ctx, repo.getExec(exec), psql.Delete("media").Where(sq.Eq{"id": id}))
	if err = mustAffect(res, err, media.ErrNotFound); err != nil {
		if isForeignKeyViolation(err) {
			return core.NewValidationError(errors.New("media is used by an agreement"))
		}
		return trapNoRowsErr(err, media.ErrNotFound, "deleting media")
	}
	return nil
}

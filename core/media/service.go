package media

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

var (
	ErrNotFound = errors.New("media not found")

	errURLOrFileRequired = "url or file is required"
)

type (
	// FileStore stores the files of medias.
	FileStore interface {
		Put(ctx context.Context, key string, content io.Reader, size int64, contentType string) error
		Get(ctx context.Context, key string) (io.ReadCloser, error)
		Delete(ctx context.Context, key string) error
	}

	Repository interface {
		// CreateMedia inserts the media and, when owner is given, attaches it to the owner.
		CreateMedia(ctx context.Context, m Media, owner *Owner, exec ...core.DBExecutor) (Media, error)
		GetMedia(ctx context.Context, id int, uid string, exec ...core.DBExecutor) (Media, error)
		QueryMedias(ctx context.Context, owner Owner, exec ...core.DBExecutor) ([]Media, error)
		// IsAttached reports whether the media belongs to the owner.
		IsAttached(ctx context.Context, mediaID int, owner Owner, exec ...core.DBExecutor) (bool, error)
		UpdateMedia(ctx context.Context, m Media, exec ...core.DBExecutor) (Media, error)
		DeleteMedia(ctx context.Context, id int, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, authorID int, owner *Owner, data MediaData, file *Upload) (Media, error)
		// Prepare builds a new media and stores its file without saving the media.
		// The caller saves it along its owner and calls Discard if that fails.
		Prepare(ctx context.Context, authorID int, data MediaData, file *Upload) (Media, error)
		// Revise applies data to m and stores the new file without saving the media.
		Revise(ctx context.Context, m Media, data MediaData, file *Upload) (Media, error)
		// Discard removes the file of a media that could not be saved.
		Discard(ctx context.Context, m Media)
		// Cleanup removes the previous file of a saved media, when it changed.
		Cleanup(ctx context.Context, old, saved Media)
		Get(ctx context.Context, id int) (Media, error)
		GetByUUID(ctx context.Context, uid string) (Media, error)
		// GetFor returns the media only if it is attached to the owner.
		GetFor(ctx context.Context, owner Owner, id int) (Media, error)
		List(ctx context.Context, owner Owner) ([]Media, error)
		Update(ctx context.Context, m Media, data MediaData, file *Upload) (Media, error)
		Delete(ctx context.Context, m Media) error
		Open(ctx context.Context, m Media) (io.ReadCloser, error)
	}

	service struct {
		repo   Repository
		store  FileStore
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, store FileStore, logger core.Logger) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &service{repo: repo, store: store, logger: logger}
}

// FileKey is the storage key of a media file.
func FileKey(uid, fileName string) string {
	return path.Join("medias", uid, path.Base(fileName))
}

func (svc *service) upload(ctx context.Context, m *Media, file *Upload) error {
	m.FileName = path.Base(file.Name)
	m.FileKey = FileKey(m.UUID, m.FileName)
	m.ContentType = file.ContentType
	m.FileSize = file.Size
	return errors.Wrap(svc.store.Put(ctx, m.FileKey, file.Content, file.Size, file.ContentType), "storing media file")
}

func (svc *service) Prepare(ctx context.Context, authorID int, data MediaData, file *Upload) (Media, error) {
	if data.URL == "" && file == nil {
		return Media{}, core.NewValidationError(nil,
			core.FieldError{Field: "url", Error: errURLOrFileRequired},
			core.FieldError{Field: "file", Error: errURLOrFileRequired},
		)
	}

	now := time.Now().UTC()
	m := Media{
		UUID:              uuid.New().String(),
		Name:              data.Name,
		Description:       data.Description,
		URL:               data.URL,
		TypeID:            data.TypeID,
		IsVisibleInPortal: data.IsVisibleInPortal,
		Visibility:        data.Visibility,
		AuthorID:          authorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if file != nil {
		if err := svc.upload(ctx, &m, file); err != nil {
			return Media{}, err
		}
	}
	return m, nil
}

func (svc *service) Create(ctx context.Context, authorID int, owner *Owner, data MediaData, file *Upload) (Media, error) {
	m, err := svc.Prepare(ctx, authorID, data, file)
	if err != nil {
		return Media{}, err
	}
	created, err := svc.repo.CreateMedia(ctx, m, owner)
	if err != nil {
		svc.Discard(ctx, m)
		return Media{}, errors.Wrap(err, "creating media")
	}
	return created, nil
}

func (svc *service) Discard(ctx context.Context, m Media) {
	if m.HasFile() {
		svc.removeFile(ctx, m.FileKey)
	}
}

func (svc *service) Cleanup(ctx context.Context, old, saved Media) {
	if old.HasFile() && old.FileKey != saved.FileKey {
		svc.removeFile(ctx, old.FileKey)
	}
}

func (svc *service) Get(ctx context.Context, id int) (Media, error) {
	return svc.repo.GetMedia(ctx, id, "")
}

func (svc *service) GetByUUID(ctx context.Context, uid string) (Media, error) {
	if _, err := uuid.Parse(uid); err != nil {
		return Media{}, ErrNotFound
	}
	return svc.repo.GetMedia(ctx, 0, uid)
}

func (svc *service) GetFor(ctx context.Context, owner Owner, id int) (Media, error) {
	ok, err := svc.repo.IsAttached(ctx, id, owner)
	if err != nil {
		return Media{}, errors.Wrap(err, "checking media owner")
	}
	if !ok {
		return Media{}, ErrNotFound
	}
	return svc.Get(ctx, id)
}

func (svc *service) List(ctx context.Context, owner Owner) ([]Media, error) {
	return svc.repo.QueryMedias(ctx, owner)
}

func (svc *service) Revise(ctx context.Context, m Media, data MediaData, file *Upload) (Media, error) {
	m.Name = data.Name
	m.Description = data.Description
	m.URL = data.URL
	m.TypeID = data.TypeID
	m.IsVisibleInPortal = data.IsVisibleInPortal
	m.Visibility = data.Visibility
	m.UpdatedAt = time.Now().UTC()

	if file == nil && m.URL == "" && !m.HasFile() {
		return Media{}, core.NewFieldError("url", errURLOrFileRequired)
	}
	if file != nil {
		if err := svc.upload(ctx, &m, file); err != nil {
			return Media{}, err
		}
	}
	return m, nil
}

func (svc *service) Update(ctx context.Context, m Media, data MediaData, file *Upload) (Media, error) {
	revised, err := svc.Revise(ctx, m, data, file)
	if err != nil {
		return Media{}, err
	}
	updated, err := svc.repo.UpdateMedia(ctx, revised)
	if err != nil {
		if revised.FileKey != m.FileKey {
			svc.Discard(ctx, revised)
		}
		return Media{}, errors.Wrap(err, "updating media")
	}
	svc.Cleanup(ctx, m, updated)
	return updated, nil
}

func (svc *service) Delete(ctx context.Context, m Media) error {
	if err := svc.repo.DeleteMedia(ctx, m.ID); err != nil {
		return errors.Wrap(err, "deleting media")
	}
	if m.HasFile() {
		svc.removeFile(ctx, m.FileKey)
	}
	return nil
}

func (svc *service) Open(ctx context.Context, m Media) (io.ReadCloser, error) {
	if !m.HasFile() {
		return nil, ErrNotFound
	}
	rc, err := svc.store.Get(ctx, m.FileKey)
	return rc, errors.Wrap(err, "opening media file")
}

// removeFile deletes an orphan file; failures are only logged.
func (svc *service) removeFile(ctx context.Context, key string) {
	if err := svc.store.Delete(ctx, key); err != nil {
		svc.logger.Error("deleting media file "+key, errors.Wrap(err, "media.removeFile"))
	}
}

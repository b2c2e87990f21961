package entity

import (
	"context"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
)

var ErrNotFound = errors.New("entity not found")

type (
	Repository interface {
		CreateEntity(ctx context.Context, e Entity, exec ...core.DBExecutor) (Entity, error)
		GetEntity(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Entity, error)
		QueryEntities(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Entity, error)
		// Ancestors returns the chain of entities from the root down to the entity itself.
		Ancestors(ctx context.Context, id int, exec ...core.DBExecutor) ([]Entity, error)
		// Descendants returns the IDs of the entity and of all the entities below it.
		Descendants(ctx context.Context, id int, exec ...core.DBExecutor) ([]int, error)
	}

	Service interface {
		Create(ctx context.Context, ne NewEntity) (Entity, error)
		Get(ctx context.Context, id int) (Entity, error)
		GetByUUID(ctx context.Context, uid string) (Entity, error)
		GetByAcronym(ctx context.Context, acronym string) (Entity, error)
		Query(ctx context.Context, filter *QueryFilter) ([]Entity, error)
		AcronymPath(ctx context.Context, id int) ([]string, error)
		Descendants(ctx context.Context, id int) ([]int, error)
		// Faculty returns the closest entity of type FACULTY, the entity itself included.
		Faculty(ctx context.Context, id int) (Entity, error)
		// IsDescendant reports whether child is id itself or one of its descendants.
		IsDescendant(ctx context.Context, id, child int) (bool, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, ne NewEntity) (Entity, error) {
	if ne.ParentID != nil {
		if _, err := svc.Get(ctx, *ne.ParentID); err != nil {
			if errors.Cause(err) == ErrNotFound {
				return Entity{}, core.NewFieldError("parent_id", "parent entity not found")
			}
			return Entity{}, errors.Wrap(err, "finding parent entity")
		}
	}
	start := ne.StartDate
	if start.IsZero() {
		start = core.Today()
	}
	return svc.repo.CreateEntity(ctx, Entity{
		UUID:      uuid.New().String(),
		Acronym:   ne.Acronym,
		Title:     ne.Title,
		Type:      ne.Type,
		ParentID:  ne.ParentID,
		Website:   ne.Website,
		StartDate: start,
		EndDate:   ne.EndDate,
	})
}

func (svc *service) Get(ctx context.Context, id int) (Entity, error) {
	return svc.repo.GetEntity(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUUID(ctx context.Context, uid string) (Entity, error) {
	if _, err := uuid.Parse(uid); err != nil {
		return Entity{}, ErrNotFound
	}
	return svc.repo.GetEntity(ctx, GetFilter{UUID: uid})
}

func (svc *service) GetByAcronym(ctx context.Context, acronym string) (Entity, error) {
	return svc.repo.GetEntity(ctx, GetFilter{Acronym: core.CleanString(acronym)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]Entity, error) {
	return svc.repo.QueryEntities(ctx, filter)
}

func (svc *service) AcronymPath(ctx context.Context, id int) ([]string, error) {
	ancestors, err := svc.repo.Ancestors(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "finding ancestors")
	}
	path := make([]string, 0, len(ancestors))
	for _, e := range ancestors {
		path = append(path, e.Acronym)
	}
	return path, nil
}

func (svc *service) Descendants(ctx context.Context, id int) ([]int, error) {
	return svc.repo.Descendants(ctx, id)
}

func (svc *service) Faculty(ctx context.Context, id int) (Entity, error) {
	ancestors, err := svc.repo.Ancestors(ctx, id)
	if err != nil {
		return Entity{}, errors.Wrap(err, "finding ancestors")
	}
	for i := len(ancestors) - 1; i >= 0; i-- {
		if ancestors[i].Type == TypeFaculty {
			return ancestors[i], nil
		}
	}
	return Entity{}, ErrNotFound
}

func (svc *service) IsDescendant(ctx context.Context, id, child int) (bool, error) {
	ids, err := svc.repo.Descendants(ctx, id)
	if err != nil {
		return false, errors.Wrap(err, "finding descendants")
	}
	return core.ContainsInt(ids, child), nil
}

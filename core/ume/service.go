package ume

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/perms"
)

var (
	ErrNotFound  = errors.New("ucl management entity not found")
	ErrUMEExists = errors.New("duplicate_ucl_management_entity_error")

	errNotAFaculty    = "entity is not a faculty"
	errNotInFaculty   = "entity must belong to the faculty"
	errEntityNotFound = "entity not found"
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUMEExists when another UME than excludedID has the same faculty & entity.
		CheckUniqueness(ctx context.Context, facultyID int, entityID *int, excludedID int, exec ...core.DBExecutor) error
		CreateUME(ctx context.Context, u UME, exec ...core.DBExecutor) (UME, error)
		GetUME(ctx context.Context, id int, exec ...core.DBExecutor) (UME, error)
		QueryUMEs(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]UME, error)
		UpdateUME(ctx context.Context, u UME, exec ...core.DBExecutor) (UME, error)
		DeleteUME(ctx context.Context, id int, exec ...core.DBExecutor) error
		// HasPartnerships reports whether partnerships are attached to the UCL entity.
		HasPartnerships(ctx context.Context, entityID int, exec ...core.DBExecutor) (bool, error)
	}

	Service interface {
		Create(ctx context.Context, actor perms.Subject, data UMEData) (UME, error)
		Get(ctx context.Context, id int) (UME, error)
		// List returns the UMEs visible by actor: all for ADRI, the managed ones otherwise.
		List(ctx context.Context, actor perms.Subject, filter *QueryFilter) ([]UME, error)
		Update(ctx context.Context, actor perms.Subject, u UME, data UMEData) (UME, error)
		Delete(ctx context.Context, actor perms.Subject, u UME) error
		// For returns the UME of the UCL entity: the one of (faculty, entity), else the one of the faculty alone.
		For(ctx context.Context, uclEntityID int) (UME, error)
	}

	service struct {
		repo      Repository
		entitySvc entity.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, entitySvc entity.Service) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(entitySvc, "entitySvc"),
	).CheckAndPanic()

	return &service{repo: repo, entitySvc: entitySvc}
}

func (svc *service) validate(ctx context.Context, data UMEData, excludedID int) error {
	fac, err := svc.entitySvc.Get(ctx, data.FacultyID)
	if err != nil {
		if errors.Cause(err) == entity.ErrNotFound {
			return core.NewFieldError("faculty_id", errEntityNotFound)
		}
		return errors.Wrap(err, "finding faculty")
	}
	if fac.Type != entity.TypeFaculty {
		return core.NewFieldError("faculty_id", errNotAFaculty)
	}
	if data.EntityID != nil && *data.EntityID != data.FacultyID {
		ok, err := svc.entitySvc.IsDescendant(ctx, data.FacultyID, *data.EntityID)
		if err != nil {
			return errors.Wrap(err, "checking entity")
		}
		if !ok {
			return core.NewFieldError("entity_id", errNotInFaculty)
		}
	}
	if err = svc.repo.CheckUniqueness(ctx, data.FacultyID, data.EntityID, excludedID); err != nil {
		if errors.Cause(err) == ErrUMEExists {
			return core.NewFieldError("entity_id", ErrUMEExists.Error())
		}
		return errors.Wrap(err, "checking uniqueness")
	}
	return nil
}

func (svc *service) Create(ctx context.Context, actor perms.Subject, data UMEData) (UME, error) {
	if !perms.CanAddUME(actor) {
		return UME{}, core.ErrPermissionDenied
	}
	if err := svc.validate(ctx, data, 0); err != nil {
		return UME{}, err
	}
	var u UME
	data.apply(&u)
	return svc.repo.CreateUME(ctx, u)
}

func (svc *service) Get(ctx context.Context, id int) (UME, error) {
	return svc.repo.GetUME(ctx, id)
}

func (svc *service) List(ctx context.Context, actor perms.Subject, filter *QueryFilter) ([]UME, error) {
	if !perms.CanViewUME(actor) {
		return nil, core.ErrPermissionDenied
	}
	if filter == nil {
		filter = new(QueryFilter)
	}
	if !actor.IsADRI() {
		filter.EntityIDs = actor.EntityIDs()
	}
	return svc.repo.QueryUMEs(ctx, filter)
}

func (svc *service) Update(ctx context.Context, actor perms.Subject, u UME, data UMEData) (UME, error) {
	if !perms.CanChangeUME(actor, u.ManagedEntityID()) {
		return UME{}, core.ErrPermissionDenied
	}
	// only ADRI may move a UME to another faculty or entity
	if !actor.IsADRI() {
		data.FacultyID, data.EntityID = u.FacultyID, u.EntityID
	}
	if err := svc.validate(ctx, data, u.ID); err != nil {
		return UME{}, err
	}
	data.apply(&u)
	return svc.repo.UpdateUME(ctx, u)
}

func (svc *service) Delete(ctx context.Context, actor perms.Subject, u UME) error {
	linked, err := svc.repo.HasPartnerships(ctx, u.ManagedEntityID())
	if err != nil {
		return errors.Wrap(err, "checking linked partnerships")
	}
	if !perms.CanDeleteUME(actor, linked) {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeleteUME(ctx, u.ID)
}

func (svc *service) For(ctx context.Context, uclEntityID int) (UME, error) {
	fac, err := svc.entitySvc.Faculty(ctx, uclEntityID)
	if err != nil {
		return UME{}, err
	}
	umes, err := svc.repo.QueryUMEs(ctx, &QueryFilter{FacultyID: fac.ID})
	if err != nil {
		return UME{}, err
	}
	var facultyUME *UME
	for i, u := range umes {
		if u.EntityID != nil && *u.EntityID == uclEntityID {
			return u, nil
		}
		if u.EntityID == nil {
			facultyUME = &umes[i]
		}
	}
	if facultyUME != nil {
		return *facultyUME, nil
	}
	return UME{}, ErrNotFound
}

package partner

import (
	"context"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/configuration"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
	"github.com/uclouvain/osis-partnership-sub000/core/perms"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("partner not found")
	ErrEntityNotFound    = errors.New("partner entity not found")
	ErrPICCodeExists     = errors.New("a partner with this PIC code already exists")
	ErrErasmusCodeExists = errors.New("a partner with this Erasmus code already exists")

	errInvalidEntityParent = "parent entity must belong to the same partner"

	similarMinLen = 3
	similarMax    = 10
)

type (
	Repository interface {
		// CheckUniqueness returns ErrPICCodeExists or ErrErasmusCodeExists when another partner than excludedID uses a code.
		CheckUniqueness(ctx context.Context, picCode, erasmusCode string, excludedID int, exec ...core.DBExecutor) error
		CreatePartner(ctx context.Context, p Partner, exec ...core.DBExecutor) (Partner, error)
		GetPartner(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Partner, error)
		QueryPartners(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Partner, error)
		UpdatePartner(ctx context.Context, p Partner, exec ...core.DBExecutor) (Partner, error)

		CreateEntity(ctx context.Context, e Entity, exec ...core.DBExecutor) (Entity, error)
		GetEntity(ctx context.Context, partnerID, id int, exec ...core.DBExecutor) (Entity, error)
		QueryEntities(ctx context.Context, partnerID int, exec ...core.DBExecutor) ([]Entity, error)
		UpdateEntity(ctx context.Context, e Entity, exec ...core.DBExecutor) (Entity, error)
		DeleteEntity(ctx context.Context, id int, exec ...core.DBExecutor) error
		GetEntityUsage(ctx context.Context, id int, exec ...core.DBExecutor) (EntityUsage, error)
	}

	Service interface {
		Create(ctx context.Context, actor perms.Subject, data PartnerData) (Partner, error)
		Update(ctx context.Context, actor perms.Subject, p Partner, data PartnerData) (Partner, error)
		Get(ctx context.Context, id int) (Partner, error)
		GetByUUID(ctx context.Context, uid string) (Partner, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Partner, error)
		// Similar returns at most 10 partners whose name contains search, the closest names first.
		Similar(ctx context.Context, search string) ([]Partner, error)

		Entities(ctx context.Context, partnerID int) ([]Entity, error)
		GetEntity(ctx context.Context, partnerID, id int) (Entity, error)
		CreateEntity(ctx context.Context, actor perms.Subject, partnerID int, data EntityData) (Entity, error)
		UpdateEntity(ctx context.Context, actor perms.Subject, e Entity, data EntityData) (Entity, error)
		DeleteEntity(ctx context.Context, actor perms.Subject, e Entity) error
		CanChangeEntity(ctx context.Context, actor perms.Subject, e Entity) (bool, error)

		Medias(ctx context.Context, partnerID int) ([]media.Media, error)
		AddMedia(ctx context.Context, actor perms.Subject, partnerID int, data media.MediaData, file *media.Upload) (media.Media, error)
		UpdateMedia(ctx context.Context, actor perms.Subject, partnerID, mediaID int, data media.MediaData, file *media.Upload) (media.Media, error)
		DeleteMedia(ctx context.Context, actor perms.Subject, partnerID, mediaID int) error
	}

	service struct {
		repo     Repository
		mediaSvc media.Service
		userSvc  user.Service
		resolver perms.Resolver
		confSvc  configuration.Service
		mailSvc  core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	mediaSvc media.Service,
	userSvc user.Service,
	resolver perms.Resolver,
	confSvc configuration.Service,
	mailSvc core.EmailService,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mediaSvc, "mediaSvc"),
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(resolver, "resolver"),
		vala.IsNotNil(confSvc, "confSvc"),
		vala.IsNotNil(mailSvc, "mailSvc"),
	).CheckAndPanic()

	return &service{
		repo:     repo,
		mediaSvc: mediaSvc,
		userSvc:  userSvc,
		resolver: resolver,
		confSvc:  confSvc,
		mailSvc:  mailSvc,
	}
}

func (svc *service) checkUniqueness(ctx context.Context, data PartnerData, excludedID int) error {
	err := svc.repo.CheckUniqueness(ctx, data.PICCode, data.ErasmusCode, excludedID)
	switch errors.Cause(err) {
	case nil:
		return nil
	case ErrPICCodeExists:
		return core.NewFieldError("pic_code", ErrPICCodeExists.Error())
	case ErrErasmusCodeExists:
		return core.NewFieldError("erasmus_code", ErrErasmusCodeExists.Error())
	default:
		return errors.Wrap(err, "checking uniqueness")
	}
}

func (svc *service) Create(ctx context.Context, actor perms.Subject, data PartnerData) (Partner, error) {
	if !perms.CanAddPartner(actor) {
		return Partner{}, core.ErrPermissionDenied
	}
	if err := svc.checkUniqueness(ctx, data, 0); err != nil {
		return Partner{}, err
	}

	now := time.Now().UTC()
	authorID := actor.User.ID
	p := Partner{UUID: uuid.New().String(), AuthorID: &authorID, CreatedAt: now, UpdatedAt: now}
	data.apply(&p)
	if !actor.IsADRI() {
		p.IsValid = false
	}

	created, err := svc.repo.CreatePartner(ctx, p)
	if err != nil {
		return Partner{}, errors.Wrap(err, "creating partner")
	}
	if !actor.IsADRI() {
		svc.notifyCreation(ctx, actor.User, created)
	}
	return created, nil
}

func (svc *service) notifyCreation(ctx context.Context, author user.User, p Partner) {
	conf, err := svc.confSvc.Get(ctx)
	if err != nil || conf.EmailNotificationTo == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: conf.EmailNotificationTo}},
		Subject:      "partner_created - " + p.Name,
		TemplateName: "partner_creation",
		TemplateData: map[string]interface{}{
			"User":    author.FullName(),
			"Partner": p,
		},
	})
}

func (svc *service) Update(ctx context.Context, actor perms.Subject, p Partner, data PartnerData) (Partner, error) {
	if !perms.CanChangePartner(actor) {
		return Partner{}, core.ErrPermissionDenied
	}
	if data.NowKnownAsID != nil && *data.NowKnownAsID == p.ID {
		return Partner{}, core.NewFieldError("now_known_as_id", "a partner cannot be known as itself")
	}
	if err := svc.checkUniqueness(ctx, data, p.ID); err != nil {
		return Partner{}, err
	}
	data.apply(&p)
	p.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdatePartner(ctx, p)
}

func (svc *service) Get(ctx context.Context, id int) (Partner, error) {
	return svc.repo.GetPartner(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUUID(ctx context.Context, uid string) (Partner, error) {
	if _, err := uuid.Parse(uid); err != nil {
		return Partner{}, ErrNotFound
	}
	return svc.repo.GetPartner(ctx, GetFilter{UUID: uid})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Partner, error) {
	filter.Clean()
	return svc.repo.QueryPartners(ctx, filter, ordering)
}

func (svc *service) Similar(ctx context.Context, search string) ([]Partner, error) {
	search = core.CleanString(search)
	if len([]rune(search)) < similarMinLen {
		return []Partner{}, nil
	}
	partners, err := svc.Query(ctx, &QueryFilter{Name: search}, []core.DBOrdering{{Field: "partner", Ascending: true}})
	if err != nil {
		return nil, err
	}

	ratios := make(map[int]float64, len(partners))
	for _, p := range partners {
		ratios[p.ID] = similarity(search, p.Name)
	}
	sort.SliceStable(partners, func(i, j int) bool {
		return ratios[partners[i].ID] > ratios[partners[j].ID]
	})
	if len(partners) > similarMax {
		partners = partners[:similarMax]
	}
	return partners, nil
}

func similarity(a, b string) float64 {
	return difflib.NewMatcher(
		strings.Split(strings.ToLower(a), ""),
		strings.Split(strings.ToLower(b), ""),
	).Ratio()
}

// Entities

func (svc *service) Entities(ctx context.Context, partnerID int) ([]Entity, error) {
	return svc.repo.QueryEntities(ctx, partnerID)
}

func (svc *service) GetEntity(ctx context.Context, partnerID, id int) (Entity, error) {
	return svc.repo.GetEntity(ctx, partnerID, id)
}

func (svc *service) checkParent(ctx context.Context, partnerID int, id int, parentID *int) error {
	if parentID == nil {
		return nil
	}
	if *parentID == id {
		return core.NewFieldError("parent_id", errInvalidEntityParent)
	}
	if _, err := svc.repo.GetEntity(ctx, partnerID, *parentID); err != nil {
		if errors.Cause(err) == ErrEntityNotFound {
			return core.NewFieldError("parent_id", errInvalidEntityParent)
		}
		return errors.Wrap(err, "finding parent entity")
	}
	return nil
}

func (svc *service) CreateEntity(ctx context.Context, actor perms.Subject, partnerID int, data EntityData) (Entity, error) {
	if !perms.CanAddPartnerEntity(actor) {
		return Entity{}, core.ErrPermissionDenied
	}
	if _, err := svc.Get(ctx, partnerID); err != nil {
		return Entity{}, err
	}
	if err := svc.checkParent(ctx, partnerID, 0, data.ParentID); err != nil {
		return Entity{}, err
	}

	now := time.Now().UTC()
	e := Entity{
		UUID:      uuid.New().String(),
		PartnerID: partnerID,
		AuthorID:  actor.User.ID,
		CreatedAt: now,
	}
	applyEntityData(&e, data)
	e.UpdatedAt = now
	return svc.repo.CreateEntity(ctx, e)
}

func applyEntityData(e *Entity, data EntityData) {
	e.Name = data.Name
	e.ParentID = data.ParentID
	e.Comment = data.Comment
	e.Address = data.Address
	e.ContactIn = contactOf(e.ContactIn, data.ContactIn)
	e.ContactOut = contactOf(e.ContactOut, data.ContactOut)
}

func (svc *service) author(ctx context.Context, authorID int) (perms.Subject, error) {
	if authorID == 0 {
		return perms.Subject{}, nil
	}
	usr, err := svc.userSvc.GetByID(ctx, authorID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return perms.Subject{}, nil
		}
		return perms.Subject{}, errors.Wrap(err, "finding entity author")
	}
	return svc.resolver.Resolve(ctx, usr)
}

func (svc *service) CanChangeEntity(ctx context.Context, actor perms.Subject, e Entity) (bool, error) {
	if actor.IsADRI() {
		return true, nil
	}
	author, err := svc.author(ctx, e.AuthorID)
	if err != nil {
		return false, err
	}
	return perms.CanChangePartnerEntity(actor, author), nil
}

func (svc *service) UpdateEntity(ctx context.Context, actor perms.Subject, e Entity, data EntityData) (Entity, error) {
	ok, err := svc.CanChangeEntity(ctx, actor, e)
	if err != nil {
		return Entity{}, err
	}
	if !ok {
		return Entity{}, core.ErrPermissionDenied
	}
	if err = svc.checkParent(ctx, e.PartnerID, e.ID, data.ParentID); err != nil {
		return Entity{}, err
	}
	applyEntityData(&e, data)
	e.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateEntity(ctx, e)
}

func (svc *service) DeleteEntity(ctx context.Context, actor perms.Subject, e Entity) error {
	author, err := svc.author(ctx, e.AuthorID)
	if err != nil {
		return err
	}
	usage, err := svc.repo.GetEntityUsage(ctx, e.ID)
	if err != nil {
		return errors.Wrap(err, "checking entity usage")
	}
	if !perms.CanDeletePartnerEntity(actor, author, usage.HasPartnerships, usage.HasChildren) {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeleteEntity(ctx, e.ID)
}

// Medias

func partnerOwner(partnerID int) media.Owner {
	return media.Owner{Kind: media.OwnerPartner, ID: partnerID}
}

func (svc *service) Medias(ctx context.Context, partnerID int) ([]media.Media, error) {
	return svc.mediaSvc.List(ctx, partnerOwner(partnerID))
}

func (svc *service) AddMedia(ctx context.Context, actor perms.Subject, partnerID int, data media.MediaData, file *media.Upload) (media.Media, error) {
	if !perms.CanAddPartner(actor) {
		return media.Media{}, core.ErrPermissionDenied
	}
	if _, err := svc.Get(ctx, partnerID); err != nil {
		return media.Media{}, err
	}
	owner := partnerOwner(partnerID)
	return svc.mediaSvc.Create(ctx, actor.User.ID, &owner, data, file)
}

func (svc *service) ownedMedia(ctx context.Context, actor perms.Subject, partnerID, mediaID int) (media.Media, error) {
	m, err := svc.mediaSvc.GetFor(ctx, partnerOwner(partnerID), mediaID)
	if err != nil {
		return media.Media{}, err
	}
	if !perms.CanChangeMedia(actor, m.AuthorID, perms.CanChangePartner(actor)) {
		return media.Media{}, core.ErrPermissionDenied
	}
	return m, nil
}

func (svc *service) UpdateMedia(ctx context.Context, actor perms.Subject, partnerID, mediaID int, data media.MediaData, file *media.Upload) (media.Media, error) {
	m, err := svc.ownedMedia(ctx, actor, partnerID, mediaID)
	if err != nil {
		return media.Media{}, err
	}
	return svc.mediaSvc.Update(ctx, m, data, file)
}

func (svc *service) DeleteMedia(ctx context.Context, actor perms.Subject, partnerID, mediaID int) error {
	m, err := svc.ownedMedia(ctx, actor, partnerID, mediaID)
	if err != nil {
		return err
	}
	return svc.mediaSvc.Delete(ctx, m)
}

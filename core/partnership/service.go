package partnership

import (
	"context"
	"fmt"
	"net/mail"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/academic"
	"github.com/uclouvain/osis-partnership-sub000/core/configuration"
	"github.com/uclouvain/osis-partnership-sub000/core/contact"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/funding"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
	"github.com/uclouvain/osis-partnership-sub000/core/partner"
	"github.com/uclouvain/osis-partnership-sub000/core/perms"
	"github.com/uclouvain/osis-partnership-sub000/core/ptype"
	"github.com/uclouvain/osis-partnership-sub000/core/reference"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

var (
	// errors
	ErrNotFound          = errors.New("partnership not found")
	ErrAgreementNotFound = errors.New("agreement not found")
	ErrContactNotFound   = errors.New("contact not found")

	errUnknownEntity        = "unknown UCL entity"
	errNotManagedEntity     = "you do not manage this UCL entity"
	errUnknownPerson        = "unknown person"
	errUnknownPartnerEntity = "unknown partner entity"
	errDuplicateEntity      = "this partner entity is already linked"
	errInactivePartner      = "partnership_inactif_partner_error"
	errInvalidMission       = "this mission is not available for this partnership type"
	errInvalidSubtype       = "this subtype is not available for this partnership type"
	errUnknownFunding       = "unknown funding"
	errYearBeforeMin        = "partnership_year_before_min_year_error"
	errRequired             = "this field is required"

	agreementBeforeWarning = "partnership_agreement_warning_before"
	agreementAfterWarning  = "partnership_agreement_warning_after"
)

type (
	Repository interface {
		// CreatePartnership inserts the partnership with its relations, missions, tags and years.
		CreatePartnership(ctx context.Context, p Partnership, exec ...core.DBExecutor) (Partnership, error)
		// GetPartnership returns the whole aggregate: relations, missions, years and agreements.
		GetPartnership(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Partnership, error)
		QueryPartnerships(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Partnership, error)
		// UpdatePartnership saves the partnership and replaces its relations, missions, tags and years.
		UpdatePartnership(ctx context.Context, p Partnership, exec ...core.DBExecutor) (Partnership, error)
		DeletePartnership(ctx context.Context, id int, exec ...core.DBExecutor) error

		QueryMissions(ctx context.Context, exec ...core.DBExecutor) ([]Mission, error)
		QuerySubtypes(ctx context.Context, exec ...core.DBExecutor) ([]Subtype, error)

		// CreateAgreement inserts the media then the agreement pointing to it.
		CreateAgreement(ctx context.Context, a Agreement, m media.Media, exec ...core.DBExecutor) (Agreement, error)
		GetAgreement(ctx context.Context, partnershipID, id int, exec ...core.DBExecutor) (Agreement, error)
		QueryAgreements(ctx context.Context, filter *AgreementFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]AgreementSummary, error)
		// UpdateAgreement saves the agreement and its media.
		UpdateAgreement(ctx context.Context, a Agreement, m media.Media, exec ...core.DBExecutor) (Agreement, error)
		// DeleteAgreement deletes the agreement and its media.
		DeleteAgreement(ctx context.Context, a Agreement, exec ...core.DBExecutor) error

		QueryContacts(ctx context.Context, partnershipID int, exec ...core.DBExecutor) ([]contact.Contact, error)
		GetContact(ctx context.Context, partnershipID, id int, exec ...core.DBExecutor) (contact.Contact, error)
		CreateContact(ctx context.Context, partnershipID int, c contact.Contact, exec ...core.DBExecutor) (contact.Contact, error)
		UpdateContact(ctx context.Context, c contact.Contact, exec ...core.DBExecutor) (contact.Contact, error)
		DeleteContact(ctx context.Context, id int, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, actor perms.Subject, data PartnershipData) (Partnership, error)
		Update(ctx context.Context, actor perms.Subject, p Partnership, data PartnershipData) (Partnership, error)
		Delete(ctx context.Context, actor perms.Subject, p Partnership) error
		Get(ctx context.Context, id int) (Partnership, error)
		GetByUUID(ctx context.Context, uid string) (Partnership, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Partnership, error)
		// EndingWithoutAgreement lists the partnerships whose last year is y and with no agreement for the next one.
		EndingWithoutAgreement(ctx context.Context, y academic.Year) ([]Partnership, error)

		// Missions lists the missions available for a partnership type, all of them when empty.
		Missions(ctx context.Context, partnershipType string) ([]Mission, error)
		// Subtypes lists the active subtypes available for a partnership type, all of them when empty.
		Subtypes(ctx context.Context, partnershipType string) ([]Subtype, error)

		GetAgreement(ctx context.Context, partnershipID, id int) (Agreement, error)
		QueryAgreements(ctx context.Context, filter *AgreementFilter, ordering []core.DBOrdering) ([]AgreementSummary, error)
		CreateAgreement(ctx context.Context, actor perms.Subject, p Partnership, data AgreementData, md media.MediaData, file *media.Upload) (Agreement, error)
		UpdateAgreement(ctx context.Context, actor perms.Subject, p Partnership, a Agreement, data AgreementData, md media.MediaData, file *media.Upload) (Agreement, error)
		DeleteAgreement(ctx context.Context, actor perms.Subject, p Partnership, a Agreement) error

		Contacts(ctx context.Context, partnershipID int) ([]contact.Contact, error)
		GetContact(ctx context.Context, partnershipID, id int) (contact.Contact, error)
		CreateContact(ctx context.Context, actor perms.Subject, p Partnership, data contact.ContactData) (contact.Contact, error)
		UpdateContact(ctx context.Context, actor perms.Subject, p Partnership, c contact.Contact, data contact.ContactData) (contact.Contact, error)
		DeleteContact(ctx context.Context, actor perms.Subject, p Partnership, c contact.Contact) error

		Medias(ctx context.Context, partnershipID int) ([]media.Media, error)
		AddMedia(ctx context.Context, actor perms.Subject, p Partnership, data media.MediaData, file *media.Upload) (media.Media, error)
		UpdateMedia(ctx context.Context, actor perms.Subject, p Partnership, mediaID int, data media.MediaData, file *media.Upload) (media.Media, error)
		DeleteMedia(ctx context.Context, actor perms.Subject, p Partnership, mediaID int) error
	}

	service struct {
		repo       Repository
		entitySvc  entity.Service
		partnerSvc partner.Service
		userSvc    user.Service
		fundingSvc funding.Service
		mediaSvc   media.Service
		confSvc    configuration.Service
		mailSvc    core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(
	repo Repository,
	entitySvc entity.Service,
	partnerSvc partner.Service,
	userSvc user.Service,
	fundingSvc funding.Service,
	mediaSvc media.Service,
	confSvc configuration.Service,
	mailSvc core.EmailService,
) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(entitySvc, "entitySvc"),
		vala.IsNotNil(partnerSvc, "partnerSvc"),
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(fundingSvc, "fundingSvc"),
		vala.IsNotNil(mediaSvc, "mediaSvc"),
		vala.IsNotNil(confSvc, "confSvc"),
		vala.IsNotNil(mailSvc, "mailSvc"),
	).CheckAndPanic()

	return &service{
		repo:       repo,
		entitySvc:  entitySvc,
		partnerSvc: partnerSvc,
		userSvc:    userSvc,
		fundingSvc: fundingSvc,
		mediaSvc:   mediaSvc,
		confSvc:    confSvc,
		mailSvc:    mailSvc,
	}
}

func (svc *service) Create(ctx context.Context, actor perms.Subject, data PartnershipData) (Partnership, error) {
	if !perms.CanAddPartnership(actor, data.Type) {
		return Partnership{}, core.ErrPermissionDenied
	}
	conf, err := svc.confSvc.Get(ctx)
	if err != nil {
		return Partnership{}, err
	}
	if err = svc.clean(ctx, actor, conf, nil, &data); err != nil {
		return Partnership{}, err
	}

	now := time.Now().UTC()
	authorID := actor.User.ID
	p := Partnership{
		UUID:      uuid.New().String(),
		Type:      data.Type,
		IsPublic:  true,
		AuthorID:  &authorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data.apply(&p)
	start, _, end := data.yearBounds()
	for _, y := range academic.Range(start, end) {
		p.Years = append(p.Years, data.Year.year(y))
	}

	created, err := svc.repo.CreatePartnership(ctx, p)
	if err != nil {
		return Partnership{}, errors.Wrap(err, "creating partnership")
	}
	if !actor.IsADRI() {
		svc.notify(ctx, conf, actor.User, created, "partnership_created - %s", "partnership_creation")
	}
	return created, nil
}

func (svc *service) Update(ctx context.Context, actor perms.Subject, p Partnership, data PartnershipData) (Partnership, error) {
	if !perms.CanChangePartnership(actor, p.UCLEntityID, p.Type) {
		return Partnership{}, core.ErrPermissionDenied
	}
	data.Type = p.Type
	conf, err := svc.confSvc.Get(ctx)
	if err != nil {
		return Partnership{}, err
	}
	if err = svc.clean(ctx, actor, conf, &p, &data); err != nil {
		return Partnership{}, err
	}

	oldEnd, hadYears := p.EndAcademicYear()
	data.apply(&p)
	start, from, end := data.yearBounds()
	p.Years = mergeYears(p.Years, data.Year, start, from, end)
	p.UpdatedAt = time.Now().UTC()

	updated, err := svc.repo.UpdatePartnership(ctx, p)
	if err != nil {
		return Partnership{}, errors.Wrap(err, "updating partnership")
	}
	if newEnd, _ := updated.EndAcademicYear(); !actor.IsADRI() && hadYears && newEnd != oldEnd && ptype.HasYears(p.Type) {
		svc.notify(ctx, conf, actor.User, updated, "partnership_end_year_updated - %s", "partnership_update")
	}
	return updated, nil
}

// mergeYears returns the year rows from start to end. Rows from `from` take the submitted values,
// rows before the first existing one copy it, other existing rows are kept. Missing years between
// the first existing row and `from` stay missing.
func mergeYears(current []Year, data YearData, start, from, end academic.Year) []Year {
	byYear := make(map[academic.Year]Year, len(current))
	var (
		first    Year
		hasFirst bool
	)
	for _, y := range current {
		byYear[y.AcademicYear] = y
		if !hasFirst || y.AcademicYear < first.AcademicYear {
			first, hasFirst = y, true
		}
	}

	years := make([]Year, 0, int(end-start)+1)
	for _, ay := range academic.Range(start, end) {
		existing, ok := byYear[ay]
		switch {
		case ay >= from:
			row := data.year(ay)
			row.ID, row.PartnershipID = existing.ID, existing.PartnershipID
			years = append(years, row)
		case ok:
			years = append(years, existing)
		case hasFirst && ay < first.AcademicYear:
			row := first
			row.ID, row.AcademicYear = 0, ay
			years = append(years, row)
		case !hasFirst:
			years = append(years, data.year(ay))
		}
	}
	return years
}

func (svc *service) notify(ctx context.Context, conf configuration.Configuration, author user.User, p Partnership, subject, tmpl string) {
	if conf.EmailNotificationTo == "" {
		return
	}
	faculty := p.UCLEntityPath
	if fac, err := svc.entitySvc.Faculty(ctx, p.UCLEntityID); err == nil {
		faculty = fac.Acronym
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: conf.EmailNotificationTo}},
		Subject:      fmt.Sprintf(subject, faculty),
		TemplateName: tmpl,
		TemplateData: map[string]interface{}{
			"User":        author.FullName(),
			"Partnership": p,
			"Partner":     p.Partner.Name,
			"Faculty":     faculty,
		},
	})
}

// clean checks the parts of data depending on stored objects and normalizes what the actor may not set.
func (svc *service) clean(ctx context.Context, actor perms.Subject, conf configuration.Configuration, current *Partnership, data *PartnershipData) error {
	var errs core.FieldErrors

	if _, err := svc.entitySvc.Get(ctx, data.UCLEntityID); err != nil {
		if errors.Cause(err) != entity.ErrNotFound {
			return errors.Wrap(err, "finding UCL entity")
		}
		errs.Add("ucl_entity_id", errUnknownEntity)
	} else if !actor.IsADRI() && !actor.Manages(data.UCLEntityID) {
		errs.Add("ucl_entity_id", errNotManagedEntity)
	}

	if data.SupervisorID != nil {
		if _, err := svc.userSvc.GetByID(ctx, *data.SupervisorID); err != nil {
			if errors.Cause(err) != user.ErrNotFound {
				return errors.Wrap(err, "finding supervisor")
			}
			errs.Add("supervisor_id", errUnknownPerson)
		}
	}

	if err := svc.cleanRelations(ctx, current, data, &errs); err != nil {
		return err
	}
	if err := svc.cleanMissions(ctx, current, data, &errs); err != nil {
		return err
	}

	if !actor.IsADRI() && data.Type == ptype.Mobility {
		isPublic := true
		if current != nil {
			isPublic = current.IsPublic
		}
		data.IsPublic = &isPublic
	}

	svc.cleanYears(actor, conf, current, data, &errs)
	if err := svc.cleanFunding(ctx, &data.Year, &errs); err != nil {
		return err
	}
	return errs.Err()
}

func (svc *service) cleanRelations(ctx context.Context, current *Partnership, data *PartnershipData, errs *core.FieldErrors) error {
	linked := make(map[int]bool)
	if current != nil {
		for _, r := range current.Relations {
			linked[r.PartnerEntityID] = true
		}
	}
	seen := make(map[int]bool, len(data.PartnerEntities))
	today := core.Today()
	for i, rd := range data.PartnerEntities {
		field := fmt.Sprintf("partner_entities[%d]", i)
		if seen[rd.PartnerEntityID] {
			errs.Add(field, errDuplicateEntity)
			continue
		}
		seen[rd.PartnerEntityID] = true

		if _, err := svc.partnerSvc.GetEntity(ctx, rd.PartnerID, rd.PartnerEntityID); err != nil {
			if errors.Cause(err) != partner.ErrEntityNotFound {
				return errors.Wrap(err, "finding partner entity")
			}
			errs.Add(field, errUnknownPartnerEntity)
			continue
		}
		if linked[rd.PartnerEntityID] {
			continue
		}
		p, err := svc.partnerSvc.Get(ctx, rd.PartnerID)
		if err != nil {
			return errors.Wrap(err, "finding partner")
		}
		if !p.IsActif(today) {
			errs.Add(field, errInactivePartner)
		}
	}
	return nil
}

func (svc *service) cleanMissions(ctx context.Context, current *Partnership, data *PartnershipData, errs *core.FieldErrors) error {
	missions, err := svc.Missions(ctx, data.Type)
	if err != nil {
		return err
	}
	if len(missions) == 1 {
		data.MissionIDs = []int{missions[0].ID}
	} else if len(missions) > 1 {
		if len(data.MissionIDs) == 0 {
			errs.Add("mission_ids", errRequired)
		}
		for _, id := range data.MissionIDs {
			if !hasMission(missions, id) {
				errs.Add("mission_ids", errInvalidMission)
				break
			}
		}
	}

	if data.SubtypeID == nil {
		return nil
	}
	subtypes, err := svc.repo.QuerySubtypes(ctx)
	if err != nil {
		return errors.Wrap(err, "querying subtypes")
	}
	for _, st := range subtypes {
		if st.ID != *data.SubtypeID {
			continue
		}
		alreadySet := current != nil && current.SubtypeID != nil && *current.SubtypeID == st.ID
		if st.AllowsType(data.Type) && (st.IsActive || alreadySet) {
			return nil
		}
		break
	}
	errs.Add("subtype_id", errInvalidSubtype)
	return nil
}

func hasMission(missions []Mission, id int) bool {
	for _, m := range missions {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (svc *service) cleanYears(actor perms.Subject, conf configuration.Configuration, current *Partnership, data *PartnershipData, errs *core.FieldErrors) {
	yd := &data.Year
	switch data.Type {
	case ptype.Mobility:
		if !(yd.IsSMS || yd.IsSMP) {
			yd.EducationLevels, yd.EntityIDs, yd.OfferIDs = nil, nil, nil
		}
	case ptype.Doctorate:
		yd.EducationLevels = []string{reference.PhDLevel}
	}

	if actor.IsADRI() {
		return
	}
	eligible := true
	if current != nil {
		if fy, ok := current.FormYear(conf.CreationMinYear(core.Today())); ok {
			eligible = fy.Eligible
		}
	}
	yd.Eligible = &eligible

	if !ptype.HasYears(data.Type) {
		return
	}
	var currentStart *int
	if current != nil {
		if s, ok := current.StartAcademicYear(); ok {
			start := int(s)
			currentStart = &start
		}
	}
	// managers may not move the start of a mobility
	if current != nil && data.Type == ptype.Mobility && currentStart != nil {
		data.StartAcademicYear = currentStart
		if end := data.EndAcademicYear; end != nil && *currentStart > *end {
			errs.Add("end_academic_year", core.StartYearAfterEndText)
		}
		if from := data.FromAcademicYear; from != nil && *currentStart > *from {
			errs.Add("from_academic_year", startAfterFromText)
		}
	}

	minYear := int(conf.CreationMinYear(core.Today()))
	if y := data.StartAcademicYear; y != nil && *y < minYear && (currentStart == nil || *y != *currentStart) {
		errs.Add("start_academic_year", errYearBeforeMin)
	}
	if y := data.FromAcademicYear; y != nil && *y < minYear {
		errs.Add("from_academic_year", errYearBeforeMin)
	}
	if y := data.EndAcademicYear; y != nil && *y < minYear {
		errs.Add("end_academic_year", errYearBeforeMin)
	}
}

// cleanFunding completes the parents of the most precise funding given.
func (svc *service) cleanFunding(ctx context.Context, yd *YearData, errs *core.FieldErrors) error {
	notFound := func(err error, field string) error {
		if errors.Cause(err) == funding.ErrNotFound {
			errs.Add(field, errUnknownFunding)
			return nil
		}
		return errors.Wrap(err, "finding funding")
	}

	programID := yd.ProgramID
	if yd.FundingTypeID != nil {
		t, err := svc.fundingSvc.GetType(ctx, *yd.FundingTypeID)
		if err != nil {
			return notFound(err, "funding_type_id")
		}
		programID = &t.ProgramID
	}
	if programID != nil {
		prog, err := svc.fundingSvc.GetProgram(ctx, *programID)
		if err != nil {
			return notFound(err, "funding_program_id")
		}
		yd.ProgramID = &prog.ID
		yd.FundingSourceID = &prog.SourceID
		return nil
	}
	if yd.FundingSourceID != nil {
		if _, err := svc.fundingSvc.GetSource(ctx, *yd.FundingSourceID); err != nil {
			return notFound(err, "funding_source_id")
		}
	}
	return nil
}

// apply copies the partnership fields of data to p.
func (d PartnershipData) apply(p *Partnership) {
	p.UCLEntityID = d.UCLEntityID
	p.SupervisorID = d.SupervisorID
	p.SubtypeID = d.SubtypeID
	p.MissionIDs = d.MissionIDs
	p.Description = d.Description
	p.Comment = d.Comment
	if d.IsPublic != nil {
		p.IsPublic = *d.IsPublic
	}
	p.Tags = d.Tags
	p.ProjectAcronym = d.ProjectAcronym
	p.UCLReference = d.UCLReference
	p.AllStudent = d.AllStudent
	p.DiplomaByUCL = d.DiplomaByUCL
	p.DiplomaProdByUCL = d.DiplomaProdByUCL
	p.SupplementProdByUCL = d.SupplementProdByUCL
	if ptype.HasDates(p.Type) {
		p.StartDate, p.EndDate = d.StartDate, d.EndDate
	} else {
		p.StartDate, p.EndDate = nil, nil
	}

	relationIDs := make(map[int]int, len(p.Relations))
	for _, r := range p.Relations {
		relationIDs[r.PartnerEntityID] = r.ID
	}
	p.Relations = make([]Relation, 0, len(d.PartnerEntities))
	for _, rd := range d.PartnerEntities {
		p.Relations = append(p.Relations, Relation{
			ID:                      relationIDs[rd.PartnerEntityID],
			PartnerID:               rd.PartnerID,
			PartnerEntityID:         rd.PartnerEntityID,
			DiplomaWithUCLByPartner: rd.DiplomaWithUCLByPartner,
			DiplomaProdByPartner:    rd.DiplomaProdByPartner,
			SupplementProdByPartner: rd.SupplementProdByPartner,
			PartnerReferent:         rd.PartnerReferent,
		})
	}
}

// yearBounds returns the years to save; partnerships bounded by dates span the years of their dates.
func (d PartnershipData) yearBounds() (start, from, end academic.Year) {
	if ptype.HasDates(d.Type) {
		start, end = academic.Containing(*d.StartDate), academic.Containing(*d.EndDate)
		return start, start, end
	}
	start, end = academic.Year(*d.StartAcademicYear), academic.Year(*d.EndAcademicYear)
	from = start
	if d.FromAcademicYear != nil {
		from = academic.Year(*d.FromAcademicYear)
	}
	return start, from, end
}

func (d YearData) year(y academic.Year) Year {
	eligible := true
	if d.Eligible != nil {
		eligible = *d.Eligible
	}
	return Year{
		AcademicYear:    y,
		IsSMS:           d.IsSMS,
		IsSMP:           d.IsSMP,
		IsSMST:          d.IsSMST,
		IsSTA:           d.IsSTA,
		IsSTT:           d.IsSTT,
		Eligible:        eligible,
		FundingSourceID: d.FundingSourceID,
		ProgramID:       d.ProgramID,
		FundingTypeID:   d.FundingTypeID,
		Description:     d.Description,
		UCLStatus:       d.UCLStatus,
		IDNumber:        d.IDNumber,
		ProjectTitle:    d.ProjectTitle,
		EducationFields: append([]int(nil), d.EducationFields...),
		EducationLevels: append([]string(nil), d.EducationLevels...),
		EntityIDs:       append([]int(nil), d.EntityIDs...),
		OfferIDs:        append([]int(nil), d.OfferIDs...),
	}
}

func (svc *service) Delete(ctx context.Context, actor perms.Subject, p Partnership) error {
	if !perms.CanDeletePartnership(actor, len(p.Agreements) > 0) {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeletePartnership(ctx, p.ID)
}

func (svc *service) Get(ctx context.Context, id int) (Partnership, error) {
	return svc.repo.GetPartnership(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUUID(ctx context.Context, uid string) (Partnership, error) {
	if _, err := uuid.Parse(uid); err != nil {
		return Partnership{}, ErrNotFound
	}
	return svc.repo.GetPartnership(ctx, GetFilter{UUID: uid})
}

func (svc *service) expandEntity(ctx context.Context, filter *QueryFilter) error {
	if filter == nil || filter.UCLEntity == 0 {
		return nil
	}
	if !filter.UCLEntityWithChild {
		filter.UCLEntityIDs = []int{filter.UCLEntity}
		return nil
	}
	ids, err := svc.entitySvc.Descendants(ctx, filter.UCLEntity)
	if err != nil {
		return errors.Wrap(err, "finding UCL entity descendants")
	}
	filter.UCLEntityIDs = ids
	return nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Partnership, error) {
	if err := svc.expandEntity(ctx, filter); err != nil {
		return nil, err
	}
	filter.Clean()
	return svc.repo.QueryPartnerships(ctx, filter, ExpandOrdering(ordering))
}

func (svc *service) EndingWithoutAgreement(ctx context.Context, y academic.Year) ([]Partnership, error) {
	all, err := svc.repo.QueryPartnerships(ctx, &QueryFilter{}, ExpandOrdering(nil))
	if err != nil {
		return nil, errors.Wrap(err, "querying partnerships")
	}
	var ending []Partnership
	for _, p := range all {
		if !ptype.HasYears(p.Type) {
			continue
		}
		if end, ok := p.EndAcademicYear(); ok && end == y && !p.HasAgreementIn(y.Next()) {
			ending = append(ending, p)
		}
	}
	return ending, nil
}

func (svc *service) Missions(ctx context.Context, partnershipType string) ([]Mission, error) {
	missions, err := svc.repo.QueryMissions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying missions")
	}
	if partnershipType == "" {
		return missions, nil
	}
	filtered := make([]Mission, 0, len(missions))
	for _, m := range missions {
		if m.AllowsType(partnershipType) {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

func (svc *service) Subtypes(ctx context.Context, partnershipType string) ([]Subtype, error) {
	subtypes, err := svc.repo.QuerySubtypes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying subtypes")
	}
	filtered := make([]Subtype, 0, len(subtypes))
	for _, st := range subtypes {
		if st.IsActive && (partnershipType == "" || st.AllowsType(partnershipType)) {
			filtered = append(filtered, st)
		}
	}
	return filtered, nil
}

// Agreements

func (svc *service) GetAgreement(ctx context.Context, partnershipID, id int) (Agreement, error) {
	return svc.repo.GetAgreement(ctx, partnershipID, id)
}

func (svc *service) QueryAgreements(ctx context.Context, filter *AgreementFilter, ordering []core.DBOrdering) ([]AgreementSummary, error) {
	if filter != nil {
		if err := svc.expandEntity(ctx, &filter.QueryFilter); err != nil {
			return nil, err
		}
	}
	filter.Clean()
	return svc.repo.QueryAgreements(ctx, filter, ExpandOrdering(ordering))
}

// applyAgreement sets the years and dates of a from data: years for partnerships bounded by years,
// dates for the others, the missing ones being deduced.
func applyAgreement(actor perms.Subject, p Partnership, a *Agreement, data AgreementData) error {
	var errs core.FieldErrors
	if ptype.HasYears(p.Type) {
		if data.StartAcademicYear == nil {
			errs.Add("start_academic_year", errRequired)
		}
		if data.EndAcademicYear == nil {
			errs.Add("end_academic_year", errRequired)
		}
		if err := errs.Err(); err != nil {
			return err
		}
		a.StartAcademicYear = academic.Year(*data.StartAcademicYear)
		a.EndAcademicYear = academic.Year(*data.EndAcademicYear)
		start, end := a.StartAcademicYear.Start(), a.EndAcademicYear.End()
		a.StartDate, a.EndDate = &start, &end
	} else {
		if data.StartDate == nil {
			errs.Add("start_date", errRequired)
		}
		if data.EndDate == nil {
			errs.Add("end_date", errRequired)
		}
		if err := errs.Err(); err != nil {
			return err
		}
		start, end := core.DateOf(*data.StartDate), core.DateOf(*data.EndDate)
		a.StartDate, a.EndDate = &start, &end
		a.StartAcademicYear = academic.Containing(start)
		a.EndAcademicYear = academic.Containing(end)
	}
	a.Comment = data.Comment
	if actor.IsADRI() && data.Status != "" {
		a.Status = data.Status
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// agreementWarnings tells when the agreement exceeds the years of the partnership.
func agreementWarnings(p Partnership, a Agreement) []string {
	var warnings []string
	if start, ok := p.StartAcademicYear(); ok && a.StartAcademicYear < start {
		warnings = append(warnings, agreementBeforeWarning)
	}
	if end, ok := p.EndAcademicYear(); ok && a.EndAcademicYear > end {
		warnings = append(warnings, agreementAfterWarning)
	}
	return warnings
}

func agreementUpload(p Partnership, file *media.Upload) *media.Upload {
	if file == nil {
		return nil
	}
	renamed := *file
	renamed.Name = AgreementMediaFileName(p.ID, p.Partner.ID, path.Ext(file.Name))
	return &renamed
}

func (svc *service) CreateAgreement(
	ctx context.Context, actor perms.Subject, p Partnership, data AgreementData, md media.MediaData, file *media.Upload,
) (Agreement, error) {
	if !perms.CanChangePartnership(actor, p.UCLEntityID, p.Type) {
		return Agreement{}, core.ErrPermissionDenied
	}
	a := Agreement{PartnershipID: p.ID, Status: StatusWaiting}
	if err := applyAgreement(actor, p, &a, data); err != nil {
		return Agreement{}, err
	}

	m, err := svc.mediaSvc.Prepare(ctx, actor.User.ID, md, agreementUpload(p, file))
	if err != nil {
		return Agreement{}, err
	}
	created, err := svc.repo.CreateAgreement(ctx, a, m)
	if err != nil {
		svc.mediaSvc.Discard(ctx, m)
		return Agreement{}, errors.Wrap(err, "creating agreement")
	}
	created.Warnings = agreementWarnings(p, created)
	return created, nil
}

func (svc *service) agreementMedia(ctx context.Context, a Agreement) (media.Media, error) {
	if a.Media != nil {
		return *a.Media, nil
	}
	return svc.mediaSvc.Get(ctx, a.MediaID)
}

func (svc *service) UpdateAgreement(
	ctx context.Context, actor perms.Subject, p Partnership, a Agreement, data AgreementData, md media.MediaData, file *media.Upload,
) (Agreement, error) {
	if !perms.CanChangeAgreement(actor, a.Status, p.UCLEntityID) {
		return Agreement{}, core.ErrPermissionDenied
	}
	if err := applyAgreement(actor, p, &a, data); err != nil {
		return Agreement{}, err
	}

	old, err := svc.agreementMedia(ctx, a)
	if err != nil {
		return Agreement{}, errors.Wrap(err, "finding agreement media")
	}
	m, err := svc.mediaSvc.Revise(ctx, old, md, agreementUpload(p, file))
	if err != nil {
		return Agreement{}, err
	}
	updated, err := svc.repo.UpdateAgreement(ctx, a, m)
	if err != nil {
		if m.FileKey != old.FileKey {
			svc.mediaSvc.Discard(ctx, m)
		}
		return Agreement{}, errors.Wrap(err, "updating agreement")
	}
	svc.mediaSvc.Cleanup(ctx, old, m)
	updated.Warnings = agreementWarnings(p, updated)
	return updated, nil
}

func (svc *service) DeleteAgreement(ctx context.Context, actor perms.Subject, p Partnership, a Agreement) error {
	if !perms.CanDeleteAgreement(actor, a.Status, p.UCLEntityID) {
		return core.ErrPermissionDenied
	}
	m, err := svc.agreementMedia(ctx, a)
	if err != nil && errors.Cause(err) != media.ErrNotFound {
		return errors.Wrap(err, "finding agreement media")
	}
	if err = svc.repo.DeleteAgreement(ctx, a); err != nil {
		return errors.Wrap(err, "deleting agreement")
	}
	svc.mediaSvc.Discard(ctx, m)
	return nil
}

// Contacts

func (svc *service) Contacts(ctx context.Context, partnershipID int) ([]contact.Contact, error) {
	return svc.repo.QueryContacts(ctx, partnershipID)
}

func (svc *service) GetContact(ctx context.Context, partnershipID, id int) (contact.Contact, error) {
	return svc.repo.GetContact(ctx, partnershipID, id)
}

func (svc *service) CreateContact(ctx context.Context, actor perms.Subject, p Partnership, data contact.ContactData) (contact.Contact, error) {
	if !perms.CanChangePartnership(actor, p.UCLEntityID, p.Type) {
		return contact.Contact{}, core.ErrPermissionDenied
	}
	return svc.repo.CreateContact(ctx, p.ID, data.Contact(0))
}

func (svc *service) UpdateContact(ctx context.Context, actor perms.Subject, p Partnership, c contact.Contact, data contact.ContactData) (contact.Contact, error) {
	if !perms.CanChangePartnership(actor, p.UCLEntityID, p.Type) {
		return contact.Contact{}, core.ErrPermissionDenied
	}
	return svc.repo.UpdateContact(ctx, data.Contact(c.ID))
}

func (svc *service) DeleteContact(ctx context.Context, actor perms.Subject, p Partnership, c contact.Contact) error {
	if !perms.CanChangePartnership(actor, p.UCLEntityID, p.Type) {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeleteContact(ctx, c.ID)
}

// Medias

func partnershipOwner(partnershipID int) media.Owner {
	return media.Owner{Kind: media.OwnerPartnership, ID: partnershipID}
}

func (svc *service) Medias(ctx context.Context, partnershipID int) ([]media.Media, error) {
	return svc.mediaSvc.List(ctx, partnershipOwner(partnershipID))
}

func (svc *service) AddMedia(ctx context.Context, actor perms.Subject, p Partnership, data media.MediaData, file *media.Upload) (media.Media, error) {
	if !perms.CanChangePartnership(actor, p.UCLEntityID, p.Type) {
		return media.Media{}, core.ErrPermissionDenied
	}
	owner := partnershipOwner(p.ID)
	return svc.mediaSvc.Create(ctx, actor.User.ID, &owner, data, file)
}

func (svc *service) ownedMedia(ctx context.Context, actor perms.Subject, p Partnership, mediaID int) (media.Media, error) {
	m, err := svc.mediaSvc.GetFor(ctx, partnershipOwner(p.ID), mediaID)
	if err != nil {
		return media.Media{}, err
	}
	if !perms.CanChangeMedia(actor, m.AuthorID, perms.CanChangePartnership(actor, p.UCLEntityID, p.Type)) {
		return media.Media{}, core.ErrPermissionDenied
	}
	return m, nil
}

func (svc *service) UpdateMedia(ctx context.Context, actor perms.Subject, p Partnership, mediaID int, data media.MediaData, file *media.Upload) (media.Media, error) {
	m, err := svc.ownedMedia(ctx, actor, p, mediaID)
	if err != nil {
		return media.Media{}, err
	}
	return svc.mediaSvc.Update(ctx, m, data, file)
}

func (svc *service) DeleteMedia(ctx context.Context, actor perms.Subject, p Partnership, mediaID int) error {
	m, err := svc.ownedMedia(ctx, actor, p, mediaID)
	if err != nil {
		return err
	}
	return svc.mediaSvc.Delete(ctx, m)
}

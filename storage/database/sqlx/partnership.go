package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/academic"
	"github.com/uclouvain/osis-partnership-sub000/core/contact"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
	"github.com/uclouvain/osis-partnership-sub000/core/partnership"
)

// entityTreeQuery labels every UCL entity with its acronym path, the root left out,
// and with its closest faculty.
const entityTreeQuery = `WITH RECURSIVE entity_tree AS (
    SELECT id, acronym::TEXT AS label, CASE WHEN type = 'FACULTY' THEN id END AS faculty_id, 0 AS depth
    FROM entity WHERE parent_id IS NULL
    UNION ALL
    SELECT e.id,
        CASE WHEN t.depth = 0 THEN e.acronym::TEXT ELSE t.label || ' / ' || e.acronym END,
        CASE WHEN e.type = 'FACULTY' THEN e.id ELSE t.faculty_id END,
        t.depth + 1
    FROM entity e JOIN entity_tree t ON e.parent_id = t.id
)`

type partnershipRow struct {
	ID                  int            `db:"id"`
	UUID                string         `db:"uuid"`
	Type                string         `db:"partnership_type"`
	UCLEntityID         int            `db:"ucl_entity_id"`
	UCLEntityPath       string         `db:"ucl_entity_path"`
	SupervisorID        null.Int       `db:"supervisor_id"`
	DefaultSupervisorID null.Int       `db:"default_supervisor_id"`
	SubtypeID           null.Int       `db:"subtype_id"`
	SubtypeLabel        null.String    `db:"subtype_label"`
	SubtypeCode         null.String    `db:"subtype_code"`
	SubtypeTypes        pq.StringArray `db:"subtype_types"`
	SubtypeIsActive     null.Bool      `db:"subtype_is_active"`
	MissionIDs          pq.Int64Array  `db:"mission_ids"`
	Description         string         `db:"description"`
	Comment             string         `db:"comment"`
	IsPublic            bool           `db:"is_public"`
	StartDate           null.Time      `db:"start_date"`
	EndDate             null.Time      `db:"end_date"`
	ProjectAcronym      string         `db:"project_acronym"`
	UCLReference        bool           `db:"ucl_reference"`
	AllStudent          bool           `db:"all_student"`
	DiplomaByUCL        string         `db:"diploma_by_ucl"`
	DiplomaProdByUCL    bool           `db:"diploma_prod_by_ucl"`
	SupplementProdByUCL string         `db:"supplement_prod_by_ucl"`
	Tags                pq.StringArray `db:"tags"`
	AuthorID            null.Int       `db:"author_id"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (r partnershipRow) partnership() partnership.Partnership {
	p := partnership.Partnership{
		ID:                  r.ID,
		UUID:                r.UUID,
		Type:                r.Type,
		UCLEntityID:         r.UCLEntityID,
		UCLEntityPath:       r.UCLEntityPath,
		SupervisorID:        intPtr(r.SupervisorID),
		SubtypeID:           intPtr(r.SubtypeID),
		MissionIDs:          intsOf(r.MissionIDs),
		Missions:            []partnership.Mission{},
		Description:         r.Description,
		Comment:             r.Comment,
		IsPublic:            r.IsPublic,
		StartDate:           r.StartDate.Ptr(),
		EndDate:             r.EndDate.Ptr(),
		ProjectAcronym:      r.ProjectAcronym,
		UCLReference:        r.UCLReference,
		AllStudent:          r.AllStudent,
		DiplomaByUCL:        r.DiplomaByUCL,
		DiplomaProdByUCL:    r.DiplomaProdByUCL,
		SupplementProdByUCL: r.SupplementProdByUCL,
		Tags:                append([]string{}, r.Tags...),
		Relations:           []partnership.Relation{},
		Years:               []partnership.Year{},
		Agreements:          []partnership.Agreement{},
		AuthorID:            intPtr(r.AuthorID),
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		DefaultSupervisorID: intPtr(r.DefaultSupervisorID),
	}
	if r.SubtypeID.Valid {
		p.Subtype = &partnership.Subtype{
			ID:       r.SubtypeID.Int,
			Label:    r.SubtypeLabel.String,
			Code:     r.SubtypeCode.String,
			Types:    append([]string{}, r.SubtypeTypes...),
			IsActive: r.SubtypeIsActive.Bool,
		}
	}
	return p
}

func partnershipValues(p partnership.Partnership) map[string]interface{} {
	return map[string]interface{}{
		"ucl_entity_id":          p.UCLEntityID,
		"supervisor_id":          null.IntFromPtr(p.SupervisorID),
		"subtype_id":             null.IntFromPtr(p.SubtypeID),
		"description":            p.Description,
		"comment":                p.Comment,
		"is_public":              p.IsPublic,
		"start_date":             null.TimeFromPtr(p.StartDate),
		"end_date":               null.TimeFromPtr(p.EndDate),
		"project_acronym":        p.ProjectAcronym,
		"ucl_reference":          p.UCLReference,
		"all_student":            p.AllStudent,
		"diploma_by_ucl":         p.DiplomaByUCL,
		"diploma_prod_by_ucl":    p.DiplomaProdByUCL,
		"supplement_prod_by_ucl": p.SupplementProdByUCL,
		"updated_at":             p.UpdatedAt,
	}
}

type relationRow struct {
	ID                      int    `db:"id"`
	PartnershipID           int    `db:"partnership_id"`
	PartnerID               int    `db:"partner_id"`
	PartnerName             string `db:"partner_name"`
	PartnerEntityID         int    `db:"partner_entity_id"`
	PartnerEntityName       string `db:"partner_entity_name"`
	DiplomaWithUCLByPartner string `db:"diploma_with_ucl_by_partner"`
	DiplomaProdByPartner    bool   `db:"diploma_prod_by_partner"`
	SupplementProdByPartner string `db:"supplement_prod_by_partner"`
	PartnerReferent         bool   `db:"partner_referent"`
}

type yearRow struct {
	ID              int            `db:"id"`
	PartnershipID   int            `db:"partnership_id"`
	AcademicYear    int            `db:"academic_year"`
	IsSMS           bool           `db:"is_sms"`
	IsSMP           bool           `db:"is_smp"`
	IsSMST          bool           `db:"is_smst"`
	IsSTA           bool           `db:"is_sta"`
	IsSTT           bool           `db:"is_stt"`
	Eligible        bool           `db:"eligible"`
	FundingSourceID null.Int       `db:"funding_source_id"`
	ProgramID       null.Int       `db:"funding_program_id"`
	FundingTypeID   null.Int       `db:"funding_type_id"`
	Description     string         `db:"description"`
	UCLStatus       string         `db:"ucl_status"`
	IDNumber        string         `db:"id_number"`
	ProjectTitle    string         `db:"project_title"`
	EducationFields pq.Int64Array  `db:"education_fields"`
	EducationLevels pq.StringArray `db:"education_levels"`
	EntityIDs       pq.Int64Array  `db:"entities"`
	OfferIDs        pq.Int64Array  `db:"offers"`
}

var yearColumns = []string{
	"academic_year", "is_sms", "is_smp", "is_smst", "is_sta", "is_stt", "eligible",
	"funding_source_id", "funding_program_id", "funding_type_id", "description", "ucl_status",
	"id_number", "project_title", "education_fields", "education_levels", "entities", "offers",
}

func (r yearRow) year() partnership.Year {
	return partnership.Year{
		ID:              r.ID,
		PartnershipID:   r.PartnershipID,
		AcademicYear:    academic.Year(r.AcademicYear),
		IsSMS:           r.IsSMS,
		IsSMP:           r.IsSMP,
		IsSMST:          r.IsSMST,
		IsSTA:           r.IsSTA,
		IsSTT:           r.IsSTT,
		Eligible:        r.Eligible,
		FundingSourceID: intPtr(r.FundingSourceID),
		ProgramID:       intPtr(r.ProgramID),
		FundingTypeID:   intPtr(r.FundingTypeID),
		Description:     r.Description,
		UCLStatus:       r.UCLStatus,
		IDNumber:        r.IDNumber,
		ProjectTitle:    r.ProjectTitle,
		EducationFields: intsOf(r.EducationFields),
		EducationLevels: append([]string{}, r.EducationLevels...),
		EntityIDs:       intsOf(r.EntityIDs),
		OfferIDs:        intsOf(r.OfferIDs),
	}
}

// yearValues follows the order of yearColumns.
func yearValues(y partnership.Year) []interface{} {
	levels := pq.StringArray(y.EducationLevels)
	if levels == nil {
		levels = pq.StringArray{}
	}
	return []interface{}{
		int(y.AcademicYear), y.IsSMS, y.IsSMP, y.IsSMST, y.IsSTA, y.IsSTT, y.Eligible,
		null.IntFromPtr(y.FundingSourceID), null.IntFromPtr(y.ProgramID), null.IntFromPtr(y.FundingTypeID),
		y.Description, y.UCLStatus, y.IDNumber, y.ProjectTitle,
		int64Array(y.EducationFields), levels, int64Array(y.EntityIDs), int64Array(y.OfferIDs),
	}
}

type agreementRow struct {
	ID                int       `db:"id"`
	PartnershipID     int       `db:"partnership_id"`
	StartAcademicYear int       `db:"start_academic_year"`
	EndAcademicYear   int       `db:"end_academic_year"`
	StartDate         null.Time `db:"start_date"`
	EndDate           null.Time `db:"end_date"`
	MediaID           int       `db:"media_id"`
	Status            string    `db:"status"`
	Comment           string    `db:"comment"`
	UpdatedAt         time.Time `db:"updated_at"`
}

var agreementColumns = []string{
	"a.id", "a.partnership_id", "a.start_academic_year", "a.end_academic_year", "a.start_date", "a.end_date",
	"a.media_id", "a.status", "a.comment", "a.updated_at",
}

func (r agreementRow) agreement(medias map[int]media.Media) partnership.Agreement {
	a := partnership.Agreement{
		ID:                r.ID,
		PartnershipID:     r.PartnershipID,
		StartAcademicYear: academic.Year(r.StartAcademicYear),
		EndAcademicYear:   academic.Year(r.EndAcademicYear),
		StartDate:         r.StartDate.Ptr(),
		EndDate:           r.EndDate.Ptr(),
		MediaID:           r.MediaID,
		Status:            r.Status,
		Comment:           r.Comment,
		UpdatedAt:         r.UpdatedAt,
	}
	if m, ok := medias[r.MediaID]; ok {
		a.Media = &m
	}
	return a
}

func agreementValues(a partnership.Agreement) map[string]interface{} {
	return map[string]interface{}{
		"start_academic_year": int(a.StartAcademicYear),
		"end_academic_year":   int(a.EndAcademicYear),
		"start_date":          null.TimeFromPtr(a.StartDate),
		"end_date":            null.TimeFromPtr(a.EndDate),
		"media_id":            a.MediaID,
		"status":              a.Status,
		"comment":             a.Comment,
		"updated_at":          a.UpdatedAt,
	}
}

type partnerSummaryRow struct {
	ID          int            `db:"id"`
	UUID        string         `db:"uuid"`
	Name        string         `db:"name"`
	PartnerType string         `db:"partner_type"`
	ErasmusCode string         `db:"erasmus_code"`
	UseEgracons bool           `db:"use_egracons"`
	IsActif     bool           `db:"is_actif"`
	City        string         `db:"city"`
	CountryID   null.Int       `db:"country_id"`
	CountryName string         `db:"country_name"`
	CountryISO  string         `db:"country_iso"`
	ContinentID null.Int       `db:"continent_id"`
	Tags        pq.StringArray `db:"tags"`
}

func (r partnerSummaryRow) summary() partnership.PartnerSummary {
	return partnership.PartnerSummary{
		ID:          r.ID,
		UUID:        r.UUID,
		Name:        r.Name,
		PartnerType: r.PartnerType,
		ErasmusCode: r.ErasmusCode,
		UseEgracons: r.UseEgracons,
		IsActif:     r.IsActif,
		City:        r.City,
		CountryID:   intPtr(r.CountryID),
		CountryName: r.CountryName,
		CountryISO:  r.CountryISO,
		ContinentID: intPtr(r.ContinentID),
		Tags:        append([]string{}, r.Tags...),
	}
}

type labelledRow struct {
	ID       int            `db:"id"`
	Label    string         `db:"label"`
	Code     string         `db:"code"`
	Types    pq.StringArray `db:"types"`
	IsActive bool           `db:"is_active"`
}

type partnershipRepository struct {
	repository
}

var _ partnership.Repository = (*partnershipRepository)(nil)

func NewPartnershipRepository(db core.DB) partnership.Repository {
	return &partnershipRepository{repository{db: db}}
}

func (repo partnershipRepository) selectPartnerships() sq.SelectBuilder {
	return psql.Select(
		"p.id", "p.uuid", "p.partnership_type", "p.ucl_entity_id", "COALESCE(et.label, '') AS ucl_entity_path",
		"p.supervisor_id", "p.subtype_id", "st.label AS subtype_label", "st.code AS subtype_code",
		"st.types AS subtype_types", "st.is_active AS subtype_is_active", "p.description", "p.comment",
		"p.is_public", "p.start_date", "p.end_date", "p.project_acronym", "p.ucl_reference", "p.all_student",
		"p.diploma_by_ucl", "p.diploma_prod_by_ucl", "p.supplement_prod_by_ucl", "p.author_id",
		"p.created_at", "p.updated_at",
		`(SELECT u.academic_responsible_id FROM ucl_management_entity u
			WHERE u.faculty_id = et.faculty_id AND (u.entity_id = p.ucl_entity_id OR u.entity_id IS NULL)
			ORDER BY u.entity_id NULLS LAST LIMIT 1) AS default_supervisor_id`,
		`COALESCE((SELECT array_agg(pm.mission_id ORDER BY pm.mission_id) FROM partnership_missions pm
			WHERE pm.partnership_id = p.id), '{}') AS mission_ids`,
		`COALESCE((SELECT array_agg(t.value ORDER BY t.value) FROM partnership_tags pt
			JOIN partnership_tag t ON t.id = pt.tag_id WHERE pt.partnership_id = p.id), '{}') AS tags`,
	).
		Prefix(entityTreeQuery).
		From("partnership p").
		LeftJoin("entity_tree et ON et.id = p.ucl_entity_id").
		LeftJoin("partnership_subtype st ON st.id = p.subtype_id")
}

// load runs q and completes the partnerships with their relations, missions, years, agreements and partner.
func (repo partnershipRepository) load(ctx context.Context, exe core.DBExecutor, q sq.SelectBuilder) ([]partnership.Partnership, error) {
	var rows []partnershipRow
	if err := selectAll(ctx, exe, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying partnerships")
	}
	if len(rows) == 0 {
		return []partnership.Partnership{}, nil
	}

	partnerships := make([]partnership.Partnership, 0, len(rows))
	index := make(map[int]int, len(rows))
	ids := make([]int, 0, len(rows))
	for i, r := range rows {
		partnerships = append(partnerships, r.partnership())
		index[r.ID] = i
		ids = append(ids, r.ID)
	}

	missions, err := repo.QueryMissions(ctx, exe)
	if err != nil {
		return nil, err
	}
	missionsByID := make(map[int]partnership.Mission, len(missions))
	for _, m := range missions {
		missionsByID[m.ID] = m
	}
	for i := range partnerships {
		for _, id := range partnerships[i].MissionIDs {
			if m, ok := missionsByID[id]; ok {
				partnerships[i].Missions = append(partnerships[i].Missions, m)
			}
		}
	}

	var relations []relationRow
	err = selectAll(ctx, exe, &relations, psql.Select(
		"r.id", "r.partnership_id", "pe.partner_id", "pa.name AS partner_name", "r.partner_entity_id",
		"pe.name AS partner_entity_name", "r.diploma_with_ucl_by_partner", "r.diploma_prod_by_partner",
		"r.supplement_prod_by_partner", "r.partner_referent",
	).
		From("partnership_partner_relation r").
		Join("partner_entity pe ON pe.id = r.partner_entity_id").
		Join("partner pa ON pa.id = pe.partner_id").
		Where(sq.Eq{"r.partnership_id": ids}).
		OrderBy("r.id"))
	if err != nil {
		return nil, errors.Wrap(err, "querying partnership relations")
	}
	firstPartner := make(map[int]int, len(rows))
	var partnerIDs []int
	for _, r := range relations {
		p := &partnerships[index[r.PartnershipID]]
		p.Relations = append(p.Relations, partnership.Relation{
			ID:                      r.ID,
			PartnerID:               r.PartnerID,
			PartnerName:             r.PartnerName,
			PartnerEntityID:         r.PartnerEntityID,
			PartnerEntityName:       r.PartnerEntityName,
			DiplomaWithUCLByPartner: r.DiplomaWithUCLByPartner,
			DiplomaProdByPartner:    r.DiplomaProdByPartner,
			SupplementProdByPartner: r.SupplementProdByPartner,
			PartnerReferent:         r.PartnerReferent,
		})
		if _, ok := firstPartner[r.PartnershipID]; !ok {
			firstPartner[r.PartnershipID] = r.PartnerID
			partnerIDs = append(partnerIDs, r.PartnerID)
		}
	}

	summaries, err := partnerSummaries(ctx, exe, partnerIDs)
	if err != nil {
		return nil, err
	}
	for pid, partnerID := range firstPartner {
		partnerships[index[pid]].Partner = summaries[partnerID]
	}

	var years []yearRow
	err = selectAll(ctx, exe, &years, psql.Select(append([]string{"id", "partnership_id"}, yearColumns...)...).
		From("partnership_year").
		Where(sq.Eq{"partnership_id": ids}).
		OrderBy("academic_year"))
	if err != nil {
		return nil, errors.Wrap(err, "querying partnership years")
	}
	for _, y := range years {
		p := &partnerships[index[y.PartnershipID]]
		p.Years = append(p.Years, y.year())
	}

	agreements, err := queryAgreements(ctx, exe, sq.Eq{"a.partnership_id": ids})
	if err != nil {
		return nil, err
	}
	for _, a := range agreements {
		p := &partnerships[index[a.PartnershipID]]
		p.Agreements = append(p.Agreements, a)
	}
	return partnerships, nil
}

func partnerSummaries(ctx context.Context, exe core.DBExecutor, partnerIDs []int) (map[int]partnership.PartnerSummary, error) {
	summaries := make(map[int]partnership.PartnerSummary, len(partnerIDs))
	if len(partnerIDs) == 0 {
		return summaries, nil
	}
	today := core.Today()
	var rows []partnerSummaryRow
	err := selectAll(ctx, exe, &rows, psql.Select(
		"pa.id", "pa.uuid", "pa.name", "pa.partner_type", "COALESCE(pa.erasmus_code, '') AS erasmus_code",
		"pa.use_egracons", "pa.address_city AS city", "pa.address_country_id AS country_id",
		"COALESCE(co.name, '') AS country_name", "COALESCE(co.iso_code, '') AS country_iso", "co.continent_id",
		`COALESCE((SELECT array_agg(t.value ORDER BY t.value) FROM partner_tags pt
			JOIN partner_tag t ON t.id = pt.tag_id WHERE pt.partner_id = pa.id), '{}') AS tags`,
	).
		Column(sq.Expr("(pa.start_date <= ? AND (pa.end_date IS NULL OR pa.end_date >= ?)) AS is_actif", today, today)).
		From("partner pa").
		LeftJoin("country co ON co.id = pa.address_country_id").
		Where(sq.Eq{"pa.id": partnerIDs}))
	if err != nil {
		return nil, errors.Wrap(err, "querying partners of partnerships")
	}
	for _, r := range rows {
		summaries[r.ID] = r.summary()
	}
	return summaries, nil
}

func queryAgreements(ctx context.Context, exe core.DBExecutor, where sq.Sqlizer) ([]partnership.Agreement, error) {
	var rows []agreementRow
	q := psql.Select(agreementColumns...).
		From("partnership_agreement a").
		Where(where).
		OrderBy("a.start_academic_year", "a.id")
	if err := selectAll(ctx, exe, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying agreements")
	}
	if len(rows) == 0 {
		return []partnership.Agreement{}, nil
	}

	mediaIDs := make([]int, 0, len(rows))
	for _, r := range rows {
		mediaIDs = append(mediaIDs, r.MediaID)
	}
	var mrows []mediaRow
	if err := selectAll(ctx, exe, &mrows, selectMedias().Where(sq.Eq{"m.id": mediaIDs})); err != nil {
		return nil, errors.Wrap(err, "querying agreement medias")
	}
	medias := make(map[int]media.Media, len(mrows))
	for _, m := range mrows {
		medias[m.ID] = m.media()
	}

	agreements := make([]partnership.Agreement, 0, len(rows))
	for _, r := range rows {
		agreements = append(agreements, r.agreement(medias))
	}
	return agreements, nil
}

// saveChildren replaces the missions, tags, relations and years of p.
func (repo partnershipRepository) saveChildren(ctx context.Context, exe core.DBExecutor, p partnership.Partnership) error {
	if err := syncLinks(ctx, exe, "partnership_missions", "partnership_id", p.ID, "mission_id", p.MissionIDs); err != nil {
		return err
	}
	if err := linkTags(ctx, exe, "partnership_tag", "partnership_tags", "partnership_id", p.ID, p.Tags); err != nil {
		return err
	}

	entityIDs := p.PartnerEntityIDs()
	del := psql.Delete("partnership_partner_relation").Where(sq.Eq{"partnership_id": p.ID})
	if len(entityIDs) > 0 {
		del = del.Where(sq.NotEq{"partner_entity_id": entityIDs})
	}
	if _, err := execute(ctx, exe, del); err != nil {
		return errors.Wrap(err, "deleting partnership relations")
	}
	for _, r := range p.Relations {
		_, err := execute(ctx, exe, psql.Insert("partnership_partner_relation").
			Columns("partnership_id", "partner_entity_id", "diploma_with_ucl_by_partner", "diploma_prod_by_partner",
				"supplement_prod_by_partner", "partner_referent").
			Values(p.ID, r.PartnerEntityID, r.DiplomaWithUCLByPartner, r.DiplomaProdByPartner,
				r.SupplementProdByPartner, r.PartnerReferent).
			Suffix(`ON CONFLICT (partnership_id, partner_entity_id) DO UPDATE SET
				diploma_with_ucl_by_partner = EXCLUDED.diploma_with_ucl_by_partner,
				diploma_prod_by_partner = EXCLUDED.diploma_prod_by_partner,
				supplement_prod_by_partner = EXCLUDED.supplement_prod_by_partner,
				partner_referent = EXCLUDED.partner_referent`))
		if err != nil {
			if isForeignKeyViolation(err) {
				return core.NewFieldError("partner_entities", "unknown partner entity")
			}
			return errors.Wrap(err, "saving partnership relation")
		}
	}

	years := make([]int, 0, len(p.Years))
	for _, y := range p.Years {
		years = append(years, int(y.AcademicYear))
	}
	del = psql.Delete("partnership_year").Where(sq.Eq{"partnership_id": p.ID})
	if len(years) > 0 {
		del = del.Where(sq.NotEq{"academic_year": years})
	}
	if _, err := execute(ctx, exe, del); err != nil {
		return errors.Wrap(err, "deleting partnership years")
	}
	if len(p.Years) == 0 {
		return nil
	}
	updates := make([]string, 0, len(yearColumns)-1)
	for _, col := range yearColumns[1:] {
		updates = append(updates, col+" = EXCLUDED."+col)
	}
	ins := psql.Insert("partnership_year").
		Columns(append([]string{"partnership_id"}, yearColumns...)...).
		Suffix("ON CONFLICT (partnership_id, academic_year) DO UPDATE SET " + strings.Join(updates, ", "))
	for _, y := range p.Years {
		ins = ins.Values(append([]interface{}{p.ID}, yearValues(y)...)...)
	}
	_, err := execute(ctx, exe, ins)
	return errors.Wrap(err, "saving partnership years")
}

func (repo partnershipRepository) CreatePartnership(ctx context.Context, p partnership.Partnership, exec ...core.DBExecutor) (partnership.Partnership, error) {
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		values := partnershipValues(p)
		values["uuid"] = p.UUID
		values["partnership_type"] = p.Type
		values["author_id"] = null.IntFromPtr(p.AuthorID)
		values["created_at"] = p.CreatedAt
		id, err := insertID(ctx, exe, psql.Insert("partnership").SetMap(values))
		if err != nil {
			return errors.Wrap(err, "inserting partnership")
		}
		p.ID = id
		return repo.saveChildren(ctx, exe, p)
	})
	if err != nil {
		return partnership.Partnership{}, err
	}
	return repo.GetPartnership(ctx, partnership.GetFilter{ID: p.ID}, exec...)
}

func (repo partnershipRepository) GetPartnership(ctx context.Context, filter partnership.GetFilter, exec ...core.DBExecutor) (partnership.Partnership, error) {
	q := repo.selectPartnerships()
	switch {
	case filter.ID != 0:
		q = q.Where(sq.Eq{"p.id": filter.ID})
	case filter.UUID != "":
		q = q.Where(sq.Eq{"p.uuid": filter.UUID})
	default:
		return partnership.Partnership{}, partnership.ErrNotFound
	}
	partnerships, err := repo.load(ctx, repo.getExec(exec), q)
	if err != nil {
		return partnership.Partnership{}, err
	}
	if len(partnerships) == 0 {
		return partnership.Partnership{}, partnership.ErrNotFound
	}
	return partnerships[0], nil
}

// prefilter narrows the partnership rows in SQL: partnership columns, relations, year rows and agreements.
// The loaded partnerships still go through QueryFilter.Match.
func prefilter(q sq.SelectBuilder, filter *partnership.QueryFilter) sq.SelectBuilder {
	if filter == nil {
		return q
	}
	if len(filter.IDs) > 0 {
		q = q.Where(sq.Eq{"p.id": filter.IDs})
	}
	if len(filter.UCLEntityIDs) > 0 {
		q = q.Where(sq.Eq{"p.ucl_entity_id": filter.UCLEntityIDs})
	}
	if filter.PartnershipType != "" {
		q = q.Where(sq.Eq{"p.partnership_type": filter.PartnershipType})
	}
	if filter.Subtype != 0 {
		q = q.Where(sq.Eq{"p.subtype_id": filter.Subtype})
	}
	if filter.IsPublic != nil {
		q = q.Where(sq.Eq{"p.is_public": *filter.IsPublic})
	}
	if filter.Comment != "" {
		q = q.Where(ilike(filter.Comment, "p.comment"))
	}
	if filter.Partner != 0 {
		q = q.Where(sq.Expr(`EXISTS (SELECT 1 FROM partnership_partner_relation r
			JOIN partner_entity pe ON pe.id = r.partner_entity_id
			WHERE r.partnership_id = p.id AND pe.partner_id = ?)`, filter.Partner))
	}
	if filter.PartnerEntity != 0 {
		q = q.Where(sq.Expr(`EXISTS (SELECT 1 FROM partnership_partner_relation r
			WHERE r.partnership_id = p.id AND r.partner_entity_id = ?)`, filter.PartnerEntity))
	}
	if len(filter.Tags) > 0 {
		q = q.Where(sq.Expr(`EXISTS (SELECT 1 FROM partnership_tags pt JOIN partnership_tag t ON t.id = pt.tag_id
			WHERE pt.partnership_id = p.id AND t.value = ANY(?))`, pq.StringArray(filter.Tags)))
	}
	if years := yearConditions(filter); len(years) > 0 {
		q = q.Where(exists(sq.Select("1").From("partnership_year y").Where("y.partnership_id = p.id").Where(years)))
	}
	return prefilterAgreements(q, filter)
}

// yearConditions are the criteria one year row must match at once.
func yearConditions(filter *partnership.QueryFilter) sq.And {
	var conds sq.And
	if filter.EducationLevel != "" {
		conds = append(conds, sq.Expr("? = ANY(y.education_levels)", filter.EducationLevel))
	}
	if filter.EducationField != 0 {
		conds = append(conds, sq.Expr("? = ANY(y.education_fields)", filter.EducationField))
	}
	// a year without entities or offers is open to all of them
	if filter.YearsEntity != 0 {
		conds = append(conds, sq.Expr("(cardinality(y.entities) = 0 OR ? = ANY(y.entities))", filter.YearsEntity))
	}
	if filter.UniversityOffer != 0 {
		conds = append(conds, sq.Expr("(cardinality(y.offers) = 0 OR ? = ANY(y.offers))", filter.UniversityOffer))
	}
	flags := []struct {
		col  string
		want *bool
	}{
		{"y.is_sms", filter.IsSMS}, {"y.is_smp", filter.IsSMP}, {"y.is_smst", filter.IsSMST}, {"y.is_sta", filter.IsSTA}, {"y.is_stt", filter.IsSTT},
	}
	for _, f := range flags {
		if f.want != nil {
			conds = append(conds, sq.Eq{f.col: *f.want})
		}
	}
	fundings := []struct {
		col string
		id  int
	}{
		{"y.funding_source_id", filter.FundingSource}, {"y.funding_program_id", filter.FundingProgram}, {"y.funding_type_id", filter.FundingType},
	}
	for _, f := range fundings {
		if f.id != 0 {
			conds = append(conds, sq.Eq{f.col: f.id})
		}
	}
	return conds
}

// agreementIn selects the agreements of p covering the academic year.
func agreementIn(y int) sq.SelectBuilder {
	return sq.Select("1").From("partnership_agreement a").
		Where("a.partnership_id = p.id").
		Where(sq.LtOrEq{"a.start_academic_year": y}).
		Where(sq.GtOrEq{"a.end_academic_year": y})
}

func prefilterAgreements(q sq.SelectBuilder, filter *partnership.QueryFilter) sq.SelectBuilder {
	if y := filter.PartnershipIn; y != nil {
		q = q.Where(exists(agreementIn(*y)))
	}
	if y := filter.ValidIn; y != nil {
		q = q.Where(exists(agreementIn(*y).Where(sq.Eq{"a.status": partnership.StatusValidated})))
	}
	if y := filter.NotValidIn; y != nil {
		q = q.Where(exists(agreementIn(*y))).
			Where(notExists(agreementIn(*y).Where(sq.Eq{"a.status": partnership.StatusValidated})))
	}
	if y := filter.EndingIn; y != nil {
		q = q.Where(sq.Expr("(SELECT MAX(a.end_academic_year) FROM partnership_agreement a WHERE a.partnership_id = p.id) = ?", *y))
	}
	if y := filter.WithNoAgreementsIn; y != nil {
		q = q.Where(exists(sq.Select("1").From("partnership_year y").Where("y.partnership_id = p.id").Where(sq.Eq{"y.academic_year": *y}))).
			Where(notExists(agreementIn(*y)))
	}
	return q
}

// subquery wraps a select built with '?' placeholders; the outer builder numbers them.
type subquery struct {
	op  string
	sub sq.SelectBuilder
}

func (s subquery) ToSql() (string, []interface{}, error) {
	query, args, err := s.sub.ToSql()
	if err != nil {
		return "", nil, err
	}
	return s.op + " (" + query + ")", args, nil
}

func exists(sub sq.SelectBuilder) sq.Sqlizer    { return subquery{"EXISTS", sub} }
func notExists(sub sq.SelectBuilder) sq.Sqlizer { return subquery{"NOT EXISTS", sub} }

func paginate(n int, pg core.Pagination) (int, int) {
	start := int(pg.Offset)
	if start > n {
		start = n
	}
	end := n
	if pg.Limit > 0 && start+int(pg.Limit) < n {
		end = start + int(pg.Limit)
	}
	return start, end
}

func (repo partnershipRepository) QueryPartnerships(ctx context.Context, filter *partnership.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]partnership.Partnership, error) {
	loaded, err := repo.load(ctx, repo.getExec(exec), prefilter(repo.selectPartnerships(), filter))
	if err != nil {
		return nil, err
	}
	matching := loaded[:0]
	for _, p := range loaded {
		if filter.Match(p) {
			matching = append(matching, p)
		}
	}
	partnership.Sort(matching, ordering)
	if filter == nil {
		return matching, nil
	}
	start, end := paginate(len(matching), filter.Pagination)
	return matching[start:end], nil
}

func (repo partnershipRepository) UpdatePartnership(ctx context.Context, p partnership.Partnership, exec ...core.DBExecutor) (partnership.Partnership, error) {
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		res, err := execute(ctx, exe, psql.Update("partnership").SetMap(partnershipValues(p)).Where(sq.Eq{"id": p.ID}))
		if err = mustAffect(res, err, partnership.ErrNotFound); err != nil {
			return trapNoRowsErr(err, partnership.ErrNotFound, "updating partnership")
		}
		return repo.saveChildren(ctx, exe, p)
	})
	if err != nil {
		return partnership.Partnership{}, err
	}
	return repo.GetPartnership(ctx, partnership.GetFilter{ID: p.ID}, exec...)
}

func (repo partnershipRepository) DeletePartnership(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		var contactIDs []int
		q := psql.Select("contact_id").From("partnership_contacts").Where(sq.Eq{"partnership_id": id})
		if err := selectAll(ctx, exe, &contactIDs, q); err != nil {
			return errors.Wrap(err, "querying partnership contacts")
		}
		res, err := execute(ctx, exe, psql.Delete("partnership").Where(sq.Eq{"id": id}))
		if err = mustAffect(res, err, partnership.ErrNotFound); err != nil {
			if isForeignKeyViolation(err) {
				return core.NewValidationError(errors.New("the partnership still has agreements"))
			}
			return trapNoRowsErr(err, partnership.ErrNotFound, "deleting partnership")
		}
		if len(contactIDs) == 0 {
			return nil
		}
		_, err = execute(ctx, exe, psql.Delete("contact").Where(sq.Eq{"id": contactIDs}))
		return errors.Wrap(err, "deleting partnership contacts")
	})
}

func (repo partnershipRepository) QueryMissions(ctx context.Context, exec ...core.DBExecutor) ([]partnership.Mission, error) {
	var rows []labelledRow
	q := psql.Select("id", "label", "code", "types", "TRUE AS is_active").From("partnership_mission").OrderBy("label")
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying missions")
	}
	missions := make([]partnership.Mission, 0, len(rows))
	for _, r := range rows {
		missions = append(missions, partnership.Mission{ID: r.ID, Label: r.Label, Code: r.Code, Types: append([]string{}, r.Types...)})
	}
	return missions, nil
}

func (repo partnershipRepository) QuerySubtypes(ctx context.Context, exec ...core.DBExecutor) ([]partnership.Subtype, error) {
	var rows []labelledRow
	q := psql.Select("id", "label", "code", "types", "is_active").From("partnership_subtype").OrderBy("label")
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying subtypes")
	}
	subtypes := make([]partnership.Subtype, 0, len(rows))
	for _, r := range rows {
		subtypes = append(subtypes, partnership.Subtype{
			ID: r.ID, Label: r.Label, Code: r.Code, Types: append([]string{}, r.Types...), IsActive: r.IsActive,
		})
	}
	return subtypes, nil
}

// Agreements

func (repo partnershipRepository) CreateAgreement(ctx context.Context, a partnership.Agreement, m media.Media, exec ...core.DBExecutor) (partnership.Agreement, error) {
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		created, err := insertMedia(ctx, exe, m)
		if err != nil {
			return err
		}
		a.MediaID = created.ID
		values := agreementValues(a)
		values["partnership_id"] = a.PartnershipID
		a.ID, err = insertID(ctx, exe, psql.Insert("partnership_agreement").SetMap(values))
		return errors.Wrap(err, "inserting agreement")
	})
	if err != nil {
		return partnership.Agreement{}, err
	}
	return repo.GetAgreement(ctx, a.PartnershipID, a.ID, exec...)
}

func (repo partnershipRepository) GetAgreement(ctx context.Context, partnershipID, id int, exec ...core.DBExecutor) (partnership.Agreement, error) {
	agreements, err := queryAgreements(ctx, repo.getExec(exec), sq.Eq{"a.id": id, "a.partnership_id": partnershipID})
	if err != nil {
		return partnership.Agreement{}, err
	}
	if len(agreements) == 0 {
		return partnership.Agreement{}, partnership.ErrAgreementNotFound
	}
	return agreements[0], nil
}

func (repo partnershipRepository) QueryAgreements(ctx context.Context, filter *partnership.AgreementFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]partnership.AgreementSummary, error) {
	// the dates criteria apply to the agreements, not to their partnership
	var pfilter *partnership.QueryFilter
	if filter != nil {
		qf := filter.QueryFilter
		qf.SpecialDatesType, qf.Pagination = "", core.Pagination{}
		pfilter = &qf
	}
	partnerships, err := repo.QueryPartnerships(ctx, pfilter, ordering, exec...)
	if err != nil {
		return nil, err
	}

	summaries := make([]partnership.AgreementSummary, 0)
	for _, p := range partnerships {
		start, end := p.StartPartnership(), p.EndPartnership()
		for _, a := range p.Agreements {
			if !filter.MatchAgreement(a) {
				continue
			}
			summaries = append(summaries, partnership.AgreementSummary{
				Agreement:        a,
				PartnershipUUID:  p.UUID,
				PartnershipType:  p.Type,
				UCLEntityID:      p.UCLEntityID,
				UCLEntityPath:    p.UCLEntityPath,
				Partner:          p.Partner,
				PartnershipStart: start,
				PartnershipEnd:   end,
			})
		}
	}
	if filter == nil {
		return summaries, nil
	}
	from, to := paginate(len(summaries), filter.Pagination)
	return summaries[from:to], nil
}

func (repo partnershipRepository) UpdateAgreement(ctx context.Context, a partnership.Agreement, m media.Media, exec ...core.DBExecutor) (partnership.Agreement, error) {
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		if _, err := updateMedia(ctx, exe, m); err != nil {
			return err
		}
		a.MediaID = m.ID
		res, err := execute(ctx, exe, psql.Update("partnership_agreement").
			SetMap(agreementValues(a)).
			Where(sq.Eq{"id": a.ID, "partnership_id": a.PartnershipID}))
		if err = mustAffect(res, err, partnership.ErrAgreementNotFound); err != nil {
			return trapNoRowsErr(err, partnership.ErrAgreementNotFound, "updating agreement")
		}
		return nil
	})
	if err != nil {
		return partnership.Agreement{}, err
	}
	return repo.GetAgreement(ctx, a.PartnershipID, a.ID, exec...)
}

func (repo partnershipRepository) DeleteAgreement(ctx context.Context, a partnership.Agreement, exec ...core.DBExecutor) error {
	return repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		res, err := execute(ctx, exe, psql.Delete("partnership_agreement").Where(sq.Eq{"id": a.ID, "partnership_id": a.PartnershipID}))
		if err = mustAffect(res, err, partnership.ErrAgreementNotFound); err != nil {
			return trapNoRowsErr(err, partnership.ErrAgreementNotFound, "deleting agreement")
		}
		_, err = execute(ctx, exe, psql.Delete("media").Where(sq.Eq{"id": a.MediaID}))
		return errors.Wrap(err, "deleting agreement media")
	})
}

// Contacts

func selectPartnershipContacts(partnershipID int) sq.SelectBuilder {
	return psql.Select(contactColumns...).
		From("contact c").
		Join("partnership_contacts pc ON pc.contact_id = c.id").
		Where(sq.Eq{"pc.partnership_id": partnershipID})
}

func (repo partnershipRepository) QueryContacts(ctx context.Context, partnershipID int, exec ...core.DBExecutor) ([]contact.Contact, error) {
	var rows []contactRow
	q := selectPartnershipContacts(partnershipID).OrderBy("c.last_name", "c.first_name", "c.id")
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying partnership contacts")
	}
	contacts := make([]contact.Contact, 0, len(rows))
	for _, r := range rows {
		contacts = append(contacts, r.contact())
	}
	return contacts, nil
}

func (repo partnershipRepository) GetContact(ctx context.Context, partnershipID, id int, exec ...core.DBExecutor) (contact.Contact, error) {
	var r contactRow
	if err := get(ctx, repo.getExec(exec), &r, selectPartnershipContacts(partnershipID).Where(sq.Eq{"c.id": id})); err != nil {
		return contact.Contact{}, trapNoRowsErr(err, partnership.ErrContactNotFound, "getting partnership contact")
	}
	return r.contact(), nil
}

func (repo partnershipRepository) CreateContact(ctx context.Context, partnershipID int, c contact.Contact, exec ...core.DBExecutor) (contact.Contact, error) {
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		var err error
		if c, err = insertContact(ctx, exe, c); err != nil {
			return err
		}
		_, err = execute(ctx, exe, psql.Insert("partnership_contacts").
			Columns("partnership_id", "contact_id").
			Values(partnershipID, c.ID))
		return errors.Wrap(err, "linking partnership contact")
	})
	if err != nil {
		return contact.Contact{}, err
	}
	return c, nil
}

func (repo partnershipRepository) UpdateContact(ctx context.Context, c contact.Contact, exec ...core.DBExecutor) (contact.Contact, error) {
	return updateContact(ctx, repo.getExec(exec), c, partnership.ErrContactNotFound)
}

func (repo partnershipRepository) DeleteContact(ctx context.Context, id int, exec ...core.DBExecutor) error {
	res, err := execute(ctx, repo.getExec(exec), psql.Delete("contact").Where(sq.Eq{"id": id}))
	if err = mustAffect(res, err, partnership.ErrContactNotFound); err != nil {
		return trapNoRowsErr(err, partnership.ErrContactNotFound, "deleting partnership contact")
	}
	return nil
}

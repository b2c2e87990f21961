package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/contact"
	"github.com/uclouvain/osis-partnership-sub000/core/partner"
)

// addressRow is embedded by the rows of the tables carrying address_* columns.
type addressRow struct {
	Name        string       `db:"address_name"`
	Street      string       `db:"address_street"`
	PostalCode  string       `db:"address_postal_code"`
	City        string       `db:"address_city"`
	CountryID   null.Int     `db:"address_country_id"`
	CountryName null.String  `db:"country_name"`
	CountryISO  null.String  `db:"country_iso"`
	Latitude    null.Float64 `db:"address_latitude"`
	Longitude   null.Float64 `db:"address_longitude"`
}

func (r addressRow) address() contact.Address {
	return contact.Address{
		Name:        r.Name,
		Street:      r.Street,
		PostalCode:  r.PostalCode,
		City:        r.City,
		CountryID:   intPtr(r.CountryID),
		CountryName: r.CountryName.String,
		CountryISO:  r.CountryISO.String,
		Latitude:    r.Latitude.Ptr(),
		Longitude:   r.Longitude.Ptr(),
	}
}

// addressColumns selects the address of table alias t, joined to country alias co.
func addressColumns(t string) []string {
	return []string{
		t + ".address_name", t + ".address_street", t + ".address_postal_code", t + ".address_city",
		t + ".address_country_id", t + ".address_latitude", t + ".address_longitude",
		"co.name AS country_name", "co.iso_code AS country_iso",
	}
}

func addressValues(a contact.Address, values map[string]interface{}) map[string]interface{} {
	values["address_name"] = a.Name
	values["address_street"] = a.Street
	values["address_postal_code"] = a.PostalCode
	values["address_city"] = a.City
	values["address_country_id"] = null.IntFromPtr(a.CountryID)
	values["address_latitude"] = null.Float64FromPtr(a.Latitude)
	values["address_longitude"] = null.Float64FromPtr(a.Longitude)
	return values
}

type partnerRow struct {
	ID            int            `db:"id"`
	UUID          string         `db:"uuid"`
	Name          string         `db:"name"`
	IsValid       bool           `db:"is_valid"`
	PartnerType   string         `db:"partner_type"`
	PICCode       null.String    `db:"pic_code"`
	ErasmusCode   null.String    `db:"erasmus_code"`
	IsIES         null.Bool      `db:"is_ies"`
	IsNonprofit   null.Bool      `db:"is_nonprofit"`
	IsPublic      null.Bool      `db:"is_public"`
	UseEgracons   bool           `db:"use_egracons"`
	Email         string         `db:"email"`
	Phone         string         `db:"phone"`
	ContactType   string         `db:"contact_type"`
	Website       string         `db:"website"`
	StartDate     time.Time      `db:"start_date"`
	EndDate       null.Time      `db:"end_date"`
	NowKnownAsID  null.Int       `db:"now_known_as_id"`
	Comment       string         `db:"comment"`
	ContinentCode null.String    `db:"continent_code"`
	Tags          pq.StringArray `db:"tags"`
	IsActif       bool           `db:"is_actif"`
	AuthorID      null.Int       `db:"author_id"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	addressRow
}

func (r partnerRow) partner() partner.Partner {
	tags := []string(r.Tags)
	if tags == nil {
		tags = []string{}
	}
	return partner.Partner{
		ID:            r.ID,
		UUID:          r.UUID,
		Name:          r.Name,
		IsValid:       r.IsValid,
		PartnerType:   r.PartnerType,
		PICCode:       r.PICCode.String,
		ErasmusCode:   r.ErasmusCode.String,
		IsIES:         r.IsIES.Ptr(),
		IsNonprofit:   r.IsNonprofit.Ptr(),
		IsPublic:      r.IsPublic.Ptr(),
		UseEgracons:   r.UseEgracons,
		Email:         r.Email,
		Phone:         r.Phone,
		ContactType:   r.ContactType,
		Website:       r.Website,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate.Ptr(),
		NowKnownAsID:  intPtr(r.NowKnownAsID),
		Comment:       r.Comment,
		Address:       r.addressRow.address(),
		ContinentCode: r.ContinentCode.String,
		Tags:          tags,
		AuthorID:      intPtr(r.AuthorID),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// optString stores empty codes as NULL so that the unique constraints ignore them.
func optString(s string) null.String {
	return null.NewString(s, s != "")
}

func partnerValues(p partner.Partner) map[string]interface{} {
	return addressValues(p.Address, map[string]interface{}{
		"name":            p.Name,
		"is_valid":        p.IsValid,
		"partner_type":    p.PartnerType,
		"pic_code":        optString(p.PICCode),
		"erasmus_code":    optString(p.ErasmusCode),
		"is_ies":          null.BoolFromPtr(p.IsIES),
		"is_nonprofit":    null.BoolFromPtr(p.IsNonprofit),
		"is_public":       null.BoolFromPtr(p.IsPublic),
		"use_egracons":    p.UseEgracons,
		"email":           p.Email,
		"phone":           p.Phone,
		"contact_type":    p.ContactType,
		"website":         p.Website,
		"start_date":      p.StartDate,
		"end_date":        null.TimeFromPtr(p.EndDate),
		"now_known_as_id": null.IntFromPtr(p.NowKnownAsID),
		"comment":         p.Comment,
		"updated_at":      p.UpdatedAt,
	})
}

type partnerRepository struct {
	repository
}

var _ partner.Repository = (*partnerRepository)(nil)

func NewPartnerRepository(db core.DB) partner.Repository {
	return &partnerRepository{repository{db: db}}
}

func (repo partnerRepository) selectPartners(today time.Time) sq.SelectBuilder {
	cols := []string{
		"p.id", "p.uuid", "p.name", "p.is_valid", "p.partner_type", "p.pic_code", "p.erasmus_code",
		"p.is_ies", "p.is_nonprofit", "p.is_public", "p.use_egracons", "p.email", "p.phone",
		"p.contact_type", "p.website", "p.start_date", "p.end_date", "p.now_known_as_id", "p.comment",
		"ct.code AS continent_code", "p.author_id", "p.created_at", "p.updated_at",
		`COALESCE((SELECT array_agg(t.value ORDER BY t.value) FROM partner_tags pt
			JOIN partner_tag t ON t.id = pt.tag_id WHERE pt.partner_id = p.id), '{}') AS tags`,
	}
	return psql.Select(append(cols, addressColumns("p")...)...).
		Column(sq.Expr("(p.start_date <= ? AND (p.end_date IS NULL OR p.end_date >= ?)) AS is_actif", today, today)).
		From("partner p").
		LeftJoin("country co ON co.id = p.address_country_id").
		LeftJoin("continent ct ON ct.id = co.continent_id")
}

func (repo partnerRepository) CheckUniqueness(ctx context.Context, picCode, erasmusCode string, excludedID int, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	checks := []struct {
		col   string
		value string
		err   error
	}{
		{"pic_code", picCode, partner.ErrPICCodeExists},
		{"erasmus_code", erasmusCode, partner.ErrErasmusCodeExists},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		where := sq.And{sq.Eq{c.col: c.value}}
		if excludedID != 0 {
			where = append(where, sq.NotEq{"id": excludedID})
		}
		var exists bool
		q := psql.Select("1").From("partner").Where(where).Prefix("SELECT EXISTS (").Suffix(")")
		if err := get(ctx, exe, &exists, q); err != nil {
			return errors.Wrap(err, "checking partner uniqueness")
		}
		if exists {
			return c.err
		}
	}
	return nil
}

// uniqueErr tells which code a unique violation on partner is about.
func uniqueErr(err error) error {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return err
	}
	switch pqErr.Constraint {
	case "partner_pic_code_key":
		return partner.ErrPICCodeExists
	case "partner_erasmus_code_key":
		return partner.ErrErasmusCodeExists
	}
	return err
}

func (repo partnerRepository) CreatePartner(ctx context.Context, p partner.Partner, exec ...core.DBExecutor) (partner.Partner, error) {
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		values := partnerValues(p)
		values["uuid"] = p.UUID
		values["author_id"] = null.IntFromPtr(p.AuthorID)
		values["created_at"] = p.CreatedAt
		id, err := insertID(ctx, exe, psql.Insert("partner").SetMap(values))
		if err != nil {
			return errors.Wrap(uniqueErr(err), "inserting partner")
		}
		p.ID = id
		return linkTags(ctx, exe, "partner_tag", "partner_tags", "partner_id", id, p.Tags)
	})
	if err != nil {
		return partner.Partner{}, err
	}
	return repo.GetPartner(ctx, partner.GetFilter{ID: p.ID}, exec...)
}

func (repo partnerRepository) GetPartner(ctx context.Context, filter partner.GetFilter, exec ...core.DBExecutor) (partner.Partner, error) {
	q := repo.selectPartners(core.Today())
	switch {
	case filter.ID != 0:
		q = q.Where(sq.Eq{"p.id": filter.ID})
	case filter.UUID != "":
		q = q.Where(sq.Eq{"p.uuid": filter.UUID})
	default:
		return partner.Partner{}, partner.ErrNotFound
	}
	var r partnerRow
	if err := get(ctx, repo.getExec(exec), &r, q); err != nil {
		return partner.Partner{}, trapNoRowsErr(err, partner.ErrNotFound, "getting partner")
	}
	return r.partner(), nil
}

func (repo partnerRepository) QueryPartners(ctx context.Context, filter *partner.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]partner.Partner, error) {
	today := core.Today()
	if filter != nil && !filter.Today.IsZero() {
		today = filter.Today
	}
	q := repo.selectPartners(today)

	if filter != nil {
		if filter.Name != "" {
			q = q.Where(ilike(filter.Name, "p.name"))
		}
		if filter.PartnerType != "" {
			q = q.Where(sq.Eq{"p.partner_type": filter.PartnerType})
		}
		if filter.PICCode != "" {
			q = q.Where(ilike(filter.PICCode, "p.pic_code"))
		}
		if filter.ErasmusCode != "" {
			q = q.Where(ilike(filter.ErasmusCode, "p.erasmus_code"))
		}
		if filter.IsIES != nil {
			q = q.Where(sq.Eq{"p.is_ies": *filter.IsIES})
		}
		if filter.IsValid != nil {
			q = q.Where(sq.Eq{"p.is_valid": *filter.IsValid})
		}
		if filter.IsActif != nil {
			q = q.Where(sq.Expr("(p.start_date <= ? AND (p.end_date IS NULL OR p.end_date >= ?)) = ?", today, today, *filter.IsActif))
		}
		for _, tag := range filter.Tags {
			q = q.Where(sq.Expr(`EXISTS (SELECT 1 FROM partner_tags pt JOIN partner_tag t ON t.id = pt.tag_id
				WHERE pt.partner_id = p.id AND t.value = ?)`, tag))
		}
		if filter.ContinentCode != "" {
			q = q.Where(sq.Eq{"ct.code": filter.ContinentCode})
		}
		if filter.CountryID != 0 {
			q = q.Where(sq.Eq{"p.address_country_id": filter.CountryID})
		}
		if filter.City != "" {
			q = q.Where(sq.Expr("LOWER(p.address_city) = LOWER(?)", filter.City))
		}
		if len(filter.IDs) > 0 {
			q = q.Where(sq.Eq{"p.id": filter.IDs})
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}

	clauses := orderBy(ordering, partner.Orderings)
	if len(clauses) == 0 {
		clauses = []string{"name"}
	}
	q = q.OrderBy(append(clauses, "id")...)

	var rows []partnerRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying partners")
	}
	partners := make([]partner.Partner, 0, len(rows))
	for _, r := range rows {
		partners = append(partners, r.partner())
	}
	return partners, nil
}

func (repo partnerRepository) UpdatePartner(ctx context.Context, p partner.Partner, exec ...core.DBExecutor) (partner.Partner, error) {
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		res, err := execute(ctx, exe, psql.Update("partner").SetMap(partnerValues(p)).Where(sq.Eq{"id": p.ID}))
		if err = mustAffect(res, err, partner.ErrNotFound); err != nil {
			if err == partner.ErrNotFound {
				return err
			}
			return errors.Wrap(uniqueErr(err), "updating partner")
		}
		return linkTags(ctx, exe, "partner_tag", "partner_tags", "partner_id", p.ID, p.Tags)
	})
	if err != nil {
		return partner.Partner{}, err
	}
	return repo.GetPartner(ctx, partner.GetFilter{ID: p.ID}, exec...)
}

// Entities

type partnerEntityRow struct {
	ID           int       `db:"id"`
	UUID         string    `db:"uuid"`
	PartnerID    int       `db:"partner_id"`
	Name         string    `db:"name"`
	ParentID     null.Int  `db:"parent_id"`
	Comment      string    `db:"comment"`
	ContactInID  null.Int  `db:"contact_in_id"`
	ContactOutID null.Int  `db:"contact_out_id"`
	AuthorID     null.Int  `db:"author_id"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	addressRow
}

func (r partnerEntityRow) entity(contacts map[int]contact.Contact) partner.Entity {
	e := partner.Entity{
		ID:        r.ID,
		UUID:      r.UUID,
		PartnerID: r.PartnerID,
		Name:      r.Name,
		ParentID:  intPtr(r.ParentID),
		Comment:   r.Comment,
		Address:   r.addressRow.address(),
		AuthorID:  r.AuthorID.Int,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if c, ok := contacts[r.ContactInID.Int]; ok && r.ContactInID.Valid {
		e.ContactIn = &c
	}
	if c, ok := contacts[r.ContactOutID.Int]; ok && r.ContactOutID.Valid {
		e.ContactOut = &c
	}
	return e
}

func (repo partnerRepository) selectEntities() sq.SelectBuilder {
	cols := []string{
		"e.id", "e.uuid", "e.partner_id", "e.name", "e.parent_id", "e.comment",
		"e.contact_in_id", "e.contact_out_id", "e.author_id", "e.created_at", "e.updated_at",
	}
	return psql.Select(append(cols, addressColumns("e")...)...).
		From("partner_entity e").
		LeftJoin("country co ON co.id = e.address_country_id")
}

// contactsOf loads the contacts of the entity rows, by ID.
func contactsOf(ctx context.Context, exe core.DBExecutor, rows ...partnerEntityRow) (map[int]contact.Contact, error) {
	var ids []int
	for _, r := range rows {
		if r.ContactInID.Valid {
			ids = append(ids, r.ContactInID.Int)
		}
		if r.ContactOutID.Valid {
			ids = append(ids, r.ContactOutID.Int)
		}
	}
	contacts := make(map[int]contact.Contact, len(ids))
	if len(ids) == 0 {
		return contacts, nil
	}
	var crows []contactRow
	if err := selectAll(ctx, exe, &crows, psql.Select(contactColumns...).From("contact c").Where(sq.Eq{"c.id": ids})); err != nil {
		return nil, errors.Wrap(err, "querying contacts")
	}
	for _, cr := range crows {
		contacts[cr.ID] = cr.contact()
	}
	return contacts, nil
}

// saveEntityContact creates, updates or drops one of the entity contacts and returns its ID.
func saveEntityContact(ctx context.Context, exe core.DBExecutor, c *contact.Contact) (null.Int, error) {
	switch {
	case c == nil:
		return null.Int{}, nil
	case c.ID == 0:
		created, err := insertContact(ctx, exe, *c)
		if err != nil {
			return null.Int{}, err
		}
		c.ID = created.ID
	default:
		if _, err := updateContact(ctx, exe, *c, partner.ErrEntityNotFound); err != nil {
			return null.Int{}, err
		}
	}
	return null.IntFrom(c.ID), nil
}

func entityValues(e partner.Entity, contactIn, contactOut null.Int) map[string]interface{} {
	return addressValues(e.Address, map[string]interface{}{
		"name":           e.Name,
		"parent_id":      null.IntFromPtr(e.ParentID),
		"comment":        e.Comment,
		"contact_in_id":  contactIn,
		"contact_out_id": contactOut,
		"updated_at":     e.UpdatedAt,
	})
}

func (repo partnerRepository) CreateEntity(ctx context.Context, e partner.Entity, exec ...core.DBExecutor) (partner.Entity, error) {
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		contactIn, err := saveEntityContact(ctx, exe, e.ContactIn)
		if err != nil {
			return err
		}
		contactOut, err := saveEntityContact(ctx, exe, e.ContactOut)
		if err != nil {
			return err
		}
		values := entityValues(e, contactIn, contactOut)
		values["uuid"] = e.UUID
		values["partner_id"] = e.PartnerID
		values["author_id"] = null.NewInt(e.AuthorID, e.AuthorID != 0)
		values["created_at"] = e.CreatedAt
		e.ID, err = insertID(ctx, exe, psql.Insert("partner_entity").SetMap(values))
		return errors.Wrap(err, "inserting partner entity")
	})
	if err != nil {
		return partner.Entity{}, err
	}
	return repo.GetEntity(ctx, e.PartnerID, e.ID, exec...)
}

func (repo partnerRepository) GetEntity(ctx context.Context, partnerID, id int, exec ...core.DBExecutor) (partner.Entity, error) {
	exe := repo.getExec(exec)
	var r partnerEntityRow
	if err := get(ctx, exe, &r, repo.selectEntities().Where(sq.Eq{"e.id": id, "e.partner_id": partnerID})); err != nil {
		return partner.Entity{}, trapNoRowsErr(err, partner.ErrEntityNotFound, "getting partner entity")
	}
	contacts, err := contactsOf(ctx, exe, r)
	if err != nil {
		return partner.Entity{}, err
	}
	return r.entity(contacts), nil
}

func (repo partnerRepository) QueryEntities(ctx context.Context, partnerID int, exec ...core.DBExecutor) ([]partner.Entity, error) {
	exe := repo.getExec(exec)
	var rows []partnerEntityRow
	if err := selectAll(ctx, exe, &rows, repo.selectEntities().Where(sq.Eq{"e.partner_id": partnerID}).OrderBy("e.name", "e.id")); err != nil {
		return nil, errors.Wrap(err, "querying partner entities")
	}
	contacts, err := contactsOf(ctx, exe, rows...)
	if err != nil {
		return nil, err
	}
	entities := make([]partner.Entity, 0, len(rows))
	for _, r := range rows {
		entities = append(entities, r.entity(contacts))
	}
	return entities, nil
}

func (repo partnerRepository) UpdateEntity(ctx context.Context, e partner.Entity, exec ...core.DBExecutor) (partner.Entity, error) {
	err := repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		var current partnerEntityRow
		q := psql.Select("contact_in_id", "contact_out_id").From("partner_entity").Where(sq.Eq{"id": e.ID}).Suffix("FOR UPDATE")
		if err := get(ctx, exe, &current, q); err != nil {
			return trapNoRowsErr(err, partner.ErrEntityNotFound, "locking partner entity")
		}
		contactIn, err := saveEntityContact(ctx, exe, e.ContactIn)
		if err != nil {
			return err
		}
		contactOut, err := saveEntityContact(ctx, exe, e.ContactOut)
		if err != nil {
			return err
		}
		res, err := execute(ctx, exe, psql.Update("partner_entity").
			SetMap(entityValues(e, contactIn, contactOut)).
			Where(sq.Eq{"id": e.ID}))
		if err = mustAffect(res, err, partner.ErrEntityNotFound); err != nil {
			return trapNoRowsErr(err, partner.ErrEntityNotFound, "updating partner entity")
		}
		return deleteDroppedContacts(ctx, exe, current, contactIn, contactOut)
	})
	if err != nil {
		return partner.Entity{}, err
	}
	return repo.GetEntity(ctx, e.PartnerID, e.ID, exec...)
}

// deleteDroppedContacts removes the contacts the entity no longer references.
func deleteDroppedContacts(ctx context.Context, exe core.DBExecutor, previous partnerEntityRow, kept ...null.Int) error {
	var dropped []int
	for _, old := range []null.Int{previous.ContactInID, previous.ContactOutID} {
		if !old.Valid {
			continue
		}
		stillUsed := false
		for _, k := range kept {
			if k.Valid && k.Int == old.Int {
				stillUsed = true
			}
		}
		if !stillUsed {
			dropped = append(dropped, old.Int)
		}
	}
	if len(dropped) == 0 {
		return nil
	}
	_, err := execute(ctx, exe, psql.Delete("contact").Where(sq.Eq{"id": dropped}))
	return errors.Wrap(err, "deleting contacts")
}

func (repo partnerRepository) DeleteEntity(ctx context.Context, id int, exec ...core.DBExecutor) error {
	return repo.inTx(ctx, exec, func(exe core.DBExecutor) error {
		var deleted partnerEntityRow
		q := psql.Delete("partner_entity").Where(sq.Eq{"id": id}).Suffix("RETURNING contact_in_id, contact_out_id")
		if err := get(ctx, exe, &deleted, q); err != nil {
			if isForeignKeyViolation(err) {
				return core.NewFieldError("id", "the entity is still in use")
			}
			return trapNoRowsErr(err, partner.ErrEntityNotFound, "deleting partner entity")
		}
		return deleteDroppedContacts(ctx, exe, deleted)
	})
}

func (repo partnerRepository) GetEntityUsage(ctx context.Context, id int, exec ...core.DBExecutor) (partner.EntityUsage, error) {
	var usage struct {
		HasPartnerships bool `db:"has_partnerships"`
		HasChildren     bool `db:"has_children"`
	}
	err := get(ctx, repo.getExec(exec), &usage, psql.Select().
		Column(sq.Expr("EXISTS (SELECT 1 FROM partnership_partner_relation WHERE partner_entity_id = ?) AS has_partnerships", id)).
		Column(sq.Expr("EXISTS (SELECT 1 FROM partner_entity WHERE parent_id = ?) AS has_children", id)))
	if err != nil {
		return partner.EntityUsage{}, errors.Wrap(err, "getting partner entity usage")
	}
	return partner.EntityUsage(usage), nil
}

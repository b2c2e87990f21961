package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/contact"
)

var contactColumns = []string{
	"c.id", "c.title", "c.first_name", "c.last_name", "c.society", "c.function",
	"c.phone", "c.mobile_phone", "c.fax", "c.email", "c.comment",
}

// contactRow is shared by the partner entity, partnership and portal repositories.
type contactRow struct {
	OwnerID     int    `db:"owner_id"`
	ID          int    `db:"id"`
	Title       string `db:"title"`
	FirstName   string `db:"first_name"`
	LastName    string `db:"last_name"`
	Society     string `db:"society"`
	Function    string `db:"function"`
	Phone       string `db:"phone"`
	MobilePhone string `db:"mobile_phone"`
	Fax         string `db:"fax"`
	Email       string `db:"email"`
	Comment     string `db:"comment"`
}

func (r contactRow) contact() contact.Contact {
	return contact.Contact{
		ID:          r.ID,
		Title:       r.Title,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Society:     r.Society,
		Function:    r.Function,
		Phone:       r.Phone,
		MobilePhone: r.MobilePhone,
		Fax:         r.Fax,
		Email:       r.Email,
		Comment:     r.Comment,
	}
}

func contactValues(c contact.Contact) map[string]interface{} {
	return map[string]interface{}{
		"title":        c.Title,
		"first_name":   c.FirstName,
		"last_name":    c.LastName,
		"society":      c.Society,
		"function":     c.Function,
		"phone":        c.Phone,
		"mobile_phone": c.MobilePhone,
		"fax":          c.Fax,
		"email":        c.Email,
		"comment":      c.Comment,
	}
}

func insertContact(ctx context.Context, exe core.DBExecutor, c contact.Contact) (contact.Contact, error) {
	id, err := insertID(ctx, exe, psql.Insert("contact").SetMap(contactValues(c)))
	if err != nil {
		return contact.Contact{}, errors.Wrap(err, "inserting contact")
	}
	c.ID = id
	return c, nil
}

func updateContact(ctx context.Context, exe core.DBExecutor, c contact.Contact, notFound error) (contact.Contact, error) {
	res, err := execute(ctx, exe, psql.Update("contact").SetMap(contactValues(c)).Where(sq.Eq{"id": c.ID}))
	if err = mustAffect(res, err, notFound); err != nil {
		return contact.Contact{}, trapNoRowsErr(err, notFound, "updating contact")
	}
	return c, nil
}

func getContact(ctx context.Context, exe core.DBExecutor, id int, notFound error) (contact.Contact, error) {
	var r contactRow
	if err := get(ctx, exe, &r, psql.Select(contactColumns...).From("contact c").Where(sq.Eq{"c.id": id})); err != nil {
		return contact.Contact{}, trapNoRowsErr(err, notFound, "getting contact")
	}
	return r.contact(), nil
}

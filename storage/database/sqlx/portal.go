package sqlxrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/contact"
	"github.com/uclouvain/osis-partnership-sub000/core/media"
	"github.com/uclouvain/osis-partnership-sub000/core/portal"
)

type portalRepository struct {
	repository
}

var _ portal.Repository = (*portalRepository)(nil)

func NewPortalRepository(db core.DB) portal.Repository {
	return &portalRepository{repository{db: db}}
}

func (repo portalRepository) ContactsOf(ctx context.Context, partnershipIDs []int, exec ...core.DBExecutor) (map[int][]contact.Contact, error) {
	contacts := make(map[int][]contact.Contact, len(partnershipIDs))
	if len(partnershipIDs) == 0 {
		return contacts, nil
	}
	var rows []contactRow
	q := psql.Select(append([]string{"pc.partnership_id AS owner_id"}, contactColumns...)...).
		From("contact c").
		Join("partnership_contacts pc ON pc.contact_id = c.id").
		Where(sq.Eq{"pc.partnership_id": partnershipIDs}).
		OrderBy("c.last_name", "c.first_name", "c.id")
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying partnership contacts")
	}
	for _, r := range rows {
		contacts[r.OwnerID] = append(contacts[r.OwnerID], r.contact())
	}
	return contacts, nil
}

func (repo portalRepository) MediasOf(ctx context.Context, kind media.OwnerKind, ownerIDs []int, exec ...core.DBExecutor) (map[int][]media.Media, error) {
	medias := make(map[int][]media.Media, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return medias, nil
	}
	table, col, err := ownerTable(kind)
	if err != nil {
		return nil, err
	}
	var rows []mediaRow
	q := selectMedias().
		Column("o." + col + " AS owner_id").
		Join(table + " o ON o.media_id = m.id").
		Where(sq.Eq{"o." + col: ownerIDs}).
		OrderBy("m.name", "m.id")
	if err = selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying medias")
	}
	for _, r := range rows {
		medias[r.OwnerID] = append(medias[r.OwnerID], r.media())
	}
	return medias, nil
}

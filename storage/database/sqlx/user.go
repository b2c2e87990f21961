package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

var (
	userColumns = []string{
		"id", "username", "email", "first_name", "last_name", "phone", "is_active", "roles",
		"password_hash", "created_at", "updated_at", "last_login",
	}
	userOrderings = map[string]string{
		"id": "id", "username": "username", "email": "email", "last_name": "last_name",
		"created_at": "created_at", "last_login": "last_login",
	}
)

type userRow struct {
	ID           int            `db:"id"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	FirstName    string         `db:"first_name"`
	LastName     string         `db:"last_name"`
	Phone        string         `db:"phone"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash null.Bytes     `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

type managerRow struct {
	ID            int            `db:"id"`
	UserID        int            `db:"user_id"`
	EntityID      int            `db:"entity_id"`
	EntityAcronym string         `db:"entity_acronym"`
	WithChild     bool           `db:"with_child"`
	Scopes        pq.StringArray `db:"scopes"`
}

func (r managerRow) manager() user.Manager {
	return user.Manager{
		ID:            r.ID,
		EntityID:      r.EntityID,
		EntityAcronym: r.EntityAcronym,
		WithChild:     r.WithChild,
		Scopes:        []string(r.Scopes),
	}
}

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DB) user.Repository {
	return &userRepository{repository{db: db}}
}

func (repo userRepository) toRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Username:     null.NewString(usr.Username, usr.Username != ""),
		Email:        null.NewString(usr.Email, usr.Email != ""),
		FirstName:    usr.FirstName,
		LastName:     usr.LastName,
		Phone:        usr.Phone,
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, usr.PasswordHash != nil),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) fromRow(r userRow) user.User {
	return user.User{
		ID:           r.ID,
		Username:     r.Username.String,
		Email:        r.Email.String,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Phone:        r.Phone,
		IsActive:     r.IsActive,
		Roles:        []string(r.Roles),
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		LastLogin:    r.LastLogin.Time,
	}
}

func (repo userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	or := sq.Or{}
	if username != "" {
		or = append(or, sq.Eq{"username": username})
	}
	if email != "" {
		or = append(or, sq.Eq{"email": email})
	}
	if len(or) == 0 {
		return nil
	}
	where := sq.And{or}
	if len(excludedUsers) > 0 {
		ids := make([]int, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		where = append(where, sq.NotEq{"id": ids})
	}

	var exists bool
	q := psql.Select("1").From(`"user"`).Where(where).Prefix("SELECT EXISTS (").Suffix(")")
	if err := get(ctx, repo.getExec(exec), &exists, q); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if exists {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	r := repo.toRow(usr)
	id, err := insertID(ctx, repo.getExec(exec), psql.Insert(`"user"`).SetMap(map[string]interface{}{
		"username":      r.Username,
		"email":         r.Email,
		"first_name":    r.FirstName,
		"last_name":     r.LastName,
		"phone":         r.Phone,
		"is_active":     r.IsActive,
		"roles":         r.Roles,
		"password_hash": r.PasswordHash,
		"created_at":    r.CreatedAt,
		"updated_at":    r.UpdatedAt,
		"last_login":    r.LastLogin,
	}))
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	usr.ID = id
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	q := psql.Select(userColumns...).From(`"user"`)
	if filter != nil {
		// users with Username, Email or names matching the search keyword
		if filter.Search != "" {
			q = q.Where(ilike(filter.Search, "username", "email", "first_name", "last_name"))
		}
		if len(filter.IDs) > 0 {
			q = q.Where(sq.Eq{"id": filter.IDs})
		}
		if filter.IsActive != nil {
			q = q.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
	}
	if clauses := orderBy(ordering, userOrderings); len(clauses) > 0 {
		q = q.OrderBy(clauses...)
	} else {
		q = q.OrderBy("last_name", "first_name", "id")
	}

	var rows []userRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, repo.fromRow(r))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	q := psql.Select(userColumns...).From(`"user"`)
	switch {
	case filter.ID != 0:
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Username != "":
		q = q.Where(sq.Eq{"username": filter.Username})
	case filter.Email != "":
		q = q.Where(sq.Eq{"email": filter.Email})
	case filter.UsernameOrEmail != "":
		q = q.Where(sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}})
	default:
		return user.User{}, user.ErrNotFound
	}

	exe := repo.getExec(exec)
	var r userRow
	if err := get(ctx, exe, &r, q.Limit(1)); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	usr := repo.fromRow(r)

	managers, err := repo.managers(ctx, exe, usr.ID)
	if err != nil {
		return user.User{}, err
	}
	usr.Managers = managers
	return usr, nil
}

func (repo userRepository) managers(ctx context.Context, exe core.DBExecutor, userID int) ([]user.Manager, error) {
	q := psql.Select("m.id", "m.user_id", "m.entity_id", "e.acronym AS entity_acronym", "m.with_child", "m.scopes").
		From("partnership_entity_manager m").
		Join("entity e ON e.id = m.entity_id").
		Where(sq.Eq{"m.user_id": userID}).
		OrderBy("e.acronym")

	var rows []managerRow
	if err := selectAll(ctx, exe, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying managers")
	}
	managers := make([]user.Manager, 0, len(rows))
	for _, r := range rows {
		managers = append(managers, r.manager())
	}
	return managers, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	r := repo.toRow(usr)
	res, err := execute(ctx, repo.getExec(exec), psql.Update(`"user"`).SetMap(map[string]interface{}{
		"username":      r.Username,
		"email":         r.Email,
		"first_name":    r.FirstName,
		"last_name":     r.LastName,
		"phone":         r.Phone,
		"is_active":     r.IsActive,
		"roles":         r.Roles,
		"password_hash": r.PasswordHash,
		"updated_at":    r.UpdatedAt,
		"last_login":    r.LastLogin,
	}).Where(sq.Eq{"id": usr.ID}))
	if err = mustAffect(res, err, user.ErrNotFound); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "updating user")
	}
	return usr, nil
}

func (repo userRepository) SetManager(ctx context.Context, userID int, mgr user.Manager, exec ...core.DBExecutor) (user.Manager, error) {
	scopes := mgr.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	exe := repo.getExec(exec)
	q := psql.Insert("partnership_entity_manager").
		Columns("user_id", "entity_id", "with_child", "scopes").
		Values(userID, mgr.EntityID, mgr.WithChild, pq.StringArray(scopes)).
		Suffix("ON CONFLICT (user_id, entity_id) DO UPDATE SET with_child = EXCLUDED.with_child, scopes = EXCLUDED.scopes RETURNING id")

	if err := get(ctx, exe, &mgr.ID, q); err != nil {
		return user.Manager{}, errors.Wrap(err, "setting manager")
	}
	if err := get(ctx, exe, &mgr.EntityAcronym, psql.Select("acronym").From("entity").Where(sq.Eq{"id": mgr.EntityID})); err != nil {
		return user.Manager{}, errors.Wrap(err, "getting manager entity")
	}
	mgr.Scopes = scopes
	return mgr, nil
}

func (repo userRepository) RemoveManager(ctx context.Context, userID, entityID int, exec ...core.DBExecutor) error {
	res, err := execute(ctx, repo.getExec(exec), psql.Delete("partnership_entity_manager").
		Where(sq.Eq{"user_id": userID, "entity_id": entityID}))
	if err = mustAffect(res, err, user.ErrNotFound); err != nil {
		return trapNoRowsErr(err, user.ErrNotFound, "removing manager")
	}
	return nil
}

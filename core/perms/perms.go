// Package perms holds the permission rules of partnership management.
//
// Rules are predicates over a Subject: the acting user together with the set of
// UCL entities their manager rows give them rights on.
package perms

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

// Subject is a user with the resolved entities they manage.
type Subject struct {
	User     user.User
	entities map[int]struct{}
}

// NewSubject builds a Subject managing the given entity IDs.
func NewSubject(usr user.User, managedIDs ...int) Subject {
	s := Subject{User: usr, entities: make(map[int]struct{}, len(managedIDs))}
	for _, id := range managedIDs {
		s.entities[id] = struct{}{}
	}
	return s
}

func (s Subject) IsADRI() bool           { return s.User.IsADRI() }
func (s Subject) IsFacultyManager() bool { return s.User.IsFacultyManager() }

// Manages reports whether entityID is one of the managed entities.
func (s Subject) Manages(entityID int) bool {
	_, ok := s.entities[entityID]
	return ok
}

// EntityIDs returns the managed entity IDs.
func (s Subject) EntityIDs() []int {
	ids := make([]int, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	return ids
}

// SharesEntityWith reports whether both subjects manage at least one common entity.
func (s Subject) SharesEntityWith(other Subject) bool {
	for id := range other.entities {
		if s.Manages(id) {
			return true
		}
	}
	return false
}

// DescendantsFunc returns an entity ID and the IDs of all entities below it.
type DescendantsFunc func(ctx context.Context, id int) ([]int, error)

type Resolver interface {
	Resolve(ctx context.Context, usr user.User) (Subject, error)
}

type resolver struct {
	descendants DescendantsFunc
}

var _ Resolver = (*resolver)(nil)

func NewResolver(descendants DescendantsFunc) Resolver {
	vala.BeginValidation().Validate(
		vala.IsNotNil(descendants, "descendants"),
	).CheckAndPanic()

	return &resolver{descendants: descendants}
}

// Resolve expands the manager rows of usr: a row WithChild covers all the descendants of its entity.
func (r *resolver) Resolve(ctx context.Context, usr user.User) (Subject, error) {
	ids := make([]int, 0, len(usr.Managers))
	for _, m := range usr.Managers {
		if !m.WithChild {
			ids = append(ids, m.EntityID)
			continue
		}
		desc, err := r.descendants(ctx, m.EntityID)
		if err != nil {
			return Subject{}, errors.Wrap(err, "finding managed entities")
		}
		ids = append(ids, desc...)
	}
	return NewSubject(usr, ids...), nil
}

// Access

func CanAccess(s Subject) bool {
	return s.IsADRI() || s.IsFacultyManager() || s.User.IsViewer()
}

// Partnerships

func CanAddPartnership(s Subject, partnershipType string) bool {
	return (s.IsADRI() || s.IsFacultyManager()) && s.User.HasScope(partnershipType)
}

// CanAddAnyPartnership reports whether the subject may add a partnership of at least one type.
func CanAddAnyPartnership(s Subject) bool {
	return (s.IsADRI() || s.IsFacultyManager()) && len(Scopes(s)) > 0
}

func CanChangePartnership(s Subject, uclEntityID int, partnershipType string) bool {
	return (s.IsADRI() || s.Manages(uclEntityID)) && s.User.HasScope(partnershipType)
}

func CanDeletePartnership(s Subject, hasAgreements bool) bool {
	return s.IsADRI() && !hasAgreements
}

// Scopes returns the partnership types the subject is scoped to.
func Scopes(s Subject) []string {
	var scopes []string
	for _, m := range s.User.Managers {
		for _, sc := range m.Scopes {
			if !core.ContainsString(scopes, sc) {
				scopes = append(scopes, sc)
			}
		}
	}
	return scopes
}

// Agreements

const (
	agreementWaiting   = "WAITING"
	agreementValidated = "VALIDATED"
)

func CanChangeAgreement(s Subject, status string, uclEntityID int) bool {
	return s.IsADRI() || (status == agreementWaiting && s.Manages(uclEntityID))
}

func CanDeleteAgreement(s Subject, status string, uclEntityID int) bool {
	return status != agreementValidated && CanChangeAgreement(s, status, uclEntityID)
}

// UCL management entities

func CanViewUME(s Subject) bool {
	return s.IsADRI() || s.IsFacultyManager()
}

func CanAddUME(s Subject) bool {
	return s.IsADRI()
}

func CanChangeUME(s Subject, entityID int) bool {
	return s.IsADRI() || s.Manages(entityID)
}

func CanDeleteUME(s Subject, hasPartnerships bool) bool {
	return s.IsADRI() && !hasPartnerships
}

// Financings, fundings & configuration

func CanManageFinancing(s Subject) bool {
	return s.IsADRI()
}

func CanManageFunding(s Subject) bool {
	return s.IsADRI()
}

func CanChangeConfiguration(s Subject) bool {
	return s.IsADRI()
}

// Partners

func CanAddPartner(s Subject) bool {
	return s.IsADRI() || s.IsFacultyManager()
}

func CanChangePartner(s Subject) bool {
	return s.IsADRI()
}

func CanAddPartnerEntity(s Subject) bool {
	return s.IsADRI() || s.IsFacultyManager()
}

// CanChangePartnerEntity: author is the resolved subject of the partner entity author.
func CanChangePartnerEntity(s Subject, author Subject) bool {
	return s.IsADRI() || s.SharesEntityWith(author)
}

func CanDeletePartnerEntity(s Subject, author Subject, hasPartnerships, hasChildren bool) bool {
	return CanChangePartnerEntity(s, author) && !hasPartnerships && !hasChildren
}

// Medias

// CanChangeMedia: only the author of a media or someone allowed to change its owner may change it.
func CanChangeMedia(s Subject, authorID int, canChangeOwner bool) bool {
	return canChangeOwner || s.User.ID == authorID
}

package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/uclouvain/osis-partnership-sub000/core"
	"github.com/uclouvain/osis-partnership-sub000/core/entity"
)

type entityRepository struct {
	db *entityTable
}

var _ entity.Repository = (*entityRepository)(nil)

// NewEntityRepository returns an entity.Repository without management entities: QueryFilter.WithUME is ignored.
func NewEntityRepository(db *DB) entity.Repository {
	return &entityRepository{db: db.entity}
}

func (repo *entityRepository) CreateEntity(_ context.Context, e entity.Entity, _ ...core.DBExecutor) (entity.Entity, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.pkCount++
	e.ID = repo.db.pkCount
	repo.db.table[e.ID] = &e
	return e, nil
}

func (repo *entityRepository) GetEntity(_ context.Context, filter entity.GetFilter, _ ...core.DBExecutor) (entity.Entity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, e := range repo.db.table {
		if (filter.ID != 0 && e.ID == filter.ID) ||
			(filter.UUID != "" && e.UUID == filter.UUID) ||
			(filter.Acronym != "" && e.Acronym == filter.Acronym) {
			return *e, nil
		}
	}
	return entity.Entity{}, entity.ErrNotFound
}

func (repo *entityRepository) QueryEntities(_ context.Context, filter *entity.QueryFilter, _ ...core.DBExecutor) ([]entity.Entity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	entities := make([]entity.Entity, 0)
	for _, e := range repo.db.table {
		if filter != nil {
			s := strings.ToLower(filter.Search)
			if s != "" && !strings.Contains(strings.ToLower(e.Acronym), s) && !strings.Contains(strings.ToLower(e.Title), s) {
				continue
			}
			if len(filter.IDs) > 0 && !core.ContainsInt(filter.IDs, e.ID) {
				continue
			}
			if len(filter.Types) > 0 && !core.ContainsString(filter.Types, e.Type) {
				continue
			}
			if filter.ParentID != 0 && (e.ParentID == nil || *e.ParentID != filter.ParentID) {
				continue
			}
		}
		entities = append(entities, *e)
	}
	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Acronym != entities[j].Acronym {
			return entities[i].Acronym < entities[j].Acronym
		}
		return entities[i].ID < entities[j].ID
	})
	if filter != nil && filter.Limit > 0 && uint64(len(entities)) > filter.Limit {
		entities = entities[:filter.Limit]
	}
	return entities, nil
}

func (repo *entityRepository) Ancestors(_ context.Context, id int, _ ...core.DBExecutor) ([]entity.Entity, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var chain []entity.Entity
	for e, ok := repo.db.table[id]; ok; {
		chain = append([]entity.Entity{*e}, chain...)
		if e.ParentID == nil {
			break
		}
		e, ok = repo.db.table[*e.ParentID]
	}
	if len(chain) == 0 {
		return nil, entity.ErrNotFound
	}
	return chain, nil
}

func (repo *entityRepository) Descendants(_ context.Context, id int, _ ...core.DBExecutor) ([]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if _, ok := repo.db.table[id]; !ok {
		return nil, entity.ErrNotFound
	}
	ids := []int{id}
	for i := 0; i < len(ids); i++ {
		for _, e := range repo.db.table {
			if e.ParentID != nil && *e.ParentID == ids[i] {
				ids = append(ids, e.ID)
			}
		}
	}
	return ids, nil
}

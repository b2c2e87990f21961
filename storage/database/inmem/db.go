package inmemdb

import (
	"sync"

	"github.com/uclouvain/osis-partnership-sub000/core/entity"
	"github.com/uclouvain/osis-partnership-sub000/core/user"
)

type (
	DB struct {
		user   *userTable
		entity *entityTable
	}

	userTable struct {
		table    map[int]*user.User
		managers map[int][]user.Manager
		pkCount  int
		mgrCount int
		mutex    sync.RWMutex
	}

	entityTable struct {
		table   map[int]*entity.Entity
		pkCount int
		mutex   sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:   &userTable{table: make(map[int]*user.User), managers: make(map[int][]user.Manager)},
		entity: &entityTable{table: make(map[int]*entity.Entity)},
	}
}

// acronym looks up the entity acronym of a manager row.
func (db *DB) acronym(entityID int) string {
	db.entity.mutex.RLock()
	defer db.entity.mutex.RUnlock()
	if e, ok := db.entity.table[entityID]; ok {
		return e.Acronym
	}
	return ""
}

package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-lifecycle/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	operationStore  *OperationStore
	cacheEntryStore *CacheEntryStore
	lockStore       *LockStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.operationStore != nil && f.cacheEntryStore != nil && f.lockStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) OperationStore() core.OperationStore {
	if f == nil || f.operationStore == nil {
		return nil
	}
	return f.operationStore
}

// CacheStore returns the SQL cache collaborator; the service builder
// consumes it through the KeyValueCache accessor shape.
func (f *RepositoryFactory) CacheStore() core.KeyValueCache {
	if f == nil || f.cacheEntryStore == nil {
		return nil
	}
	return f.cacheEntryStore
}

func (f *RepositoryFactory) LockStore() core.NamedMutex {
	if f == nil || f.lockStore == nil {
		return nil
	}
	return f.lockStore
}

func (f *RepositoryFactory) CacheEntryStore() *CacheEntryStore {
	if f == nil {
		return nil
	}
	return f.cacheEntryStore
}

func (f *RepositoryFactory) LockEntryStore() *LockStore {
	if f == nil {
		return nil
	}
	return f.lockStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

// Purgers lists the TTL'd row stores the expiry sweeper should drain
// alongside expired operations.
func (f *RepositoryFactory) Purgers() []core.ExpiredPurger {
	if f == nil {
		return nil
	}
	purgers := make([]core.ExpiredPurger, 0, 2)
	if f.cacheEntryStore != nil {
		purgers = append(purgers, f.cacheEntryStore)
	}
	if f.lockStore != nil {
		purgers = append(purgers, f.lockStore)
	}
	return purgers
}

func (f *RepositoryFactory) initStores() error {
	operationStore, err := NewOperationStore(f.db)
	if err != nil {
		return err
	}
	f.operationStore = operationStore

	cacheEntryStore, err := NewCacheEntryStore(f.db)
	if err != nil {
		return err
	}
	f.cacheEntryStore = cacheEntryStore

	lockStore, err := NewLockStore(f.db)
	if err != nil {
		return err
	}
	f.lockStore = lockStore

	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

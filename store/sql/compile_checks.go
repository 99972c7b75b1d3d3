package sqlstore

import "github.com/goliatone/go-lifecycle/core"

var (
	_ core.OperationStore         = (*OperationStore)(nil)
	_ core.KeyValueCache          = (*CacheEntryStore)(nil)
	_ core.ExpiredPurger          = (*CacheEntryStore)(nil)
	_ core.NamedMutex             = (*LockStore)(nil)
	_ core.ExpiredPurger          = (*LockStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)

package sqlstore

import "github.com/osmi-labs/cardlink/core"

var (
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)

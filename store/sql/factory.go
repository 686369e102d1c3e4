package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/osmi-labs/cardlink/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the bun-backed stores from a persistence client
// or a raw bun db and caches the results.
type RepositoryFactory struct {
	db *bun.DB

	taskStore       *TaskStore
	subscriberStore *SubscriberStore
	eventJournal    *EventJournal
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
	if f.taskStore != nil && f.subscriberStore != nil && f.eventJournal != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) TaskStore() core.TaskStore {
	if f == nil {
		return nil
	}
	return f.taskStore
}

func (f *RepositoryFactory) SubscriberStore() core.SubscriberStore {
	if f == nil {
		return nil
	}
	return f.subscriberStore
}

func (f *RepositoryFactory) EventJournal() core.EventJournal {
	if f == nil {
		return nil
	}
	return f.eventJournal
}

func (f *RepositoryFactory) initStores() error {
	taskStore, err := NewTaskStore(f.db)
	if err != nil {
		return err
	}
	f.taskStore = taskStore
	subscriberStore, err := NewSubscriberStore(f.db)
	if err != nil {
		return err
	}
	f.subscriberStore = subscriberStore
	eventJournal, err := NewEventJournal(f.db)
	if err != nil {
		return err
	}
	f.eventJournal = eventJournal
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

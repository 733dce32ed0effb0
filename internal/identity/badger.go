package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerOptions configures a [BadgerStore].
type BadgerOptions struct {
	// Dir holds the database files. Required unless InMemory is set.
	Dir string

	// InMemory keeps everything in memory. Intended for tests.
	InMemory bool

	// Logger receives badger warnings and errors. Defaults to slog.Default.
	Logger *slog.Logger
}

// BadgerStore keeps identity records in an embedded BadgerDB. The store
// itself holds the single [Key] record; [BadgerStore.Scope] gives each
// learner of a multi-user server a record of their own.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens or creates the database.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("identity: BadgerOptions.Dir is required for on-disk mode")
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{l})
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("identity: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Scope returns a Store for one learner, keyed "wisdom_user:<id>".
func (b *BadgerStore) Scope(id string) Store {
	return badgerScope{db: b.db, key: []byte(Key + ":" + id)}
}

// Load implements Store.
func (b *BadgerStore) Load(ctx context.Context) (User, error) {
	return badgerScope{db: b.db, key: []byte(Key)}.Load(ctx)
}

// Save implements Store.
func (b *BadgerStore) Save(ctx context.Context, u User) error {
	return badgerScope{db: b.db, key: []byte(Key)}.Save(ctx, u)
}

// Clear implements Store.
func (b *BadgerStore) Clear(ctx context.Context) error {
	return badgerScope{db: b.db, key: []byte(Key)}.Clear(ctx)
}

// Check reports whether the database accepts reads.
func (b *BadgerStore) Check(context.Context) error {
	if b.db.IsClosed() {
		return errors.New("identity: badger is closed")
	}
	return b.db.View(func(*badger.Txn) error { return nil })
}

// Close releases the database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

type badgerScope struct {
	db  *badger.DB
	key []byte
}

func (s badgerScope) Load(context.Context) (User, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("identity: badger get: %w", err)
	}
	return decode(val)
}

func (s badgerScope) Save(_ context.Context, u User) error {
	data, err := encode(u)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, data)
	}); err != nil {
		return fmt.Errorf("identity: badger set: %w", err)
	}
	return nil
}

func (s badgerScope) Clear(context.Context) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key)
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("identity: badger delete: %w", err)
	}
	return nil
}

// badgerLogger routes badger's warnings and errors to slog and drops the
// chatty info and debug lines.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, v ...any)   { b.l.Error(fmt.Sprintf("badger: "+f, v...)) }
func (b badgerLogger) Warningf(f string, v ...any) { b.l.Warn(fmt.Sprintf("badger: "+f, v...)) }
func (badgerLogger) Infof(string, ...any)          {}
func (badgerLogger) Debugf(string, ...any)         {}

// Package badgerdb implements the receipts store on top of badgerhold over
// badger/v4: per-trade records keyed by trade ID, an append-only event log,
// and a state-filtered listing.
package badgerdb

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

// createDB opens (creating if needed) a badgerhold store rooted at dir. An
// empty dir opens an in-memory store, as the tests do.
func createDB(dir string, logger badger.Logger) (*badgerhold.Store, error) {
	opts := badgerhold.DefaultOptions
	if len(dir) == 0 {
		opts.Options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts.Options = badger.DefaultOptions(dir)
	}
	if logger != nil {
		opts.Options = opts.Options.WithLogger(logger)
	} else {
		opts.Options = opts.Options.WithLogger(nil)
	}

	store, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}
	return store, nil
}

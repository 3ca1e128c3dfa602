package watermark

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"unitrade/internal/domain/repository"
	apperrors "unitrade/pkg/errors"
	"unitrade/pkg/logger"
)

// BadgerOptions configures the embedded store. Path is ignored when InMemory
// is set.
type BadgerOptions struct {
	Path     string
	InMemory bool
}

type badgerStore struct {
	db *badger.DB
}

// badgerLogger routes badger's own logging through the service logger.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{})   { logger.Error(format, args...) }
func (badgerLogger) Warningf(format string, args ...interface{}) { logger.Warn(format, args...) }
func (badgerLogger) Infof(format string, args ...interface{})    { logger.Debug(format, args...) }
func (badgerLogger) Debugf(format string, args ...interface{})   { logger.Debug(format, args...) }

func OpenBadgerStore(opts BadgerOptions) (repository.WatermarkStore, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("badger watermark store needs a path")
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0750); err != nil {
			return nil, fmt.Errorf("create watermark directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithNumVersionsToKeep(1).WithLogger(badgerLogger{})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open watermark database: %w", err)
	}
	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Get(ctx context.Context, uid, deviceID, listingID string) (int64, bool, error) {
	var (
		value int64
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key(uid, deviceID, listingID)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt watermark value of %d bytes", len(val))
			}
			value = int64(binary.BigEndian.Uint64(val))
			found = true
			return nil
		})
	})
	if err != nil {
		return 0, false, apperrors.StoreUnavailable("Failed to read watermark", err)
	}
	return value, found, nil
}

func (s *badgerStore) Set(ctx context.Context, uid, deviceID, listingID string, seenAtMillis int64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(seenAtMillis))

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key(uid, deviceID, listingID)), buf)
	})
	if err != nil {
		return apperrors.StoreUnavailable("Failed to write watermark", err)
	}
	return nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

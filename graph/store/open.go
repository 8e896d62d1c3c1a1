package store

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Closable is a Store that holds resources.
type Closable[S any] interface {
	Store[S]
	io.Closer
}

type nopCloser[S any] struct {
	*MemStore[S]
}

func (nopCloser[S]) Close() error { return nil }

// Open selects a backend from a location string:
//
//	memory                      in-process MemStore
//	sqlite:<path>               SQLiteStore (":memory:" allowed)
//	mysql:<dsn>                 MySQLStore
//	redis://[user:password@]host:port[/db]
//	rediss://...                Redis over TLS
//
// ttl only applies to Redis.
func Open[S any](location string, ttl time.Duration) (Closable[S], error) {
	switch {
	case location == "" || location == "memory":
		return nopCloser[S]{NewMemStore[S]()}, nil
	case strings.HasPrefix(location, "sqlite:"):
		st, err := NewSQLiteStore[S](strings.TrimPrefix(location, "sqlite:"))
		if err != nil {
			return nil, err
		}
		return st, nil
	case strings.HasPrefix(location, "mysql:"):
		st, err := NewMySQLStore[S](strings.TrimPrefix(location, "mysql:"))
		if err != nil {
			return nil, err
		}
		return st, nil
	case strings.HasPrefix(location, "redis://"), strings.HasPrefix(location, "rediss://"):
		ro, err := redis.ParseURL(location)
		if err != nil {
			return nil, fmt.Errorf("invalid redis location: %w", err)
		}
		st, err := connectRedis[S](redis.NewClient(ro), "", ttl)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store location %q", location)
	}
}

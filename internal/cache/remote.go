package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/philippgille/gokv"
	"github.com/philippgille/gokv/encoding"
	"github.com/philippgille/gokv/leveldb"
	"github.com/philippgille/gokv/redis"
)

var ErrUnsupportedAddress = errors.New("unsupported cache address")

// Remote keeps entries in an external gokv store. gokv has no notion of
// expiry, so the deadline travels with the value and is checked on read.
type Remote struct {
	store gokv.Store
	now   func() time.Time
}

func NewRemote(store gokv.Store) *Remote {
	return &Remote{store: store, now: time.Now}
}

// OpenRemote connects to the backend named by address:
//
//	redis://[:password@]host:port[/db]
//	leveldb:///absolute/path or leveldb://relative/path
func OpenRemote(address string) (*Remote, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse cache address: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "redis":
		options := redis.Options{
			Address: u.Host,
			Codec:   encoding.JSON,
		}
		if password, ok := u.User.Password(); ok {
			options.Password = password
		}
		if db := strings.Trim(u.Path, "/"); db != "" {
			options.DB, err = strconv.Atoi(db)
			if err != nil {
				return nil, fmt.Errorf("invalid redis db %q: %w", db, err)
			}
		}

		client, err := redis.NewClient(options)
		if err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", u.Host, err)
		}
		return NewRemote(client), nil
	case "leveldb":
		path := u.Host + u.Path
		if path == "" {
			return nil, fmt.Errorf("%w: leveldb address needs a path", ErrUnsupportedAddress)
		}

		store, err := leveldb.NewStore(leveldb.Options{Path: path, Codec: encoding.JSON})
		if err != nil {
			return nil, fmt.Errorf("open leveldb %s: %w", path, err)
		}
		return NewRemote(store), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedAddress, u.Scheme)
}

func (r *Remote) Get(_ context.Context, key string) (*Entry, bool, error) {
	it, ok, err := r.getItem(key)
	if !ok {
		return nil, false, err
	}
	return it.Entry, true, nil
}

func (r *Remote) getItem(key string) (item, bool, error) {
	var it item
	found, err := r.store.Get(key, &it)
	if err != nil {
		return item{}, false, fmt.Errorf("remote get %s: %w", key, err)
	}
	if !found || it.Entry == nil {
		return item{}, false, nil
	}

	if it.expired(r.now()) {
		// Best effort, the entry reads as absent either way.
		_ = r.store.Delete(key)
		return item{}, false, nil
	}

	return it, true, nil
}

func (r *Remote) Set(_ context.Context, key string, entry *Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if err := r.store.Set(key, item{Entry: entry, ExpiresAt: r.now().Add(ttl)}); err != nil {
		return fmt.Errorf("remote set %s: %w", key, err)
	}
	return nil
}

func (r *Remote) Close() error {
	return r.store.Close()
}

// Package kv is the typed façade over the tree-structured KV store that
// holds per-cluster configuration and the current master endpoint,
// backed here by docker/libkv with the Consul driver registered.
package kv

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/docker/libkv"
	libkvstore "github.com/docker/libkv/store"
	"github.com/docker/libkv/store/consul"
)

func init() {
	consul.Register()
}

// ErrNotFound is returned when a key or prefix has no value in the store.
var ErrNotFound = errors.New("kv: key not found")

// Pair is a single key/value observation from the store.
type Pair struct {
	Key   string
	Value []byte
}

// Store is the minimal read-mostly interface the daemon needs against the
// KV backend: point reads, a single write path (used only by promotion),
// and a recursive listing used for cluster discovery.
type Store interface {
	Get(ctx context.Context, key string) (*Pair, error)
	Put(ctx context.Context, key string, value []byte) error
	List(ctx context.Context, prefix string) ([]*Pair, error)
	Close() error
}

type libkvStore struct {
	backend libkvstore.Store
}

// New dials a Consul KV endpoint through docker/libkv. libkv's generic
// store.Config has no ACL token field the Consul driver reads; the
// underlying hashicorp/consul/api client picks up CONSUL_HTTP_TOKEN from
// its environment instead, so that's the option token actually flows
// through if set.
func New(endpoints []string, token string) (Store, error) {
	if token != "" {
		os.Setenv("CONSUL_HTTP_TOKEN", token)
	}
	backend, err := libkv.NewStore(libkvstore.CONSUL, endpoints, nil)
	if err != nil {
		return nil, fmt.Errorf("kv: failed to create store: %w", err)
	}
	return &libkvStore{backend: backend}, nil
}

func (s *libkvStore) Get(ctx context.Context, key string) (*Pair, error) {
	pair, err := s.backend.Get(key)
	if err != nil {
		if errors.Is(err, libkvstore.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kv: get %s: %w", key, err)
	}
	return &Pair{Key: pair.Key, Value: pair.Value}, nil
}

func (s *libkvStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.backend.Put(key, value, nil); err != nil {
		return fmt.Errorf("kv: put %s: %w", key, err)
	}
	return nil
}

func (s *libkvStore) List(ctx context.Context, prefix string) ([]*Pair, error) {
	pairs, err := s.backend.List(prefix)
	if err != nil {
		if errors.Is(err, libkvstore.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv: list %s: %w", prefix, err)
	}
	out := make([]*Pair, len(pairs))
	for i, p := range pairs {
		out[i] = &Pair{Key: p.Key, Value: p.Value}
	}
	return out, nil
}

func (s *libkvStore) Close() error {
	s.backend.Close()
	return nil
}

package components

import (
	"sort"
	"strings"

	"github.com/danmuck/nodectl/internal/nodeerr"
	"github.com/danmuck/nodectl/internal/signal"
	"github.com/danmuck/nodectl/internal/tree"
)

// Store is an in-memory key/value component. Like every tree payload it is
// not locked; reach it through dispatch or core.Do.
type Store struct {
	items map[string]string
}

func NewStore() *Store {
	return &Store{items: make(map[string]string)}
}

// NewStoreNode builds a Store with put/get/delete/list signals.
func NewStoreNode(name string) *tree.Node {
	s := NewStore()
	n := tree.NewBuilt(name, TypeStore, s)
	n.Signals().MustRegister("put", "upsert key=value", s.handlePut)
	n.Signals().MustRegister("get", "get value by key", s.handleGet)
	n.Signals().MustRegister("delete", "delete key", s.handleDelete)
	n.Signals().MustRegister("list", "list keys (optional prefix)", s.handleList)
	return n
}

func (s *Store) Put(key, value string) {
	s.items[key] = value
}

func (s *Store) Get(key string) (string, bool) {
	v, ok := s.items[key]
	return v, ok
}

func (s *Store) Delete(key string) bool {
	_, ok := s.items[key]
	delete(s.items, key)
	return ok
}

// Keys returns keys with prefix, sorted.
func (s *Store) Keys(prefix string) []string {
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func requireKey(req *signal.Frame) (string, error) {
	key, err := req.Options.String("key")
	if err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", nodeerr.New(nodeerr.BadArgument, req.Signal, "missing key")
	}
	return key, nil
}

func (s *Store) handlePut(req *signal.Frame) (*signal.Frame, error) {
	key, err := requireKey(req)
	if err != nil {
		return nil, err
	}
	value, err := req.Options.StringOr("value", "")
	if err != nil {
		return nil, err
	}
	s.Put(key, value)
	return nil, nil
}

func (s *Store) handleGet(req *signal.Frame) (*signal.Frame, error) {
	key, err := requireKey(req)
	if err != nil {
		return nil, err
	}
	v, ok := s.Get(key)
	if !ok {
		return nil, nodeerr.New(nodeerr.BadArgument, "get", "missing key=%s", key)
	}
	reply := signal.NewReply(req)
	reply.Options.SetString("key", key)
	reply.Options.SetString("value", v)
	return reply, nil
}

func (s *Store) handleDelete(req *signal.Frame) (*signal.Frame, error) {
	key, err := requireKey(req)
	if err != nil {
		return nil, err
	}
	reply := signal.NewReply(req)
	reply.Options.SetBool("deleted", s.Delete(key))
	return reply, nil
}

func (s *Store) handleList(req *signal.Frame) (*signal.Frame, error) {
	prefix, err := req.Options.StringOr("prefix", "")
	if err != nil {
		return nil, err
	}
	reply := signal.NewReply(req)
	reply.Options.SetStrings("keys", s.Keys(strings.TrimSpace(prefix)))
	return reply, nil
}

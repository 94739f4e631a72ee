package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/storage"
)

type StorageSuite struct {
	suite.Suite
	mini    *miniredis.Miniredis
	storage *Storage
	ctx     context.Context
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())

	client := redis.NewClient(&redis.Options{
		Addr: s.mini.Addr(),
	})

	s.storage = NewWithClient(client, DefaultConfig())
	s.ctx = context.Background()
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *StorageSuite) TestGetMissingBlob() {
	_, err := s.storage.Get(s.ctx, storage.KeyLogins)
	s.ErrorIs(err, model.ErrBlobNotFound)
}

func (s *StorageSuite) TestSetAndGet() {
	blob := []byte(`[{"username":"alice","password":"hash"}]`)
	s.Require().NoError(s.storage.Set(s.ctx, storage.KeyLogins, blob))

	retrieved, err := s.storage.Get(s.ctx, storage.KeyLogins)
	s.Require().NoError(err)
	s.Equal(blob, retrieved)
}

func (s *StorageSuite) TestSetUsesPrefixedKey() {
	s.Require().NoError(s.storage.Set(s.ctx, storage.KeyWorlds, []byte(`{}`)))

	raw, err := s.mini.Get("worldrelay:blob:worlds")
	s.Require().NoError(err)
	s.Equal(`{}`, raw)
	s.True(s.mini.Exists("worldrelay:saved_at:worlds"))
}

func (s *StorageSuite) TestSetOverwrites() {
	s.Require().NoError(s.storage.Set(s.ctx, storage.KeyWorlds, []byte(`{"a":1}`)))
	s.Require().NoError(s.storage.Set(s.ctx, storage.KeyWorlds, []byte(`{"b":2}`)))

	retrieved, err := s.storage.Get(s.ctx, storage.KeyWorlds)
	s.Require().NoError(err)
	s.Equal(`{"b":2}`, string(retrieved))
}

func (s *StorageSuite) TestSavedAt() {
	_, err := s.storage.SavedAt(s.ctx, storage.KeyWorlds)
	s.ErrorIs(err, model.ErrBlobNotFound)

	s.Require().NoError(s.storage.Set(s.ctx, storage.KeyWorlds, []byte(`{}`)))

	at, err := s.storage.SavedAt(s.ctx, storage.KeyWorlds)
	s.Require().NoError(err)
	s.False(at.IsZero())
}

func (s *StorageSuite) TestGetFailsWhenServerDown() {
	s.mini.Close()

	_, err := s.storage.Get(s.ctx, storage.KeyLogins)
	s.Error(err)
	s.NotErrorIs(err, model.ErrBlobNotFound)
}

func (s *StorageSuite) TestNewFailsForBadURL() {
	cfg := DefaultConfig()
	cfg.URL = "not a url"
	_, err := New(cfg)
	s.Error(err)
}

func (s *StorageSuite) TestNewConnects() {
	cfg := DefaultConfig()
	cfg.URL = "redis://" + s.mini.Addr()
	store, err := New(cfg)
	s.Require().NoError(err)
	defer func() { _ = store.Close() }()

	s.Require().NoError(store.Set(s.ctx, "k", []byte("v")))
}

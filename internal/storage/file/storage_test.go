package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/storage"
)

type StorageSuite struct {
	suite.Suite
	dir     string
	storage *Storage
	ctx     context.Context
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.dir = filepath.Join(s.T().TempDir(), "snapshots")
	var err error
	s.storage, err = New(s.dir)
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func (s *StorageSuite) TestGetMissingBlob() {
	_, err := s.storage.Get(s.ctx, storage.KeyLogins)
	s.ErrorIs(err, model.ErrBlobNotFound)
}

func (s *StorageSuite) TestSetAndGet() {
	s.Require().NoError(s.storage.Set(s.ctx, storage.KeyWorlds, []byte(`{"ABCDEF":{}}`)))

	blob, err := s.storage.Get(s.ctx, storage.KeyWorlds)
	s.Require().NoError(err)
	s.Equal(`{"ABCDEF":{}}`, string(blob))
}

func (s *StorageSuite) TestSetLeavesNoTempFiles() {
	s.Require().NoError(s.storage.Set(s.ctx, storage.KeyWorlds, []byte(`{}`)))
	s.Require().NoError(s.storage.Set(s.ctx, storage.KeyWorlds, []byte(`{"x":1}`)))

	entries, err := os.ReadDir(s.dir)
	s.Require().NoError(err)
	s.Len(entries, 1)
	s.Equal("worlds.blob", entries[0].Name())
}

func (s *StorageSuite) TestRejectsPathTraversal() {
	err := s.storage.Set(s.ctx, "../escape", []byte(`x`))
	s.Error(err)

	_, err = s.storage.Get(s.ctx, "../escape")
	s.Error(err)
}

package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/worldrelay/internal/model"
)

type TableSuite struct {
	suite.Suite
	table *Table
}

func TestTableSuite(t *testing.T) {
	suite.Run(t, new(TableSuite))
}

func (s *TableSuite) SetupTest() {
	s.table = New()
}

func (s *TableSuite) add(conn model.ConnID, username string, world model.WorldCode) *model.Session {
	session := &model.Session{ConnID: conn, Username: username, CurrentWorld: world}
	s.table.Add(session)
	return session
}

func (s *TableSuite) TestAddGetRemove() {
	session := s.add("c1", "alice", "")

	s.Same(session, s.table.Get("c1"))
	s.Equal(1, s.table.Len())

	s.Same(session, s.table.Remove("c1"))
	s.Nil(s.table.Get("c1"))
	s.Zero(s.table.Len())
}

func (s *TableSuite) TestRemoveIsIdempotent() {
	s.add("c1", "alice", "")

	s.NotNil(s.table.Remove("c1"))
	s.Nil(s.table.Remove("c1"))
	s.Nil(s.table.Remove("never"))
}

func (s *TableSuite) TestByUsername() {
	s.add("c1", "alice", "")
	s.add("c2", "bob", "")

	s.Equal(model.ConnID("c2"), s.table.ByUsername("bob").ConnID)
	s.Nil(s.table.ByUsername("carol"))
}

func (s *TableSuite) TestMembersInLoginOrder() {
	s.add("c3", "carol", "AAAAAA")
	s.add("c1", "alice", "AAAAAA")
	s.add("c2", "bob", "BBBBBB")
	pending := s.add("c4", "dave", "")
	pending.Await("AAAAAA", pending.LoggedInAt)

	members := s.table.Members("AAAAAA")
	s.Require().Len(members, 2)
	s.Equal("carol", members[0].Username)
	s.Equal("alice", members[1].Username)

	s.Equal([]string{"alice"}, s.table.MemberUsernames("AAAAAA", "c3"))
	s.Empty(s.table.Members(""))
}

func (s *TableSuite) TestFirstMember() {
	s.add("c1", "alice", "AAAAAA")
	s.add("c2", "bob", "AAAAAA")

	s.Equal("alice", s.table.FirstMember("AAAAAA", "").Username)
	s.Equal("bob", s.table.FirstMember("AAAAAA", "c1").Username)
	s.Nil(s.table.FirstMember("BBBBBB", ""))
}

func (s *TableSuite) TestOrderSurvivesRemoval() {
	s.add("c1", "alice", "")
	s.add("c2", "bob", "")
	s.add("c3", "carol", "")
	s.table.Remove("c2")
	s.add("c2", "bob", "")

	s.Equal([]string{"alice", "carol", "bob"}, s.table.Usernames())
	s.Len(s.table.All(), 3)
}

type worldMap map[model.WorldCode]*model.World

func (m worldMap) Get(code model.WorldCode) (*model.World, error) {
	if w, ok := m[code]; ok {
		return w, nil
	}
	return nil, model.ErrWorldNotFound
}

func (s *TableSuite) TestMembershipConsistent() {
	worlds := worldMap{
		"AAAAAA": model.NewWorld("AAAAAA", "alice", nil, time.Time{}),
	}
	worlds["AAAAAA"].Invite("bob")

	s.add("c1", "alice", "AAAAAA")
	pending := s.add("c2", "bob", "")
	pending.Await("AAAAAA", time.Time{})
	s.add("c3", "carol", "")
	s.NoError(s.table.MembershipConsistent(worlds))

	s.add("c4", "dave", "AAAAAA")
	s.Error(s.table.MembershipConsistent(worlds))
	s.table.Remove("c4")

	s.add("c5", "erin", "ZZZZZZ")
	s.ErrorIs(s.table.MembershipConsistent(worlds), model.ErrWorldNotFound)
}

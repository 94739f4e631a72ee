package coordinator

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/worldrelay/internal/dependencies/mocks"
	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/services/auth"
	"github.com/mcoot/worldrelay/internal/services/persistence"
	"github.com/mcoot/worldrelay/internal/services/registry"
	"github.com/mcoot/worldrelay/internal/services/sessions"
	"github.com/mcoot/worldrelay/internal/storage"
	"github.com/mcoot/worldrelay/internal/storage/memory"
	"github.com/mcoot/worldrelay/internal/testutil"
)

// recordingConn captures every message the coordinator sends it
type recordingConn struct {
	id   model.ConnID
	mu   sync.Mutex
	msgs []model.Message
}

func (r *recordingConn) ID() model.ConnID { return r.id }

func (r *recordingConn) Send(msg model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingConn) messages() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Message(nil), r.msgs...)
}

func (r *recordingConn) types() []string {
	var types []string
	for _, msg := range r.messages() {
		types = append(types, msg.Type)
	}
	return types
}

func (r *recordingConn) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

// fakeHasher stores passwords with a fixed prefix and can hold every call until released
type fakeHasher struct {
	mu     sync.Mutex
	hold   chan struct{}
	hashes int
}

func (h *fakeHasher) block() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hold = make(chan struct{})
}

func (h *fakeHasher) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hold != nil {
		close(h.hold)
		h.hold = nil
	}
}

func (h *fakeHasher) wait(ctx context.Context) error {
	h.mu.Lock()
	hold := h.hold
	h.mu.Unlock()
	if hold == nil {
		return nil
	}
	select {
	case <-hold:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *fakeHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.wait(ctx); err != nil {
		return "", err
	}
	h.mu.Lock()
	h.hashes++
	h.mu.Unlock()
	return "hashed:" + password, nil
}

func (h *fakeHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	if err := h.wait(ctx); err != nil {
		return false, err
	}
	return hash == "hashed:"+password, nil
}

func (h *fakeHasher) hashCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hashes
}

type CoordinatorSuite struct {
	suite.Suite
	clock    *mocks.MockClock
	random   *mocks.MockRandom
	hasher   *fakeHasher
	backend  *memory.Storage
	auth     *auth.Service
	registry *registry.Registry
	sessions *sessions.Table
	persist  *persistence.Scheduler
	coord    *Coordinator
	ctx      context.Context
	cancel   context.CancelFunc
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.start(DefaultConfig())
}

func (s *CoordinatorSuite) TearDownTest() {
	s.hasher.release()
	s.cancel()
	s.persist.Disarm()
}

func (s *CoordinatorSuite) start(cfg Config) {
	s.startWithHasher(cfg, nil)
}

// startWithHasher restarts the coordinator checking credentials with hasher,
// or with the fake hasher when nil
func (s *CoordinatorSuite) startWithHasher(cfg Config, hasher auth.Hasher) {
	if s.cancel != nil {
		s.cancel()
	}
	logger := testutil.NopLogger()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.hasher = &fakeHasher{}
	if hasher == nil {
		hasher = s.hasher
	}
	s.backend = memory.New()
	s.auth = auth.New(hasher, logger)
	s.registry = registry.New(s.clock, s.random, logger)
	s.sessions = sessions.New()
	s.persist = persistence.New(s.backend, s.clock, persistence.DefaultConfig(), logger,
		PersistedTables(s.auth, s.registry)...)
	s.coord = New(cfg, s.auth, s.registry, s.sessions, s.persist, s.clock, logger)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.coord.Run(s.ctx)
}

// settle waits until every submitted event and credential check has been handled
func (s *CoordinatorSuite) settle() {
	s.T().Helper()
	s.Eventually(func() bool {
		if s.coord.inflight.Load() != 0 {
			return false
		}
		if _, err := s.coord.Status(s.ctx); err != nil {
			return false
		}
		return s.coord.inflight.Load() == 0
	}, 2*time.Second, time.Millisecond)
}

// consistent asserts that every session's world is registered and invites it
func (s *CoordinatorSuite) consistent() {
	s.T().Helper()
	s.NoError(s.sessions.MembershipConsistent(s.registry))
}

func (s *CoordinatorSuite) status() Status {
	st, err := s.coord.Status(s.ctx)
	s.Require().NoError(err)
	return st
}

func (s *CoordinatorSuite) connect(id string) *recordingConn {
	conn := &recordingConn{id: model.ConnID(id)}
	s.Require().NoError(s.coord.Connect(conn))
	return conn
}

func (s *CoordinatorSuite) dispatch(conn *recordingConn, msgType string, payload any) {
	msg, err := model.NewMessage(msgType, payload)
	s.Require().NoError(err)
	s.Require().NoError(s.coord.Dispatch(conn.id, msg))
}

// login connects a new client and logs it in, leaving its message log empty
func (s *CoordinatorSuite) login(username, password string) *recordingConn {
	conn := s.connect("conn-" + username)
	s.dispatch(conn, model.MsgLogin, model.LoginPayload{Username: username, Password: password})
	s.settle()
	s.Require().Equal([]string{model.MsgNewConnect, model.MsgLoggedIn}, conn.types())
	conn.reset()
	return conn
}

// createWorld has the connection create a world with the given code
func (s *CoordinatorSuite) createWorld(conn *recordingConn, code string) model.WorldCode {
	s.random.QueueString(code)
	s.dispatch(conn, model.MsgJoinNewWorld, nil)
	s.settle()
	conn.reset()
	return model.WorldCode(code)
}

func (s *CoordinatorSuite) invite(conn *recordingConn, username string) {
	s.dispatch(conn, model.MsgInvite, model.InvitePayload{Username: username})
	s.settle()
}

func decode[T any](s *CoordinatorSuite, msg model.Message) T {
	var v T
	s.Require().NoError(msg.Decode(&v))
	return v
}

func (s *CoordinatorSuite) chats(conn *recordingConn) []string {
	var lines []string
	for _, msg := range conn.messages() {
		if msg.Type == model.MsgChat {
			lines = append(lines, decode[model.ChatPayload](s, msg).Text)
		}
	}
	return lines
}

func (s *CoordinatorSuite) TestConnectGreets() {
	conn := s.connect("c1")
	s.settle()

	s.Equal([]string{model.MsgNewConnect}, conn.types())
	s.Equal(1, s.status().Connections)
}

func (s *CoordinatorSuite) TestFirstLoginCreatesIdentity() {
	conn := s.connect("c1")
	s.dispatch(conn, model.MsgLogin, model.LoginPayload{Username: "alice", Password: "pw"})
	s.settle()

	msgs := conn.messages()
	s.Require().Len(msgs, 2)
	s.Equal(model.MsgLoggedIn, msgs[1].Type)
	s.Empty(msgs[1].Payload)

	identity, err := s.auth.Lookup("alice")
	s.Require().NoError(err)
	s.Equal("hashed:pw", identity.PasswordHash)
	s.Equal(s.clock.Now(), identity.CreatedAt)

	st := s.status()
	s.Equal([]string{"alice"}, st.ActiveUsernames)
	s.Equal([]string{"alice"}, st.RegisteredUsernames)
	s.True(st.SnapshotArmed)
}

func (s *CoordinatorSuite) TestWrongPasswordRejected() {
	first := s.login("alice", "right")
	s.dispatch(first, model.MsgLogout, nil)

	conn := s.connect("c2")
	s.dispatch(conn, model.MsgLogin, model.LoginPayload{Username: "alice", Password: "wrong"})
	s.settle()
	s.Equal([]string{model.MsgNewConnect, model.MsgIncorrectPassword}, conn.types())

	conn.reset()
	s.dispatch(conn, model.MsgLogin, model.LoginPayload{Username: "alice", Password: "right"})
	s.settle()
	s.Equal([]string{model.MsgLoggedIn}, conn.types())
	s.Equal(1, s.hasher.hashCount())
}

func (s *CoordinatorSuite) TestEmptyUsernameRejected() {
	conn := s.connect("c1")
	s.dispatch(conn, model.MsgLogin, model.LoginPayload{Username: "", Password: "pw"})
	s.settle()

	s.Equal([]string{model.MsgNewConnect, model.MsgIncorrectPassword}, conn.types())
	s.Equal(0, s.auth.Len())
}

func (s *CoordinatorSuite) TestUsernameActiveElsewhere() {
	s.login("alice", "pw")

	conn := s.connect("c2")
	s.dispatch(conn, model.MsgLogin, model.LoginPayload{Username: "alice", Password: "pw"})
	s.settle()

	s.Equal([]string{model.MsgNewConnect, model.MsgLoginAlreadyActive}, conn.types())
	s.Equal([]string{"alice"}, s.status().ActiveUsernames)
}

func (s *CoordinatorSuite) TestSecondLoginOnSameConnection() {
	conn := s.login("alice", "pw")
	s.dispatch(conn, model.MsgLogin, model.LoginPayload{Username: "bob", Password: "pw"})
	s.settle()

	s.Equal([]string{model.MsgLoginAlreadyActive}, conn.types())
	s.False(s.auth.Exists("bob"))
}

func (s *CoordinatorSuite) TestConcurrentFirstLoginsCreateOneIdentity() {
	s.hasher.block()
	a := s.connect("a")
	b := s.connect("b")
	s.dispatch(a, model.MsgLogin, model.LoginPayload{Username: "bob", Password: "one"})
	s.dispatch(b, model.MsgLogin, model.LoginPayload{Username: "bob", Password: "two"})
	s.status()

	s.hasher.release()
	s.settle()

	s.Equal(1, s.auth.Len())
	s.Equal(2, s.hasher.hashCount())

	last := func(c *recordingConn) string {
		types := c.types()
		return types[len(types)-1]
	}
	s.ElementsMatch(
		[]string{model.MsgLoggedIn, model.MsgIncorrectPassword},
		[]string{last(a), last(b)})

	identity, err := s.auth.Lookup("bob")
	s.Require().NoError(err)
	winner := "one"
	if last(b) == model.MsgLoggedIn {
		winner = "two"
	}
	s.Equal("hashed:"+winner, identity.PasswordHash)
}

func (s *CoordinatorSuite) TestDisconnectWhileHashing() {
	s.hasher.block()
	conn := s.connect("c1")
	s.dispatch(conn, model.MsgLogin, model.LoginPayload{Username: "alice", Password: "pw"})
	s.status()
	s.Require().NoError(s.coord.Disconnect(conn.id))
	s.status()

	s.hasher.release()
	s.settle()

	s.Equal([]string{model.MsgNewConnect}, conn.types())
	st := s.status()
	s.Empty(st.ActiveUsernames)
	s.Equal(0, st.Connections)
	s.False(st.SnapshotArmed)
}

func (s *CoordinatorSuite) TestWorldOperationsRequireSession() {
	conn := s.connect("c1")
	s.settle()
	conn.reset()

	s.dispatch(conn, model.MsgGetAvailableWorlds, nil)
	s.dispatch(conn, model.MsgJoinNewWorld, nil)
	s.dispatch(conn, model.MsgJoinWorld, model.JoinWorldPayload{Code: "ABCDEF"})
	s.dispatch(conn, model.MsgLeaveWorld, nil)
	s.dispatch(conn, model.MsgChat, model.ChatPayload{Text: "hi"})
	s.settle()

	for _, msgType := range conn.types() {
		s.Equal(model.MsgUnrecognizedSession, msgType)
	}
	s.Len(conn.types(), 5)
}

func (s *CoordinatorSuite) TestWorldMessagesRequireMembership() {
	conn := s.login("alice", "pw")
	s.dispatch(conn, model.MsgLeaveWorld, nil)
	s.dispatch(conn, model.MsgInvite, model.InvitePayload{Username: "bob"})
	s.dispatch(conn, model.MsgGameState, model.GameStatePayload{State: model.GameState(`{}`)})
	s.settle()

	s.Equal([]string{model.MsgUnrecognizedSession, model.MsgUnrecognizedSession, model.MsgUnrecognizedSession}, conn.types())
}

func (s *CoordinatorSuite) TestLogoutWithoutSessionIsSilent() {
	conn := s.connect("c1")
	s.settle()
	conn.reset()

	s.dispatch(conn, model.MsgLogout, nil)
	s.dispatch(conn, model.MsgLogout, nil)
	s.settle()

	s.Empty(conn.types())
}

func (s *CoordinatorSuite) TestLogoutTwiceInWorldNotifiesOnce() {
	alice := s.login("alice", "pw")
	bob := s.login("bob", "pw")
	code := s.createWorld(alice, "AAAAAA")
	s.invite(alice, "bob")
	s.dispatch(bob, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	s.dispatch(alice, model.MsgGameState, model.GameStatePayload{State: model.GameState(`{}`)})
	s.settle()
	alice.reset()
	bob.reset()

	s.dispatch(bob, model.MsgLogout, nil)
	s.dispatch(bob, model.MsgLogout, nil)
	s.settle()

	s.Equal([]string{model.MsgPlayerLeft, model.MsgChat}, alice.types())
	s.Equal([]string{"bob left"}, s.chats(alice))
	s.Empty(bob.types())
	s.Equal([]string{"alice"}, s.status().ActiveUsernames)
	s.consistent()
}

func (s *CoordinatorSuite) TestLongPasswordFirstLogin() {
	s.startWithHasher(DefaultConfig(), auth.NewBcryptHasher(bcrypt.MinCost))
	long := strings.Repeat("p", 80)

	alice := s.login("alice", long)
	s.True(s.auth.Exists("alice"))

	s.Require().NoError(s.coord.Disconnect(alice.id))
	conn := s.connect("again")
	s.dispatch(conn, model.MsgLogin, model.LoginPayload{Username: "alice", Password: long})
	s.settle()
	s.Equal([]string{model.MsgNewConnect, model.MsgLoggedIn}, conn.types())
}

func (s *CoordinatorSuite) TestUnknownMessageTypeIgnored() {
	conn := s.login("alice", "pw")
	s.dispatch(conn, "bogus", nil)
	s.settle()

	s.Empty(conn.types())
}

func (s *CoordinatorSuite) TestJoinNewWorld() {
	alice := s.login("alice", "pw")
	s.random.QueueString("QWERTY")
	s.dispatch(alice, model.MsgJoinNewWorld, nil)
	s.settle()

	msgs := alice.messages()
	s.Require().Len(msgs, 2)
	welcome := decode[model.WelcomePayload](s, msgs[0])
	s.Equal(model.MsgWelcome, msgs[0].Type)
	s.Empty(welcome.ActiveUsernames)
	s.JSONEq(`{"seed":0,"randomState":0,"init_state":true}`, string(welcome.State))
	s.Equal([]string{"alice joined"}, s.chats(alice))

	alice.reset()
	s.dispatch(alice, model.MsgGetAvailableWorlds, nil)
	s.settle()
	msgs = alice.messages()
	s.Require().Len(msgs, 1)
	s.Equal([]model.WorldCode{"QWERTY"}, decode[model.WorldCodesPayload](s, msgs[0]).Codes)
}

func (s *CoordinatorSuite) TestAvailableWorldsEmptyList() {
	alice := s.login("alice", "pw")
	s.dispatch(alice, model.MsgGetAvailableWorlds, nil)
	s.settle()

	msgs := alice.messages()
	s.Require().Len(msgs, 1)
	s.JSONEq(`{"codes":[]}`, string(msgs[0].Payload))
}

func (s *CoordinatorSuite) TestJoinWithoutInviteIsSilent() {
	alice := s.login("alice", "pw")
	bob := s.login("bob", "pw")
	code := s.createWorld(alice, "AAAAAA")

	s.dispatch(bob, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	s.dispatch(bob, model.MsgJoinWorld, model.JoinWorldPayload{Code: "ZZZZZZ"})
	s.settle()

	s.Empty(bob.types())
	s.Empty(alice.types())
}

func (s *CoordinatorSuite) TestJoinInvalidCodeLeavesCurrentWorld() {
	alice := s.login("alice", "pw")
	bob := s.login("bob", "pw")
	code := s.createWorld(alice, "AAAAAA")
	s.invite(alice, "bob")
	s.dispatch(bob, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	s.dispatch(alice, model.MsgGameState, model.GameStatePayload{State: model.GameState(`{"tick":1}`)})
	s.settle()
	alice.reset()
	bob.reset()

	s.dispatch(bob, model.MsgJoinWorld, model.JoinWorldPayload{Code: "NOPE"})
	s.settle()

	s.Empty(bob.types())
	s.Empty(alice.types())
	s.Equal(model.MembershipUnjoined, s.sessions.Get(bob.id).State())
	s.consistent()
}

func (s *CoordinatorSuite) TestJoinEmptyWorldAdmitsImmediately() {
	alice := s.login("alice", "pw")
	code := s.createWorld(alice, "AAAAAA")
	s.dispatch(alice, model.MsgGameState, model.GameStatePayload{State: model.GameState(`{"tick":9}`)})
	s.dispatch(alice, model.MsgLeaveWorld, nil)
	s.settle()
	alice.reset()

	s.dispatch(alice, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	s.settle()

	msgs := alice.messages()
	s.Require().NotEmpty(msgs)
	s.Equal(model.MsgWelcome, msgs[0].Type)
	s.JSONEq(`{"tick":9}`, string(decode[model.WelcomePayload](s, msgs[0]).State))
}

func (s *CoordinatorSuite) TestJoinWaitsForStateHandoff() {
	alice := s.login("alice", "pw")
	bob := s.login("bob", "pw")
	code := s.createWorld(alice, "AAAAAA")
	s.invite(alice, "bob")
	alice.reset()

	s.dispatch(bob, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	s.settle()

	s.Equal([]string{model.MsgGetState}, alice.types())
	s.Empty(bob.types())
	s.Equal(model.MembershipPendingJoin, s.sessions.Get(bob.id).State())
	s.Equal(1, s.status().Worlds[0].PendingJoins)

	alice.reset()
	s.dispatch(alice, model.MsgGameState, model.GameStatePayload{State: model.GameState(`{"tick":5}`)})
	s.settle()

	msgs := bob.messages()
	s.Require().Len(msgs, 2)
	s.Equal(model.MsgWelcome, msgs[0].Type)
	welcome := decode[model.WelcomePayload](s, msgs[0])
	s.Equal([]string{"alice"}, welcome.ActiveUsernames)
	s.JSONEq(`{"tick":5}`, string(welcome.State))
	s.Equal([]string{"bob joined"}, s.chats(bob))

	s.Equal([]string{model.MsgPlayerJoined, model.MsgChat}, alice.types())
	s.Equal("bob", decode[model.PlayerPayload](s, alice.messages()[0]).Username)
	s.Equal([]string{"bob joined"}, s.chats(alice))

	st := s.status()
	s.Equal([]string{"alice", "bob"}, st.Worlds[0].Members)
	s.Equal(0, st.Worlds[0].PendingJoins)
	s.consistent()
}

func (s *CoordinatorSuite) TestPendingJoinsDrainMostRecentFirst() {
	alice := s.login("alice", "pw")
	code := s.createWorld(alice, "AAAAAA")
	joiners := []*recordingConn{s.login("b", "pw"), s.login("c", "pw"), s.login("d", "pw")}
	for _, j := range joiners {
		s.invite(alice, string(j.id)[len("conn-"):])
	}
	for _, j := range joiners {
		s.dispatch(j, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	}
	s.settle()
	alice.reset()

	s.dispatch(alice, model.MsgGameState, model.GameStatePayload{State: model.GameState(`{"tick":7}`)})
	s.settle()

	var joined []string
	for _, msg := range alice.messages() {
		if msg.Type == model.MsgPlayerJoined {
			joined = append(joined, decode[model.PlayerPayload](s, msg).Username)
		}
	}
	s.Equal([]string{"d", "c", "b"}, joined)

	expectedPeers := map[string][]string{
		"d": {"alice"},
		"c": {"alice", "d"},
		"b": {"alice", "c", "d"},
	}
	for _, j := range joiners {
		msgs := j.messages()
		s.Require().NotEmpty(msgs)
		s.Equal(model.MsgWelcome, msgs[0].Type)
		welcome := decode[model.WelcomePayload](s, msgs[0])
		s.JSONEq(`{"tick":7}`, string(welcome.State))
		s.Equal(expectedPeers[string(j.id)[len("conn-"):]], welcome.ActiveUsernames)
	}
	s.consistent()
}

func (s *CoordinatorSuite) TestPendingJoinerDisconnectIsDropped() {
	alice := s.login("alice", "pw")
	bob := s.login("bob", "pw")
	code := s.createWorld(alice, "AAAAAA")
	s.invite(alice, "bob")
	s.dispatch(bob, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	s.settle()
	s.Require().NoError(s.coord.Disconnect(bob.id))
	s.settle()
	alice.reset()

	s.dispatch(alice, model.MsgGameState, model.GameStatePayload{State: model.GameState(`{"tick":2}`)})
	s.settle()

	s.Empty(alice.types())
	s.Equal(0, s.status().Worlds[0].PendingJoins)
}

func (s *CoordinatorSuite) TestNullGameStateIgnored() {
	alice := s.login("alice", "pw")
	code := s.createWorld(alice, "AAAAAA")
	s.dispatch(alice, model.MsgGameState, model.GameStatePayload{})
	s.settle()

	world, err := s.registry.Get(code)
	s.Require().NoError(err)
	s.JSONEq(`{"seed":0,"randomState":0,"init_state":true}`, string(world.GameState))
}

func (s *CoordinatorSuite) TestChatAndInputRelayedToWholeWorld() {
	alice := s.login("alice", "pw")
	bob := s.login("bob", "pw")
	carol := s.login("carol", "pw")
	code := s.createWorld(alice, "AAAAAA")
	s.invite(alice, "bob")
	s.dispatch(bob, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	s.dispatch(alice, model.MsgGameState, model.GameStatePayload{State: model.GameState(`{}`)})
	s.settle()
	alice.reset()
	bob.reset()

	s.dispatch(bob, model.MsgChat, model.ChatPayload{Text: "hello"})
	input := json.RawMessage(`{"tick_player_id":[3,1],"input":{"left":true},"rand_state":42}`)
	s.Require().NoError(s.coord.Dispatch(bob.id, model.Message{Type: model.MsgInput, Payload: input}))
	s.settle()

	for _, conn := range []*recordingConn{alice, bob} {
		msgs := conn.messages()
		s.Require().Len(msgs, 2)
		s.Equal("bob: hello", decode[model.ChatPayload](s, msgs[0]).Text)
		s.Equal(model.MsgInput, msgs[1].Type)
		s.JSONEq(string(input), string(msgs[1].Payload))
	}
	s.Empty(carol.types())
}

func (s *CoordinatorSuite) TestLeaveNotifiesOthers() {
	alice := s.login("alice", "pw")
	bob := s.login("bob", "pw")
	carol := s.login("carol", "pw")
	code := s.createWorld(alice, "AAAAAA")
	s.invite(alice, "bob")
	s.invite(alice, "carol")
	s.dispatch(bob, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	s.dispatch(carol, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	s.dispatch(alice, model.MsgGameState, model.GameStatePayload{State: model.GameState(`{}`)})
	s.settle()
	for _, c := range []*recordingConn{alice, bob, carol} {
		c.reset()
	}

	s.dispatch(alice, model.MsgLeaveWorld, nil)
	s.settle()

	s.Empty(alice.types())
	for _, c := range []*recordingConn{bob, carol} {
		s.Equal([]string{model.MsgPlayerLeft, model.MsgChat}, c.types())
		s.Equal("alice", decode[model.PlayerPayload](s, c.messages()[0]).Username)
		s.Equal([]string{"alice left"}, s.chats(c))
	}
	s.Equal(model.MembershipUnjoined, s.sessions.Get(alice.id).State())
	s.consistent()
}

func (s *CoordinatorSuite) TestDisconnectLeavesWorld() {
	alice := s.login("alice", "pw")
	bob := s.login("bob", "pw")
	code := s.createWorld(alice, "AAAAAA")
	s.invite(alice, "bob")
	s.dispatch(bob, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	s.dispatch(alice, model.MsgGameState, model.GameStatePayload{State: model.GameState(`{}`)})
	s.settle()
	alice.reset()

	s.Require().NoError(s.coord.Disconnect(bob.id))
	s.settle()

	s.Equal([]string{model.MsgPlayerLeft, model.MsgChat}, alice.types())
	s.Equal([]string{"alice"}, s.status().ActiveUsernames)
}

func (s *CoordinatorSuite) TestInvite() {
	alice := s.login("alice", "pw")
	bob := s.login("bob", "pw")
	code := s.createWorld(alice, "AAAAAA")

	s.invite(alice, "nobody")
	s.Equal([]string{"user does not exist"}, s.chats(alice))

	alice.reset()
	s.invite(alice, "bob")
	s.Equal([]string{"invited bob"}, s.chats(alice))

	s.dispatch(bob, model.MsgGetAvailableWorlds, nil)
	s.settle()
	s.Equal([]model.WorldCode{code}, decode[model.WorldCodesPayload](s, bob.messages()[0]).Codes)
	s.Equal([]string{"alice", "bob"}, s.status().Worlds[0].Invited)
}

func (s *CoordinatorSuite) TestSnapshotTimerFollowsSessions() {
	s.False(s.persist.Armed())

	alice := s.login("alice", "pw")
	bob := s.login("bob", "pw")
	s.True(s.persist.Armed())

	s.dispatch(alice, model.MsgLogout, nil)
	s.settle()
	s.True(s.persist.Armed())

	s.dispatch(bob, model.MsgLogout, nil)
	s.settle()
	s.False(s.persist.Armed())
	s.Equal(0, s.clock.ActiveTickers())
}

func (s *CoordinatorSuite) TestMutationsArePersisted() {
	alice := s.login("alice", "pw")
	code := s.createWorld(alice, "AAAAAA")
	s.dispatch(alice, model.MsgGameState, model.GameStatePayload{State: model.GameState(`{"tick":3}`)})
	s.settle()

	s.Require().NoError(s.persist.Flush(s.ctx))

	logins, err := s.backend.Get(s.ctx, storage.KeyLogins)
	s.Require().NoError(err)
	s.Contains(string(logins), `"username":"alice"`)

	blob, err := s.backend.Get(s.ctx, storage.KeyWorlds)
	s.Require().NoError(err)
	var worlds map[model.WorldCode]*model.World
	s.Require().NoError(json.Unmarshal(blob, &worlds))
	s.Require().Contains(worlds, code)
	s.JSONEq(`{"tick":3}`, string(worlds[code].GameState))
	s.Equal([]string{"alice"}, worlds[code].InvitedUsernames)
}

func (s *CoordinatorSuite) TestPendingJoinTimeout() {
	cfg := DefaultConfig()
	cfg.PendingJoinTimeout = 5 * time.Second
	s.start(cfg)

	alice := s.login("alice", "pw")
	bob := s.login("bob", "pw")
	code := s.createWorld(alice, "AAAAAA")
	s.invite(alice, "bob")
	s.dispatch(bob, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	s.settle()
	alice.reset()

	s.clock.Advance(5 * time.Second)
	s.settle()
	s.Equal([]string{model.MsgGetState}, alice.types())
	s.Empty(bob.types())

	// with nobody left to ask, the joiner gets the last saved state
	s.Require().NoError(s.coord.Disconnect(alice.id))
	s.settle()
	s.clock.Advance(5 * time.Second)
	s.settle()

	msgs := bob.messages()
	s.Require().NotEmpty(msgs)
	s.Equal(model.MsgWelcome, msgs[0].Type)
	welcome := decode[model.WelcomePayload](s, msgs[0])
	s.Empty(welcome.ActiveUsernames)
	s.JSONEq(`{"seed":0,"randomState":0,"init_state":true}`, string(welcome.State))
}

func (s *CoordinatorSuite) TestStaleTimeoutIgnored() {
	cfg := DefaultConfig()
	cfg.PendingJoinTimeout = 5 * time.Second
	s.start(cfg)

	alice := s.login("alice", "pw")
	bob := s.login("bob", "pw")
	code := s.createWorld(alice, "AAAAAA")
	s.invite(alice, "bob")
	s.dispatch(bob, model.MsgJoinWorld, model.JoinWorldPayload{Code: code})
	s.dispatch(alice, model.MsgGameState, model.GameStatePayload{State: model.GameState(`{}`)})
	s.settle()
	alice.reset()
	bob.reset()

	s.clock.Advance(5 * time.Second)
	s.settle()

	s.Empty(alice.types())
	s.Empty(bob.types())
}

func (s *CoordinatorSuite) TestStoppedCoordinatorRejectsEvents() {
	s.cancel()
	s.Eventually(func() bool {
		return s.coord.Connect(&recordingConn{id: "late"}) == model.ErrCoordinatorStopped
	}, time.Second, time.Millisecond)

	_, err := s.coord.Status(context.Background())
	s.ErrorIs(err, model.ErrCoordinatorStopped)
}

func TestAsyncWorkInFlightUntilResultHandled(t *testing.T) {
	logger := testutil.NopLogger()
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	authService := auth.New(&fakeHasher{}, logger)
	reg := registry.New(clk, mocks.NewMockRandom(), logger)
	persist := persistence.New(memory.New(), clk, persistence.DefaultConfig(), logger,
		PersistedTables(authService, reg)...)
	c := New(DefaultConfig(), authService, reg, sessions.New(), persist, clk, logger)

	c.goAsync(func(ctx context.Context) event {
		return loginVerifiedEvent{id: "gone", username: "alice"}
	})

	var ev event
	select {
	case ev = <-c.events:
	case <-time.After(2 * time.Second):
		t.Fatal("async result was never submitted")
	}

	// Submitted but not yet handled
	assert.EqualValues(t, 1, c.inflight.Load())

	c.handle(ev)
	assert.Zero(t, c.inflight.Load())
}

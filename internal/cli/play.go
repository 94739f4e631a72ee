package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcoot/worldrelay/internal/model"
)

const playHelp = `Commands:
  /worlds           list joinable worlds
  /new              create and join a new world
  /join <code>      join a world
  /leave            leave the current world
  /invite <user>    invite a user to the current world
  /state <json>     publish a game state
  /input <json>     send an input frame
  /logout           log out and quit
Anything else is sent as chat.`

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play [code]",
		Short: "Connect interactively and print every relay event",
		Long: `Log in and open an interactive session. Inbound events are printed as
they arrive. State requests are answered with the most recent state seen.

` + playHelp,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loginCtx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			rc, err := openSession(loginCtx)
			cancel()
			if err != nil {
				return err
			}
			defer func() { _ = rc.Close() }()

			s := &playSession{rc: rc, out: NewOutput(cfg.Output)}
			done := make(chan struct{})
			go func() {
				defer close(done)
				s.watch()
			}()

			fmt.Fprintf(os.Stderr, "logged in as %s, /help for commands\n", cfg.Username)
			if len(args) == 1 {
				if err := s.handleLine("/join " + args[0]); err != nil {
					return err
				}
			}
			err = s.repl(os.Stdin, done)
			if errors.Is(err, errLogout) {
				return nil
			}
			return err
		},
	}
}

var errLogout = errors.New("logout")

type playSession struct {
	rc  *RelayConn
	out *Output

	mu        sync.Mutex
	lastState model.GameState
}

// watch prints inbound events until the connection closes
func (s *playSession) watch() {
	for msg := range s.rc.Messages() {
		switch msg.Type {
		case model.MsgWelcome:
			var w model.WelcomePayload
			if msg.Decode(&w) == nil {
				s.setState(w.State)
			}
		case model.MsgGameState:
			var gs model.GameStatePayload
			if msg.Decode(&gs) == nil {
				s.setState(gs.State)
			}
		case model.MsgGetState:
			s.answerState()
		case model.MsgUnrecognizedSession:
			s.out.PrintError(errorForSignal(msg.Type))
			continue
		}
		s.out.Print(RelayEvent{Time: time.Now(), Type: msg.Type, Payload: msg.Payload})
	}
	if err := s.rc.Err(); err != nil && cfg.Verbose {
		s.out.PrintError(err)
	}
}

func (s *playSession) setState(state model.GameState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastState = state
}

func (s *playSession) answerState() {
	s.mu.Lock()
	state := s.lastState
	s.mu.Unlock()
	if len(state) == 0 {
		return
	}
	if err := s.rc.Send(model.MsgGameState, model.GameStatePayload{State: state}); err != nil {
		s.out.PrintError(err)
	}
}

func (s *playSession) repl(in io.Reader, done <-chan struct{}) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-done:
			return errors.New("connection closed")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := s.handleLine(strings.TrimSpace(line)); err != nil {
				if errors.Is(err, errLogout) {
					return err
				}
				s.out.PrintError(err)
			}
		}
	}
}

func (s *playSession) handleLine(line string) error {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return s.rc.Send(model.MsgChat, model.ChatPayload{Text: line})
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "/help":
		fmt.Fprintln(os.Stderr, playHelp)
		return nil
	case "/worlds":
		return s.rc.Send(model.MsgGetAvailableWorlds, nil)
	case "/new":
		return s.rc.Send(model.MsgJoinNewWorld, nil)
	case "/join":
		if arg == "" {
			return fmt.Errorf("usage: /join <code>")
		}
		return s.rc.Send(model.MsgJoinWorld, model.JoinWorldPayload{Code: model.WorldCode(strings.ToUpper(arg))})
	case "/leave":
		return s.rc.Send(model.MsgLeaveWorld, nil)
	case "/invite":
		if arg == "" {
			return fmt.Errorf("usage: /invite <user>")
		}
		return s.rc.Send(model.MsgInvite, model.InvitePayload{Username: arg})
	case "/state":
		if !json.Valid([]byte(arg)) {
			return fmt.Errorf("state must be valid JSON")
		}
		state := model.GameState(arg)
		s.setState(state)
		return s.rc.Send(model.MsgGameState, model.GameStatePayload{State: state})
	case "/input":
		var input model.InputPayload
		if err := json.Unmarshal([]byte(arg), &input); err != nil {
			return fmt.Errorf("input must be a JSON object: %w", err)
		}
		return s.rc.Send(model.MsgInput, json.RawMessage(arg))
	case "/logout":
		return errLogout
	default:
		return fmt.Errorf("unknown command %s, try /help", command)
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mcoot/worldrelay/internal/model"
)

func newWorldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worlds",
		Short: "List the worlds you are invited to",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			rc, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rc.Close() }()

			codes, err := rc.WorldCodes(ctx)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output).Print(WorldsResult{Username: cfg.Username, Codes: codes})
			return nil
		},
	}
}

func newCreateCmd() *cobra.Command {
	var invite []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new world",
		Long: `Create a new world and print its code. Use --invite to invite other
users before disconnecting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
			defer cancel()

			rc, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rc.Close() }()

			result, err := createWorld(ctx, rc)
			if err != nil {
				return err
			}

			for _, username := range invite {
				if err := rc.Send(model.MsgInvite, model.InvitePayload{Username: username}); err != nil {
					return err
				}
				msg, err := rc.Expect(ctx, model.MsgChat)
				if err != nil {
					return err
				}
				var chat model.ChatPayload
				if err := msg.Decode(&chat); err != nil {
					return err
				}
				if cfg.Verbose {
					NewOutput(cfg.Output).PrintMessage(chat.Text)
				}
			}

			NewOutput(cfg.Output).Print(result)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&invite, "invite", nil, "Users to invite to the new world")

	return cmd
}

// createWorld creates a world and works out its code by comparing the
// visible world list before and after
func createWorld(ctx context.Context, rc *RelayConn) (CreateResult, error) {
	before, err := rc.WorldCodes(ctx)
	if err != nil {
		return CreateResult{}, err
	}

	if err := rc.Send(model.MsgJoinNewWorld, nil); err != nil {
		return CreateResult{}, err
	}
	msg, err := rc.Expect(ctx, model.MsgWelcome, model.MsgUnrecognizedSession)
	if err != nil {
		return CreateResult{}, err
	}
	if msg.Type == model.MsgUnrecognizedSession {
		return CreateResult{}, model.ErrUnrecognizedSession
	}
	var welcome model.WelcomePayload
	if err := msg.Decode(&welcome); err != nil {
		return CreateResult{}, err
	}
	if _, err := rc.Expect(ctx, model.MsgChat); err != nil {
		return CreateResult{}, err
	}

	after, err := rc.WorldCodes(ctx)
	if err != nil {
		return CreateResult{}, err
	}
	for _, code := range after {
		if !slices.Contains(before, code) {
			return CreateResult{Code: code, ActiveUsernames: welcome.ActiveUsernames, State: welcome.State}, nil
		}
	}
	return CreateResult{}, errors.New("created world did not appear in the world list")
}

// errorForSignal maps relay rejection messages onto errors
func errorForSignal(msgType string) error {
	switch msgType {
	case model.MsgUnrecognizedSession:
		return model.ErrUnrecognizedSession
	case model.MsgIncorrectPassword:
		return model.ErrIncorrectPassword
	case model.MsgLoginAlreadyActive:
		return model.ErrAlreadyActive
	default:
		return fmt.Errorf("unexpected %q", msgType)
	}
}

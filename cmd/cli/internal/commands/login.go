package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joynix/joynix-admin/internal/authz"
)

// LoginCmd signs in with a one time password.
type LoginCmd struct {
	Identifier string `arg:"" help:"email address or phone number"`
	Code       string `help:"verification code, prompted for when empty"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	s, err := openSession(ctx, globals, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	out := globals.stdout()

	challenge, err := s.otp.Start(ctx, c.Identifier)
	if err != nil {
		return fmt.Errorf("failed to start sign in: %w", err)
	}

	fmt.Fprintf(out, "Code sent by %s to %s, valid for %s.\n", challenge.DeliveryMethod, challenge.ContactMasked, challenge.TTL())

	code := c.Code
	if code == "" {
		fmt.Fprint(out, "Code: ")
		code, err = readLine(globals)
		if err != nil {
			return fmt.Errorf("failed to read code: %w", err)
		}
	}

	verified, err := s.otp.Verify(ctx, challenge.SessionID, code)
	if err != nil {
		return fmt.Errorf("failed to verify code: %w", err)
	}

	fmt.Fprintf(out, "Signed in as %s.\n", verified.User.Name())

	// saving the session triggered the permission load
	if err := s.resolver.Err(); err != nil {
		fmt.Fprintf(out, "Permissions could not be loaded: %v\n", err)
		return nil
	}

	tree := s.resolver.Tree()
	fmt.Fprintf(out, "Role: %s (%d resources)\n", tree.Role, len(authz.Granted(tree.Resources)))

	return nil
}

func readLine(globals *Globals) (string, error) {
	line, err := bufio.NewReader(globals.stdin()).ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// LogoutCmd clears the stored session.
type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	s, err := openSession(ctx, globals, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.tokens.Load(ctx).IsAuthenticated() {
		fmt.Fprintln(globals.stdout(), "Not signed in.")
		return nil
	}

	if err := s.otp.SignOut(ctx); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}

	fmt.Fprintln(globals.stdout(), "Signed out.")
	return nil
}

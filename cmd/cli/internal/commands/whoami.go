package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joynix/joynix-admin/internal/authz"
	"github.com/joynix/joynix-admin/internal/navigation"
)

var errAccessDenied = errors.New("access denied")

// WhoamiCmd shows the signed in operator.
type WhoamiCmd struct {
	JSON bool `help:"print as JSON"`
}

type whoami struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

func (c *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	s, err := openSession(ctx, globals, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	current := s.tokens.Load(ctx)
	if !current.IsAuthenticated() {
		return errNotSignedIn
	}

	token, err := s.client.TokenSource(ctx).Token()
	if err != nil {
		return err
	}

	info := whoami{
		ID:          current.UserID(),
		Name:        current.User.Name(),
		Fingerprint: current.Fingerprint(),
		ExpiresAt:   token.Expiry,
	}
	if current.User != nil {
		info.Email = current.User.Email
	}

	out := globals.stdout()
	if c.JSON {
		return printJSON(out, info)
	}

	fmt.Fprintf(out, "User:        %s\n", info.Name)
	fmt.Fprintf(out, "ID:          %s\n", info.ID)
	if info.Email != "" {
		fmt.Fprintf(out, "Email:       %s\n", info.Email)
	}
	fmt.Fprintf(out, "Session:     %s\n", info.Fingerprint)

	switch {
	case token.Expiry.IsZero():
		fmt.Fprintln(out, "Expires:     unknown")
	case token.Expiry.Before(time.Now()):
		fmt.Fprintf(out, "Expires:     %s (expired, refreshed on next call)\n", token.Expiry.Local().Format(time.DateTime))
	default:
		fmt.Fprintf(out, "Expires:     %s\n", token.Expiry.Local().Format(time.DateTime))
	}

	return nil
}

// PermissionsCmd shows the role and granted resources.
type PermissionsCmd struct {
	JSON bool `help:"print the permission tree as JSON"`
}

func (c *PermissionsCmd) Run(ctx context.Context, globals *Globals) error {
	s, err := openSession(ctx, globals, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.requireSignIn(ctx); err != nil {
		return err
	}

	tree := s.resolver.Tree()
	out := globals.stdout()

	if c.JSON {
		return printJSON(out, tree)
	}

	fmt.Fprintf(out, "Role: %s\n", tree.Role)
	granted := authz.Granted(tree.Resources)
	if len(granted) == 0 {
		fmt.Fprintln(out, "No resources granted.")
		return nil
	}
	for _, path := range granted {
		fmt.Fprintf(out, "  %s\n", path)
	}
	return nil
}

// CanCmd checks a permission path, the exit status is non zero when denied.
type CanCmd struct {
	Path string `arg:"" help:"dot separated permission path, for example users.user_reports"`
}

func (c *CanCmd) Run(ctx context.Context, globals *Globals) error {
	s, err := openSession(ctx, globals, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.requireSignIn(ctx); err != nil {
		return err
	}

	if !s.resolver.CanAccess(c.Path) {
		fmt.Fprintln(globals.stdout(), "no")
		return fmt.Errorf("%w: %s", errAccessDenied, c.Path)
	}

	fmt.Fprintln(globals.stdout(), "yes")
	return nil
}

// NavCmd prints the navigation visible to the signed in role.
type NavCmd struct {
	File string `help:"navigation YAML, defaults to the built in tree" type:"existingfile"`
	JSON bool   `help:"print as JSON"`
}

func (c *NavCmd) Run(ctx context.Context, globals *Globals) error {
	entries, err := c.entries()
	if err != nil {
		return err
	}

	s, err := openSession(ctx, globals, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.requireSignIn(ctx); err != nil {
		return err
	}

	visible := navigation.Filter(entries, s.resolver.Snapshot())

	out := globals.stdout()
	if c.JSON {
		return printJSON(out, visible)
	}

	printEntries(out, visible, 0)
	return nil
}

func (c *NavCmd) entries() ([]navigation.Entry, error) {
	if c.File == "" {
		return navigation.Default(), nil
	}

	f, err := os.Open(c.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open navigation: %w", err)
	}
	defer f.Close()

	entries, err := navigation.Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load navigation from %s: %w", c.File, err)
	}
	return entries, nil
}

func printEntries(w io.Writer, entries []navigation.Entry, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, e := range entries {
		if e.Route != "" {
			fmt.Fprintf(w, "%s%s\t%s\n", indent, e.Title, e.Route)
		} else {
			fmt.Fprintf(w, "%s%s\n", indent, e.Title)
		}
		printEntries(w, e.Children, depth+1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

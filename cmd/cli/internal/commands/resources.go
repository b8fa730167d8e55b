package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joynix/joynix-admin/internal/navigation"
	"github.com/joynix/joynix-admin/internal/resources"
)

// ResourcesCmd works with the admin collections.
type ResourcesCmd struct {
	Names  ResourcesNamesCmd  `cmd:"" help:"List the known resources"`
	List   ResourcesListCmd   `cmd:"" help:"List items of a resource"`
	Get    ResourcesGetCmd    `cmd:"" help:"Show one item"`
	Create ResourcesCreateCmd `cmd:"" help:"Create an item from JSON"`
	Update ResourcesUpdateCmd `cmd:"" help:"Update an item from JSON"`
	Delete ResourcesDeleteCmd `cmd:"" help:"Delete an item"`
}

// ResourcesNamesCmd lists the registry.
type ResourcesNamesCmd struct{}

func (c *ResourcesNamesCmd) Run(ctx context.Context, globals *Globals) error {
	w := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTITLE\tPERMISSION\tPATH")
	for _, res := range resources.Default().All() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", res.Name, res.Title, res.Permission, res.Path)
	}
	return w.Flush()
}

// ResourcesListCmd lists a page of items.
type ResourcesListCmd struct {
	Name   string `arg:"" help:"resource name"`
	Page   int    `help:"page number" default:"1"`
	Limit  int    `help:"items per page" default:"20"`
	Search string `help:"search term"`
	JSON   bool   `help:"print as JSON"`
}

func (c *ResourcesListCmd) Run(ctx context.Context, globals *Globals) error {
	s, res, err := openResource(ctx, globals, c.Name)
	if err != nil {
		return err
	}
	defer s.Close()

	page, err := s.resources.List(ctx, res.Name, resources.ListOptions{Page: c.Page, Limit: c.Limit, Search: c.Search})
	if err != nil {
		return err
	}

	out := globals.stdout()
	if c.JSON {
		return printJSON(out, page)
	}

	if len(page.Items) == 0 {
		fmt.Fprintf(out, "No %s found.\n", strings.ToLower(res.Title))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(res.Columns, "\t")))
	for _, item := range page.Items {
		fields := make([]string, 0, len(res.Columns))
		for _, col := range res.Columns {
			fields = append(fields, item.Field(col))
		}
		fmt.Fprintln(w, strings.Join(fields, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if md := page.Metadata; md.TotalPages > 0 {
		fmt.Fprintf(out, "\nPage %d of %d, %d total.\n", md.Page, md.TotalPages, md.Total)
	}

	return nil
}

// ResourcesGetCmd prints one item.
type ResourcesGetCmd struct {
	Name string `arg:"" help:"resource name"`
	ID   string `arg:"" help:"item id"`
}

func (c *ResourcesGetCmd) Run(ctx context.Context, globals *Globals) error {
	s, res, err := openResource(ctx, globals, c.Name)
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := s.resources.Get(ctx, res.Name, c.ID)
	if err != nil {
		return err
	}
	return printJSON(globals.stdout(), item)
}

// ResourcesCreateCmd creates an item.
type ResourcesCreateCmd struct {
	Name string `arg:"" help:"resource name"`
	Data string `help:"JSON body, @file reads a file and @- reads stdin" required:""`
}

func (c *ResourcesCreateCmd) Run(ctx context.Context, globals *Globals) error {
	body, err := readBody(globals, c.Data)
	if err != nil {
		return err
	}

	s, res, err := openResource(ctx, globals, c.Name)
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := s.resources.Create(ctx, res.Name, body)
	if err != nil {
		return err
	}
	return printJSON(globals.stdout(), item)
}

// ResourcesUpdateCmd updates an item.
type ResourcesUpdateCmd struct {
	Name string `arg:"" help:"resource name"`
	ID   string `arg:"" help:"item id"`
	Data string `help:"JSON body, @file reads a file and @- reads stdin" required:""`
}

func (c *ResourcesUpdateCmd) Run(ctx context.Context, globals *Globals) error {
	body, err := readBody(globals, c.Data)
	if err != nil {
		return err
	}

	s, res, err := openResource(ctx, globals, c.Name)
	if err != nil {
		return err
	}
	defer s.Close()

	item, err := s.resources.Update(ctx, res.Name, c.ID, body)
	if err != nil {
		return err
	}
	return printJSON(globals.stdout(), item)
}

// ResourcesDeleteCmd deletes an item.
type ResourcesDeleteCmd struct {
	Name  string `arg:"" help:"resource name"`
	ID    string `arg:"" help:"item id"`
	Force bool   `help:"Skip confirmation" default:"false"`
}

func (c *ResourcesDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	s, res, err := openResource(ctx, globals, c.Name)
	if err != nil {
		return err
	}
	defer s.Close()

	out := globals.stdout()

	if !c.Force {
		fmt.Fprintf(out, "Delete %s %s? [y/N]: ", res.Name, c.ID)
		response, err := readLine(globals)
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := s.resources.Delete(ctx, res.Name, c.ID); err != nil {
		return err
	}

	fmt.Fprintf(out, "Deleted %s %s.\n", res.Name, c.ID)
	return nil
}

// openResource signs in and checks the resource against the permission tree,
// the same decision the console's route gate makes.
func openResource(ctx context.Context, globals *Globals, name string) (*session, resources.Resource, error) {
	res, err := resources.Default().Lookup(name)
	if err != nil {
		return nil, resources.Resource{}, fmt.Errorf("%w, run: joynix-admin resources names", err)
	}

	s, err := openSession(ctx, globals, nil)
	if err != nil {
		return nil, resources.Resource{}, err
	}

	if _, err := s.requireSignIn(ctx); err != nil {
		s.Close()
		return nil, resources.Resource{}, err
	}

	if decision := navigation.Decide(s.resolver, res.Permission); decision != navigation.Allowed {
		s.Close()
		return nil, resources.Resource{}, fmt.Errorf("%w: %s requires %q", errAccessDenied, res.Name, res.Permission)
	}

	return s, res, nil
}

// readBody decodes a JSON flag value, @path reads a file and @- reads stdin.
func readBody(globals *Globals, data string) (json.RawMessage, error) {
	raw := []byte(data)

	if path, ok := strings.CutPrefix(data, "@"); ok {
		var err error
		if path == "-" {
			raw, err = io.ReadAll(globals.stdin())
		} else {
			raw, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("body is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joynix/joynix-admin/cmd/cli/internal/commands"
	"github.com/joynix/joynix-admin/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Login       commands.LoginCmd       `cmd:"" help:"Sign in with a one time password"`
		Logout      commands.LogoutCmd      `cmd:"" help:"Sign out and clear the stored session"`
		Whoami      commands.WhoamiCmd      `cmd:"" help:"Show the signed in operator"`
		Permissions commands.PermissionsCmd `cmd:"" help:"Show the role and granted resources"`
		Can         commands.CanCmd         `cmd:"" help:"Check a permission path"`
		Nav         commands.NavCmd         `cmd:"" help:"Show the navigation visible to the role"`
		Resources   commands.ResourcesCmd   `cmd:"" help:"Work with admin resources"`
		Serve       commands.ServeCmd       `cmd:"" help:"Run the web console"`

		API      commands.APIFlags      `embed:"" prefix:"api-"`
		Store    commands.StoreFlags    `embed:"" prefix:"store-"`
		Postgres commands.PostgresFlags `embed:"" prefix:"postgres-"`
		Redis    commands.RedisFlags    `embed:"" prefix:"redis-"`

		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("joynix-admin"),
		kong.Description("Joynix admin CLI and console."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	logger.Setup(cli.Debug)

	err := cmd.Run(&commands.Globals{
		Debug:    cli.Debug,
		Version:  version,
		API:      cli.API,
		Store:    cli.Store,
		Postgres: cli.Postgres,
		Redis:    cli.Redis,
	})
	cmd.FatalIfErrorf(err)
}

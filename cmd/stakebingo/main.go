package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Server   ServerCmd        `cmd:"" help:"Run the bingo room server"`
	Snapshot SnapshotCmd      `cmd:"" help:"Print the current snapshot of a stake room"`
	Rooms    RoomsCmd         `cmd:"" help:"List live rooms"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("stakebingo"),
		kong.Description("Stake-tiered multiplayer bingo rooms"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

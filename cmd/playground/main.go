package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version     kong.VersionFlag `short:"v" help:"Show version"`
	Run         RunCmd           `cmd:"" help:"Run a match between uploaded bots"`
	Check       CheckCmd         `cmd:"" help:"Validate a bot archive without seating it"`
	Leaderboard LeaderboardCmd   `cmd:"" help:"Show the persistent leaderboard"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("playground"),
		kong.Description("Multi-tenant poker bot playground"),
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

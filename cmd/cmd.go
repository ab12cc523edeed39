// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func yesFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:    "yes",
		Aliases: []string{"y"},
		Usage:   "Answer yes to confirmation prompts",
	}
}

func waitFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "wait",
		Usage: "Listen for the browser callback and finish the connection locally",
	}
}

// spotifyCommand handles the Spotify account lifecycle
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Connect, switch or disconnect the linked Spotify account",
		Commands: []*cli.Command{
			{
				Name:   "connect",
				Usage:  "Connect a Spotify account through the browser",
				Flags:  []cli.Flag{yesFlag(), waitFlag()},
				Action: r.SpotifyConnect,
			},
			{
				Name:   "disconnect",
				Usage:  "Disconnect the linked Spotify account",
				Flags:  []cli.Flag{yesFlag()},
				Action: r.SpotifyDisconnect,
			},
			{
				Name:   "switch",
				Usage:  "Connect a different Spotify account",
				Flags:  []cli.Flag{yesFlag(), waitFlag()},
				Action: r.SpotifySwitch,
			},
			{
				Name:  "status",
				Usage: "Show the linked account",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
						Value: true,
					},
				},
				Action: r.SpotifyStatus,
			},
			{
				Name:   "premium",
				Usage:  "Check whether the linked account is Spotify Premium",
				Action: r.SpotifyPremium,
			},
			{
				Name:   "migrate",
				Usage:  "Promote a legacy Spotify access token into an integration",
				Action: r.SpotifyMigrate,
			},
		},
	}
}

// sessionCommand manages the backend session token
func sessionCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Manage the account backend session",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Store the backend session token",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "token",
					},
				},
				Action: r.SessionSet,
			},
			{
				Name:   "show",
				Usage:  "Show the stored session's claims",
				Action: r.SessionShow,
			},
		},
	}
}

// setupCommand handles setup operations for the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
		},
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/smallbiznis/valora-onboard/internal/adminclient"
	"github.com/smallbiznis/valora-onboard/internal/domain"
)

var flagServer = &cli.StringFlag{
	Name:    "server",
	Value:   "http://127.0.0.1:8080",
	Usage:   "Onboard service base URL",
	EnvVars: []string{"ONBOARD_URL"},
}

var flagAPIKey = &cli.StringFlag{
	Name:     "api-key",
	Usage:    "Admin API key",
	EnvVars:  []string{"ADMIN_API_KEY"},
	Required: true,
}

var flagActor = &cli.StringFlag{
	Name:    "actor",
	Usage:   "Name recorded as the requester",
	EnvVars: []string{"ONBOARD_ACTOR", "USER"},
}

var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 30 * time.Second,
}

func main() {
	app := &cli.App{
		Name:           "onboardctl",
		Usage:          "administer the onboard service",
		DefaultCommand: "stats",
		Flags:          []cli.Flag{flagServer, flagAPIKey, flagActor, flagTimeout},
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "show pool size and queue state",
				Action: func(cCtx *cli.Context) error {
					stats, err := newClient(cCtx).Stats(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(stats)
				},
			},
			{
				Name:  "codes",
				Usage: "manage redemption codes",
				Subcommands: []*cli.Command{
					{
						Name:  "issue",
						Usage: "mint redemption codes",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "quantity", Required: true, Usage: "subjects per code"},
							&cli.IntFlag{Name: "count", Value: 1, Usage: "codes to mint"},
						},
						Action: func(cCtx *cli.Context) error {
							codes, err := newClient(cCtx).IssueCodes(cCtx.Context, cCtx.Int("quantity"), cCtx.Int("count"))
							if err != nil {
								return err
							}
							for _, code := range codes {
								fmt.Printf("%s\t%d\t%s\n", code.Code, code.Quantity, code.Link)
							}
							return nil
						},
					},
				},
			},
			{
				Name:  "batch",
				Usage: "push pooled subjects into a group",
				Subcommands: []*cli.Command{
					{
						Name: "start",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "group", Required: true},
							&cli.IntFlag{Name: "quantity", Required: true},
							&cli.StringSliceFlag{Name: "role"},
						},
						Action: func(cCtx *cli.Context) error {
							out, err := newClient(cCtx).StartBatch(cCtx.Context, cCtx.String("group"), cCtx.Int("quantity"), cCtx.StringSlice("role"))
							if err != nil {
								return err
							}
							return printJSON(out)
						},
					},
					{
						Name:      "status",
						ArgsUsage: "<batch-id>",
						Action: func(cCtx *cli.Context) error {
							if cCtx.NArg() != 1 {
								return cli.Exit("batch status requires a batch id", 2)
							}
							status, err := newClient(cCtx).BatchStatus(cCtx.Context, cCtx.Args().First())
							if err != nil {
								return err
							}
							return printJSON(status)
						},
					},
				},
			},
			{
				Name:  "settings",
				Usage: "read or change runtime settings",
				Subcommands: []*cli.Command{
					{
						Name: "get",
						Action: func(cCtx *cli.Context) error {
							current, err := newClient(cCtx).Settings(cCtx.Context)
							if err != nil {
								return err
							}
							return printJSON(current)
						},
					},
					{
						Name:  "set",
						Usage: "update settings; omitted flags keep their value",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "main-group"},
							&cli.StringFlag{Name: "verified-role"},
							&cli.StringFlag{Name: "log-webhook"},
						},
						Action: func(cCtx *cli.Context) error {
							client := newClient(cCtx)
							current, err := client.Settings(cCtx.Context)
							if err != nil {
								return err
							}
							updated, err := client.UpdateSettings(cCtx.Context, mergeSettings(cCtx, current))
							if err != nil {
								return err
							}
							return printJSON(updated)
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) *adminclient.Client {
	return adminclient.New(
		cCtx.String(flagServer.Name),
		cCtx.String(flagAPIKey.Name),
		cCtx.String(flagActor.Name),
		cCtx.Duration(flagTimeout.Name),
	)
}

func mergeSettings(cCtx *cli.Context, current domain.Settings) domain.Settings {
	if cCtx.IsSet("main-group") {
		current.MainGroupID = cCtx.String("main-group")
	}
	if cCtx.IsSet("verified-role") {
		current.VerifiedRoleID = cCtx.String("verified-role")
	}
	if cCtx.IsSet("log-webhook") {
		current.LogWebhookURL = cCtx.String("log-webhook")
	}
	return current
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

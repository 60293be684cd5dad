package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"
	"github.com/warpdl/warpfetch/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

func Execute(args []string, bArgs BuildArgs) error {
	app := cli.App{
		Name:                  "warpfetch",
		HelpName:              "warpfetch",
		Usage:                 "Scriptable HTTP and FTP transfers.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "warpfetch <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Commands: []cli.Command{
			{
				Name:                   "get",
				Aliases:                []string{"g"},
				Usage:                  "perform one request",
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           common.UsageErrorCallback,
				Action:                 get,
				Flags:                  getFlags,
				UseShortOptionHandling: true,
				Description:            GetDescription,
			},
			{
				Name:                   "batch",
				Aliases:                []string{"b"},
				Usage:                  "run many requests in one session",
				CustomHelpTemplate:     CMD_HELP_TEMPL,
				OnUsageError:           common.UsageErrorCallback,
				Action:                 batch,
				Flags:                  batchFlags,
				UseShortOptionHandling: true,
				Description:            BatchDescription,
			},
			{
				Name:        "creds",
				Usage:       "manage stored passwords",
				Description: CredsDescription,
				Subcommands: []cli.Command{
					{
						Name:         "set",
						Usage:        "store the password of user@host",
						UsageText:    "warpfetch creds set <user@host>",
						OnUsageError: common.UsageErrorCallback,
						Action:       credsSet,
					},
					{
						Name:         "delete",
						Usage:        "forget the password of user@host",
						UsageText:    "warpfetch creds delete <user@host>",
						OnUsageError: common.UsageErrorCallback,
						Action:       credsDelete,
					},
				},
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints installed version of warpfetch",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		Action:                 get,
		Flags:                  getFlags,
		UseShortOptionHandling: true,
		HideHelp:               true,
		HideVersion:            true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}

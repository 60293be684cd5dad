package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/afero"
	"github.com/urfave/cli"
	"github.com/warpdl/warpfetch/cmd/common"
	envcommon "github.com/warpdl/warpfetch/common"
	"github.com/warpdl/warpfetch/pkg/credman"
	"github.com/warpdl/warpfetch/pkg/fetchlib"
	"github.com/warpdl/warpfetch/pkg/logger"
	"github.com/warpdl/warpfetch/pkg/transport"
)

var (
	getSpecVars RequestSpec
	showInfo    bool

	getFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "output, o",
			Usage:       "save the response body to this file",
			Destination: &getSpecVars.Output,
		},
		cli.StringFlag{
			Name:        "kind, k",
			Usage:       "request kind (get, download, post, post-upload, put-upload, delete, head, ftp-list, ftp-download, ftp-upload, any-download)",
			Destination: &getSpecVars.Kind,
		},
		cli.StringSliceFlag{
			Name:  "header, H",
			Usage: "add a request header, as \"Name: value\" (repeatable)",
		},
		cli.StringFlag{
			Name:        "range, r",
			Usage:       "request byte ranges, e.g. 0-499,1000-",
			Destination: &getSpecVars.Range,
		},
		cli.StringFlag{
			Name:        "proxy, x",
			Usage:       "route the request through a proxy (http, https or socks5 URL)",
			Destination: &getSpecVars.Proxy,
		},
		cli.StringFlag{
			Name:        "user, u",
			Usage:       "credentials as user[:password]; without a password the stored one is used",
			Destination: &getSpecVars.User,
		},
		cli.StringFlag{
			Name:        "upload, T",
			Usage:       "upload this file (put-upload, post-upload or ftp-upload)",
			Destination: &getSpecVars.Upload,
		},
		cli.DurationFlag{
			Name:        "connect-timeout",
			Usage:       "maximum time for the connection phase",
			Value:       DEF_CONNECT_TIMEOUT,
			Destination: &getSpecVars.ConnectTimeout,
		},
		cli.DurationFlag{
			Name:        "timeout, m",
			Usage:       "maximum time for the whole transfer",
			Destination: &getSpecVars.Timeout,
		},
		cli.StringFlag{
			Name:        "limit-rate",
			Usage:       "maximum download speed, e.g. 512KB or 2MB",
			Destination: &getSpecVars.MaxRecvSpeed,
		},
		cli.StringFlag{
			Name:        "send-rate",
			Usage:       "maximum upload speed",
			Destination: &getSpecVars.MaxSendSpeed,
		},
		cli.BoolFlag{
			Name:        "insecure",
			Usage:       "skip TLS certificate and host name verification",
			Destination: &getSpecVars.Insecure,
		},
		cli.BoolFlag{
			Name:        "no-redirects",
			Usage:       "do not follow HTTP redirects",
			Destination: &getSpecVars.NoRedirects,
		},
		cli.BoolFlag{
			Name:        "fail, f",
			Usage:       "fail on HTTP 4xx and 5xx responses",
			Destination: &getSpecVars.FailOnError,
		},
		cli.BoolFlag{
			Name:        "verbose",
			Usage:       "log the transfer trace",
			Destination: &getSpecVars.Verbose,
		},
		cli.BoolFlag{
			Name:        "info, i",
			Usage:       "print the transfer summary to stderr",
			Destination: &showInfo,
		},
	}
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
	// newEngine builds the transfer engine of a command.
	newEngine = func(log logger.Logger, fs afero.Fs) transport.Engine {
		return transport.NewNetEngine(&transport.EngineOpts{Logger: log, Fs: fs})
	}
	commandFs afero.Fs = afero.NewOsFs()
)

func newLogger(verbose bool) logger.Logger {
	return logger.NewZerologLogger(stderr, verbose || envcommon.DebugEnabled()).With("cli")
}

// newCredManager returns the password source of --user values. It is nil
// when no configuration directory can be found.
func newCredManager() passwordSource {
	dir, err := envcommon.ConfigDir()
	if err != nil {
		return nil
	}
	return credman.NewManager(dir)
}

var credSource = newCredManager

func get(ctx *cli.Context) error {
	rawURL := ctx.Args().First()
	if rawURL == "" {
		if ctx.Command.Name == "" {
			return common.Help(ctx)
		}
		return common.PrintErrWithCmdHelp(
			ctx,
			errors.New("no url provided"),
		)
	} else if rawURL == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}

	spec := getSpecVars
	spec.URL = strings.TrimSpace(rawURL)
	spec.Headers = ctx.StringSlice("header")

	sctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return runGet(sctx, &spec, showInfo)
}

// runGet sends the request of spec and writes its body.
func runGet(ctx context.Context, spec *RequestSpec, info bool) error {
	log := newLogger(spec.Verbose)
	defer log.Close()

	req, err := newRequest(newEngine(log, commandFs), spec, fetchlib.RequestOpts{Logger: log, Fs: commandFs}, credSource())
	if err != nil {
		return fmt.Errorf("get[new_request]: %w", err)
	}
	body, err := req.Send(ctx)
	if err != nil {
		return fmt.Errorf("get[send]: %w", err)
	}
	if err := writeBody(spec, req, body); err != nil {
		return fmt.Errorf("get[write]: %w", err)
	}
	if info {
		printInfo(stderr, req)
	}
	return nil
}

// writeBody stores the body of a completed request. Download kinds have
// already written their destination.
func writeBody(spec *RequestSpec, req *fetchlib.Request, body []byte) error {
	switch {
	case req.Kind().NeedsDestination():
		return nil
	case spec.Output != "":
		return afero.WriteFile(commandFs, spec.Output, body, 0644)
	default:
		_, err := stdout.Write(body)
		return err
	}
}

func printInfo(w io.Writer, req *fetchlib.Request) {
	fmt.Fprintln(w, common.Header("Transfer Info"))
	common.PrintFields(w,
		"Response", req.ResponseCode(),
		"URL", req.EffectiveURL(),
		"Content Type", req.ContentType(),
		"Downloaded", common.FormatSize(req.DownloadSize()),
		"Uploaded", common.FormatSize(req.UploadSize()),
		"Total Time", req.TotalTime(),
		"Speed", common.FormatSize(int64(req.DownloadSpeed()))+"/s",
		"Remote", fmt.Sprintf("%s:%d", req.PrimaryIP(), req.PrimaryPort()),
	)
}

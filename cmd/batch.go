package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"
	"github.com/warpdl/warpfetch/cmd/common"
	"github.com/warpdl/warpfetch/pkg/fetchlib"
	"github.com/warpdl/warpfetch/pkg/logger"
)

var (
	batchCookies bool
	batchSeed    string
	batchSeedDom string
	batchLogFile string
	noProgress   bool

	batchFlags = []cli.Flag{
		cli.BoolFlag{
			Name:        "cookies, c",
			Usage:       "share cookies between the requests of the batch",
			Destination: &batchCookies,
		},
		cli.StringFlag{
			Name:        "seed-cookies",
			Usage:       "import cookies from a Firefox, Chrome or Netscape cookie file",
			Destination: &batchSeed,
		},
		cli.StringFlag{
			Name:        "seed-domain",
			Usage:       "only import cookies of this domain",
			Destination: &batchSeedDom,
		},
		cli.IntFlag{
			Name:  "max-concurrent, n",
			Usage: "maximum number of requests in flight",
		},
		cli.StringFlag{
			Name:        "log-file",
			Usage:       "also write log lines to this file",
			Destination: &batchLogFile,
		},
		cli.BoolFlag{
			Name:        "no-progress",
			Usage:       "do not draw the progress bar",
			Destination: &noProgress,
		},
	}
)

// BatchError is a failed request of a batch.
type BatchError struct {
	URL    string
	Reason string
}

func NewBatchError(url string, err error) BatchError {
	return BatchError{
		URL:    url,
		Reason: err.Error(),
	}
}

// BatchResult tracks the outcome of the requests of a batch. Session
// callbacks run on the goroutine of Start, the mutex guards readers on
// other goroutines.
type BatchResult struct {
	mu        sync.Mutex
	Succeeded int
	Failed    int
	Total     int
	Errors    []BatchError
	// Skipped lists URL list lines that were not requests.
	Skipped []InvalidLine
}

func NewBatchResult(total int) *BatchResult {
	return &BatchResult{
		Total:  total,
		Errors: make([]BatchError, 0),
	}
}

func (r *BatchResult) AddSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Succeeded++
}

func (r *BatchResult) AddError(url string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed++
	r.Errors = append(r.Errors, NewBatchError(url, err))
}

// IsSuccess returns true if no request failed.
func (r *BatchResult) IsSuccess() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Failed == 0
}

// String returns the styled summary of the batch.
func (r *BatchResult) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sb strings.Builder

	sb.WriteString(common.Header("Batch Summary") + "\n")
	sb.WriteString(common.Field("Total", r.Total) + "\n")
	sb.WriteString(common.Field("Succeeded", common.Success(fmt.Sprint(r.Succeeded))) + "\n")
	failed := fmt.Sprint(r.Failed)
	if r.Failed > 0 {
		failed = common.Failure(failed)
	}
	sb.WriteString(common.Field("Failed", failed) + "\n")

	if len(r.Skipped) > 0 {
		sb.WriteString(common.Field("Skipped", len(r.Skipped)) + "\n")
		for _, s := range r.Skipped {
			sb.WriteString(common.Warning(fmt.Sprintf("  %s line %d: %s (%s)", common.SymbolWarn, s.LineNumber, s.Content, s.Reason)) + "\n")
		}
	}
	if len(r.Errors) > 0 {
		sb.WriteString("\n")
		for _, e := range r.Errors {
			sb.WriteString(common.Failure(fmt.Sprintf("  %s %s", common.SymbolFail, e.URL)))
			sb.WriteString(common.Detail(": "+e.Reason) + "\n")
		}
	}
	return sb.String()
}

func batch(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return common.PrintErrWithCmdHelp(
			ctx,
			errors.New("no batch file provided"),
		)
	} else if path == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}

	cfg, err := LoadBatchConfig(path)
	if err != nil {
		return fmt.Errorf("batch[load]: %w", err)
	}
	if batchCookies {
		cfg.Cookies = true
	}
	if batchSeed != "" {
		cfg.SeedCookies, cfg.SeedDomain = batchSeed, batchSeedDom
	}
	if batchLogFile != "" {
		cfg.LogFile = batchLogFile
	}
	if n := ctx.Int("max-concurrent"); n > 0 {
		cfg.MaxConcurrent = n
	}
	cfg.ApplyEnv()

	sctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var progress io.Writer = stderr
	if noProgress {
		progress = io.Discard
	}
	res, err := RunBatch(sctx, cfg, progress)
	if res != nil {
		fmt.Fprint(stdout, res.String())
	}
	if err != nil {
		return fmt.Errorf("batch[run]: %w", err)
	}
	if !res.IsSuccess() {
		return fmt.Errorf("batch[run]: %d of %d requests failed", res.Failed, res.Total)
	}
	return nil
}

// RunBatch runs the requests of cfg in one session. Requests that cannot
// be built are recorded as failures and the rest still run. The returned
// error is the session error, e.g. fetchlib.ErrNoneSucceeded.
func RunBatch(ctx context.Context, cfg *BatchConfig, progress io.Writer) (*BatchResult, error) {
	log, err := newBatchLogger(cfg)
	if err != nil {
		return nil, err
	}
	defer log.Close()

	var budget *fetchlib.ClockBudget
	if cfg.TimeLimit > 0 {
		budget = fetchlib.NewClockBudget(cfg.TimeLimit)
	}
	sopts := &fetchlib.SessionOpts{
		MaxConcurrent: cfg.MaxConcurrent,
		CookieDir:     cfg.CookieDir,
		Logger:        log,
		Fs:            commandFs,
	}
	ropts := fetchlib.RequestOpts{Logger: log, Fs: commandFs}
	if budget != nil {
		sopts.Budget = budget
	}

	engine := newEngine(log, commandFs)
	session := fetchlib.NewSession(engine, sopts)
	defer session.Finalize()
	session.SetEnableCookies(cfg.Cookies)
	if cfg.SeedCookies != "" {
		n, err := session.SeedCookies(cfg.SeedCookies, cfg.SeedDomain)
		if err != nil {
			return nil, fmt.Errorf("seed cookies: %w", err)
		}
		log.Info("seeded %d cookies from %s", n, cfg.SeedCookies)
	}

	result := NewBatchResult(len(cfg.Requests))
	result.Skipped = cfg.Skipped
	p := mpb.New(mpb.WithOutput(progress), mpb.WithWidth(48))
	bar := common.InitBatchBar(p, "Requests", len(cfg.Requests))

	creds := credSource()
	for i := range cfg.Requests {
		spec := &cfg.Requests[i]
		req, err := newRequest(engine, spec, ropts, creds)
		if err != nil {
			result.AddError(spec.URL, err)
			bar.Increment()
			continue
		}
		session.AddRequest(req, func(ok bool, body []byte, req *fetchlib.Request, _ *fetchlib.Session) {
			defer bar.Increment()
			if !ok {
				result.AddError(spec.URL, req.Err())
				return
			}
			if err := writeBatchBody(spec, req, body); err != nil {
				result.AddError(spec.URL, err)
				return
			}
			result.AddSuccess()
		}, spec.ResetCookies)
	}

	err = session.Start(ctx)
	bar.Abort(false)
	p.Wait()
	return result, err
}

// newBatchLogger returns the console logger, mirrored into cfg.LogFile
// when one is set.
func newBatchLogger(cfg *BatchConfig) (logger.Logger, error) {
	console := newLogger(anyVerbose(cfg))
	if cfg.LogFile == "" {
		return console, nil
	}
	f, err := commandFs.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return logger.NewMultiLogger(console, &fileLogger{
		ZerologLogger: logger.NewZerologLogger(f, true).With("batch"),
		f:             f,
	}), nil
}

// fileLogger closes its file along with the logger.
type fileLogger struct {
	*logger.ZerologLogger
	f afero.File
}

func (l *fileLogger) Close() error {
	return l.f.Close()
}

// writeBatchBody saves the body of a non-download request that names an
// output file.
func writeBatchBody(spec *RequestSpec, req *fetchlib.Request, body []byte) error {
	if req.Kind().NeedsDestination() || spec.Output == "" {
		return nil
	}
	return afero.WriteFile(commandFs, spec.Output, body, 0644)
}

func anyVerbose(cfg *BatchConfig) bool {
	for _, r := range cfg.Requests {
		if r.Verbose {
			return true
		}
	}
	return false
}

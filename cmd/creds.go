package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli"
	"github.com/warpdl/warpfetch/cmd/common"
	envcommon "github.com/warpdl/warpfetch/common"
	"github.com/warpdl/warpfetch/pkg/credman"
)

// credStore is the part of *credman.Manager the creds command uses.
type credStore interface {
	Set(user, host, password string) error
	Delete(user, host string) error
}

var (
	stdin io.Reader = os.Stdin
	// newCredStore opens the credential store of the creds command.
	newCredStore = func() (credStore, error) {
		dir, err := envcommon.ConfigDir()
		if err != nil {
			return nil, err
		}
		return credman.NewManager(dir), nil
	}
)

// splitAccount splits "user@host" at its last @, so user names may hold
// an @ themselves.
func splitAccount(account string) (user, host string, err error) {
	i := strings.LastIndex(account, "@")
	if i <= 0 || i == len(account)-1 {
		return "", "", fmt.Errorf("invalid account %q, want user@host", account)
	}
	return account[:i], account[i+1:], nil
}

func credsSet(ctx *cli.Context) error {
	account := ctx.Args().First()
	if account == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no account provided"))
	}
	user, host, err := splitAccount(account)
	if err != nil {
		return fmt.Errorf("creds[set]: %w", err)
	}
	if f, ok := stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		fmt.Fprintf(stderr, "Password for %s: ", account)
	}
	password, err := readPassword(stdin)
	if err != nil {
		return fmt.Errorf("creds[read]: %w", err)
	}
	store, err := newCredStore()
	if err != nil {
		return fmt.Errorf("creds[open]: %w", err)
	}
	if err := store.Set(user, host, password); err != nil {
		return fmt.Errorf("creds[set]: %w", err)
	}
	fmt.Fprintln(stdout, common.Success(common.SymbolPass+" stored password for "+account))
	return nil
}

func credsDelete(ctx *cli.Context) error {
	account := ctx.Args().First()
	if account == "" {
		return common.PrintErrWithCmdHelp(ctx, errors.New("no account provided"))
	}
	user, host, err := splitAccount(account)
	if err != nil {
		return fmt.Errorf("creds[delete]: %w", err)
	}
	store, err := newCredStore()
	if err != nil {
		return fmt.Errorf("creds[open]: %w", err)
	}
	if err := store.Delete(user, host); err != nil {
		return fmt.Errorf("creds[delete]: %w", err)
	}
	fmt.Fprintln(stdout, common.Success(common.SymbolPass+" removed password for "+account))
	return nil
}

// readPassword reads one line from r. An empty password is refused.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}

// Command edugenctl drives the edugen API from a terminal: it starts a
// generation, follows its event stream, and downloads or saves the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

const usage = `usage: edugenctl <command> [flags]

commands:
  generate     start a generation and follow its events
  download     fetch a generated artifact by token
  save         save an artifact to your account
  mint-token   sign a development access or refresh token

run "edugenctl <command> --help" for command flags
`

type command func(ctx context.Context, args []string, stdout, stderr io.Writer) error

var commands = map[string]command{
	"generate":   runGenerate,
	"download":   runDownload,
	"save":       runSave,
	"mint-token": runMintToken,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "edugenctl: unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err := cmd(ctx, args[1:], stdout, stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "edugenctl %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

package internal

import (
	"errors"
	"io"

	"github.com/urfave/cli/v2"
)

// NewApp builds the tablepush command line. Errors are returned from Run,
// never turned into os.Exit by cli itself.
func NewApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "tablepush",
		Usage:     "publish CSV files as tables on wiki pages",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     GlobalFlags,
		Commands: []*cli.Command{
			&ConfluenceCommand,
			&NotionCommand,
		},
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// Run executes the app and returns the process exit code. Errors that never
// reached a command action are logged here, the actions log their own.
func Run(args []string, stdout, stderr io.Writer) int {
	err := NewApp(stdout, stderr).Run(args)

	var exitCoder cli.ExitCoder
	if err != nil && !errors.As(err, &exitCoder) {
		NewLogger(stderr, false).Error("invalid invocation", "error", err)
	}
	return RunExitCode(err)
}

// RunExitCode returns the exit code for an error returned by App.Run.
// Errors raised before a command ran, such as unknown flags or an unreadable
// config file, count as configuration errors.
func RunExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return exitCoder.ExitCode()
	}
	return ExitConfig
}

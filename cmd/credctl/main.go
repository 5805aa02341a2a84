// credctl is the command line front end for the credential registry.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"credledger/internal/config"
	"credledger/internal/credential"
	"credledger/internal/schemavalidation"
	"credledger/internal/security"
	"credledger/internal/store"
)

// Exit codes.
const (
	exitOK           = 0
	exitError        = 1
	exitInvalidInput = 2
	exitUnauthorized = 3
	exitNotFound     = 4
	exitNotValid     = 5
	exitLocked       = 6
)

// errNotValid is returned when a verification completes with a negative answer.
var errNotValid = errors.New("verification failed")

type options struct {
	configPath string
	caller     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	stop()
	os.Exit(exitCode(err))
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "credctl",
		Short:         "Issue, revoke and verify academic certificates",
		Long:          "credctl manages an authenticated certificate index backed by a Merkle tree.\nEvery issue and revoke publishes a new root commitment.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default: search standard locations)")
	cmd.PersistentFlags().StringVar(&opts.caller, "caller", os.Getenv("CREDLEDGER_CALLER"), "issuer principal performing the operation")

	cmd.AddCommand(
		newIssueCmd(opts),
		newVerifyCmd(opts),
		newRevokeCmd(opts),
		newGetCmd(opts),
		newListCmd(opts),
		newRootCommitCmd(opts),
		newProofCmd(opts),
		newIngestCmd(opts),
		newConfigCmd(opts),
		newDBCmd(opts),
		newKeygenCmd(opts),
	)

	return cmd
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errNotValid):
		return exitNotValid
	case errors.Is(err, credential.ErrUnauthorized):
		return exitUnauthorized
	case errors.Is(err, credential.ErrNotFound):
		return exitNotFound
	case errors.Is(err, security.ErrLocked):
		return exitLocked
	case errors.Is(err, schemavalidation.ErrInvalidRequest),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, credential.ErrInvalidCertificate),
		errors.Is(err, credential.ErrDuplicateID),
		errors.Is(err, store.ErrAlgorithmMismatch):
		return exitInvalidInput
	default:
		return exitError
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "taxosurv",
		Short:         "Survival comparisons between taxon-present and taxon-absent patients",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// accept --input_data as well as --input-data
	rootCmd.SetGlobalNormalizationFunc(underscoreToDash)

	rootCmd.AddCommand(
		newRunCmd(),
		newKMCmd(),
	)
	return rootCmd
}

func underscoreToDash(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

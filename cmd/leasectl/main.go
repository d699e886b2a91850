package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "leasectl",
		Short: "Lease Hub operations tool",
	}

	rootCmd.AddCommand(
		MigrateCmd(),
		SweepCmd(),
		RetryEventsCmd(),
		TokenCmd(),
		EventsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

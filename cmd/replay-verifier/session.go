package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/replayproof/engine/internal/common/config"
	"github.com/replayproof/engine/internal/common/logger"
	"github.com/replayproof/engine/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect stored sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions in the configured store",
	Args:  cobra.ExactArgs(0),
	RunE:  runSessionList,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <sessionId>",
	Short: "Print one stored session as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionImportCmd = &cobra.Command{
	Use:   "import <capture.har>",
	Short: "Convert an HTTP Archive capture into a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionImport,
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <sessionId>",
	Short: "Remove a session from the configured store",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionDelete,
}

var (
	flagSessionConfig  string
	flagSessionDir     string
	flagSessionFormat  string
	flagSessionVerbose bool
	flagSessionID      string
)

func init() {
	for _, c := range []*cobra.Command{sessionListCmd, sessionShowCmd, sessionImportCmd, sessionDeleteCmd} {
		f := c.Flags()
		f.StringVarP(&flagSessionConfig, "config", "c", "", "path to configuration file")
		f.StringVar(&flagSessionDir, "dir", "", "session directory (overrides config)")
		f.BoolVarP(&flagSessionVerbose, "verbose", "v", false, "enable debug logging")
	}
	sessionListCmd.Flags().StringVar(&flagSessionFormat, "format", "text", "output format: json or text")
	sessionImportCmd.Flags().StringVar(&flagSessionID, "id", "", "session id for the imported capture (defaults to the file name)")
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionImportCmd, sessionDeleteCmd)
}

func runSessionList(cmd *cobra.Command, args []string) error {
	log := logger.NewCLILogger(flagSessionVerbose)
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(flagSessionConfig, log)
	if err != nil {
		return err
	}
	if flagSessionDir != "" {
		cfg.Sessions.Dir = flagSessionDir
		cfg.Sessions.Redis = nil
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}

	entries, err := store.List(context.Background())
	if err != nil {
		return err
	}

	if flagSessionFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tINTERACTIONS\tCREATED\tTAGS")
	for _, e := range entries {
		created := ""
		if !e.CreatedAt.IsZero() {
			created = e.CreatedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			e.SessionID, e.Interactions, created, strings.Join(e.Tags, ","))
	}
	return tw.Flush()
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	log := logger.NewCLILogger(flagSessionVerbose)
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(flagSessionConfig, log)
	if err != nil {
		return err
	}
	if flagSessionDir != "" {
		cfg.Sessions.Dir = flagSessionDir
		cfg.Sessions.Redis = nil
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}

	s, err := store.Load(context.Background(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	log := logger.NewCLILogger(flagSessionVerbose)
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(flagSessionConfig, log)
	if err != nil {
		return err
	}
	if flagSessionDir != "" {
		cfg.Sessions.Dir = flagSessionDir
		cfg.Sessions.Redis = nil
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	if err := store.Delete(context.Background(), args[0]); err != nil {
		return err
	}

	fmt.Printf("Deleted session %s\n", args[0])
	return nil
}

func runSessionImport(cmd *cobra.Command, args []string) error {
	log := logger.NewCLILogger(flagSessionVerbose)
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(flagSessionConfig, log)
	if err != nil {
		return err
	}
	if flagSessionDir != "" {
		cfg.Sessions.Dir = flagSessionDir
		cfg.Sessions.Redis = nil
	}

	s, err := session.ImportHAR(args[0], flagSessionID)
	if err != nil {
		return err
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	if err := store.Save(context.Background(), s); err != nil {
		return err
	}

	fmt.Printf("Imported %d interactions into session %s\n", len(s.Interactions), s.SessionID)
	return nil
}

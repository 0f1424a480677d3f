package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/replayproof/engine/internal/common/logger"
	"github.com/replayproof/engine/internal/replay"
	"github.com/replayproof/engine/internal/session"
)

var tagCmd = &cobra.Command{
	Use:   "tag <session.json>",
	Short: "Add or remove tags on a session's interactions",
	Args:  cobra.ExactArgs(1),
	RunE:  runTag,
}

var (
	flagTagAdd           string
	flagTagRemove        string
	flagTagSessionLevel  bool
	flagTagMethods       string
	flagTagRoutes        string
	flagTagMatchTags     string
	flagTagVerboseOutput bool
)

func init() {
	f := tagCmd.Flags()
	f.StringVar(&flagTagAdd, "add", "", "comma-separated tags to add")
	f.StringVar(&flagTagRemove, "remove", "", "comma-separated tags to remove")
	f.BoolVar(&flagTagSessionLevel, "session", false, "tag the session metadata instead of interactions")
	f.StringVar(&flagTagMethods, "filter-methods", "", "only tag interactions with these HTTP methods")
	f.StringVar(&flagTagRoutes, "filter-routes", "", "only tag interactions matching these route patterns")
	f.StringVar(&flagTagMatchTags, "filter-tags", "", "only tag interactions already carrying one of these tags")
	f.BoolVarP(&flagTagVerboseOutput, "verbose", "v", false, "enable debug logging")
}

func runTag(cmd *cobra.Command, args []string) error {
	log := logger.NewCLILogger(flagTagVerboseOutput)
	defer log.Sync() //nolint:errcheck

	filter := &replay.Filter{
		Methods: replay.ParseList(flagTagMethods),
		Routes:  replay.ParseList(flagTagRoutes),
		Tags:    replay.ParseList(flagTagMatchTags),
	}
	change := session.TagChange{
		Add:          replay.ParseList(flagTagAdd),
		Remove:       replay.ParseList(flagTagRemove),
		SessionLevel: flagTagSessionLevel,
	}

	tagger := session.NewTagger(log)
	modified, err := tagger.TagFile(args[0], filter, change)
	if err != nil {
		return err
	}

	if modified == 0 {
		fmt.Println("No interactions matched; session unchanged.")
		return nil
	}
	fmt.Printf("Updated tags on %d target(s) in %s\n", modified, args[0])
	return nil
}

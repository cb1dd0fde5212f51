package cmd

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hardup/hardup/pkg/config"
	"github.com/hardup/hardup/pkg/dedupe"
	"github.com/hardup/hardup/pkg/index"
	"github.com/hardup/hardup/pkg/linker"
	"github.com/hardup/hardup/pkg/logger"
	"github.com/hardup/hardup/pkg/metrics"
	"github.com/hardup/hardup/pkg/paths"
)

// linkFlagKeys maps link flags onto configuration keys.
var linkFlagKeys = map[string]string{
	"no-time":            "ignore_mtime",
	"hash":               "use_checksum",
	"checksum-algorithm": "checksum_algorithm",
	"dry-run":            "simulate_only",
	"walker":             "walker",
	"workers":            "workers",
	"exclude":            "exclude",
	"filter":             "filter",
	"link-rate":          "link_rate",
	"metrics-file":       "metrics_file",
}

func LinkCommand() *cobra.Command {
	var (
		flagStdin bool
		flagNull  bool
	)

	command := &cobra.Command{
		Use:   "link [PATH...]",
		Short: "Replace duplicate files below the given paths with hardlinks",
		Long: `This command walks the given files and directories, all on the file system of the first path,
and replaces every regular file whose owner, group, mode, mtime and content match an earlier
file with a hardlink to that earlier file. Without paths, they are read from stdin.`,
		Example: `  hardup link /srv/media
  hardup link -n -v /srv/media /srv/backup
  find /srv -maxdepth 1 -type d -print0 | hardup link --null`,
	}

	flags := command.Flags()
	flags.BoolP("no-time", "t", false, "Ignore mtime when matching files")
	flags.Bool("hash", false, "Compare checksums before comparing content, faster for many files of the same size")
	flags.String("checksum-algorithm", "adler32", "Checksum used by --hash (adler32, blake3)")
	flags.BoolP("dry-run", "n", false, "Don't change anything, implies -v")
	flags.String("walker", config.WalkerSequential, "Directory walker (sequential, fast)")
	flags.Int("workers", 0, "Directory readers used by the fast walker, 0 picks a default")
	flags.StringSlice("exclude", nil, "Regular expression of paths to skip, matching directories are not entered")
	flags.String("filter", "", "Expression a file must satisfy to be examined, e.g. 'Size > 4096'")
	flags.Int("link-rate", 0, "Maximum hardlink replacements per second, 0 is unlimited")
	flags.String("metrics-file", "", "Write run metrics to this file in the node_exporter textfile format")
	flags.BoolVarP(&flagStdin, "stdin", "s", false, "Read paths from stdin, one per line")
	flags.BoolVarP(&flagNull, "null", "0", false, "Read paths from stdin, separated by null bytes; implies --stdin")

	command.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		useStdin := flagStdin || flagNull
		if len(args) > 0 && useStdin {
			// we could not tell which roots to scan first
			return withCode(ExitUsage, errors.New("--stdin combined with commandline arguments, this is not supported"))
		}

		cfg, err := config.Load(inConfigFolder(FlagConfigFile), changedFlags(cmd.Flags(), linkFlagKeys))
		if err != nil {
			return withCode(ExitConfig, err)
		}

		minLevel := logrus.WarnLevel
		if cfg.SimulateOnly {
			minLevel = logrus.InfoLevel
		}
		if err := initCore(minLevel); err != nil {
			return withCode(ExitConfig, errors.Wrap(err, "failed initialising logger"))
		}

		log := logger.GetLogger("link")

		runner, err := newRunner(cfg)
		if err != nil {
			return withCode(ExitConfig, err)
		}

		var summary dedupe.Summary
		if len(args) > 0 {
			summary, err = runner.Run(ctx, args)
		} else {
			if !useStdin {
				log.Warn("No arguments supplied, assuming --stdin")
			}

			delim := byte('\n')
			if flagNull {
				delim = 0
			}
			summary, err = runner.RunStream(ctx, cmd.InOrStdin(), delim)
		}

		logSummary(log, cfg, summary)

		if cfg.MetricsFile != "" {
			if merr := metrics.WriteTextfile(cfg.MetricsFile); merr != nil {
				log.WithError(merr).Errorf("Failed writing metrics to %q", cfg.MetricsFile)
			}
		}

		if err != nil && linker.IsDataLoss(err) {
			log.WithError(err).Error("Aborted after a failed relink, check the named duplicate")
		}

		return err
	}

	return command
}

func newRunner(cfg *config.Configuration) (*dedupe.Runner, error) {
	hasher, err := cfg.Hasher()
	if err != nil {
		return nil, err
	}

	exclude, err := cfg.ExcludePatterns()
	if err != nil {
		return nil, err
	}

	filterExpr, err := cfg.FilterExpression()
	if err != nil {
		return nil, err
	}

	filter := paths.NewFilter(exclude, filterExpr)

	opts := index.Options{
		IgnoreMtime:  cfg.IgnoreMtime,
		UseChecksum:  cfg.UseChecksum,
		SimulateOnly: cfg.SimulateOnly,
		Hasher:       hasher,
	}
	if !cfg.SimulateOnly {
		opts.Linker = linker.New(linker.WithRateLimit(cfg.LinkRate))
	}

	runOpts := dedupe.Options{Filter: filter}
	switch cfg.Walker {
	case config.WalkerFast:
		runOpts.Source = paths.NewFastWalker(filter, cfg.Workers)
		runOpts.Pipelined = true
	default:
		runOpts.Source = paths.NewWalker(filter)
	}

	return dedupe.New(index.New(opts), runOpts), nil
}

func logSummary(log *logrus.Entry, cfg *config.Configuration, summary dedupe.Summary) {
	s := summary.Stats

	entry := log.WithField("reclaimed_space", humanize.IBytes(s.ReclaimedBytes))
	if cfg.SimulateOnly {
		entry = entry.WithField("dry_run", true)
	}

	entry.Infof("Examined %d files below %d roots in %s: %d kept, %d already linked, %d linked, %d merged (%d comparisons, %d checksum rejections)",
		s.Examined, summary.Roots, summary.Duration.Round(time.Millisecond), s.Kept, s.Known, s.Linked, s.Merged, s.Comparisons, s.ChecksumRejections)
}

// changedFlags returns the values of the flags the user set, keyed by configuration key.
func changedFlags(flags *pflag.FlagSet, keys map[string]string) map[string]interface{} {
	overrides := make(map[string]interface{})

	for name, key := range keys {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}

		switch f.Value.Type() {
		case "bool":
			v, _ := flags.GetBool(name)
			overrides[key] = v
		case "int":
			v, _ := flags.GetInt(name)
			overrides[key] = v
		case "stringSlice":
			v, _ := flags.GetStringSlice(name)
			overrides[key] = v
		default:
			overrides[key] = f.Value.String()
		}
	}

	return overrides
}

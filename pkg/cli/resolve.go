package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platinummonkey/deptree/pkg/cache"
	"github.com/platinummonkey/deptree/pkg/dependencies"
	"github.com/platinummonkey/deptree/pkg/observability"
	"github.com/platinummonkey/deptree/pkg/registry"
	"github.com/platinummonkey/deptree/pkg/validation"
)

func newResolveCommand(out, errOut io.Writer) *Command {
	cmd := &Command{
		Name:        "resolve",
		Description: "Resolve a dependency tree directly against a registry",
		Flags:       flag.NewFlagSet("resolve", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(errOut)
	cmd.Run = func(args []string) error {
		return runResolve(cmd.Flags, args, out, errOut)
	}

	cmd.Flags.String("package", "", "Package name")
	cmd.Flags.String("version", "latest", "Version, range or latest")
	cmd.Flags.String("registry", registry.DefaultBaseURL, "Registry URL")
	cmd.Flags.String("format", formatTree, "Output format (json or tree)")
	cmd.Flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.Flags.Duration("timeout", 2*time.Minute, "Give up after this long")
	cmd.Flags.Int("retries", 5, "Retries per registry request")
	cmd.Flags.Int64("concurrency", 32, "Maximum concurrent registry requests")

	return cmd
}

func runResolve(flags *flag.FlagSet, args []string, out, errOut io.Writer) error {
	if err := flags.Parse(args); err != nil {
		return err
	}

	name := flags.Lookup("package").Value.String()
	version := flags.Lookup("version").Value.String()
	format := flags.Lookup("format").Value.String()
	logLevel := flags.Lookup("log-level").Value.String()
	timeout := flags.Lookup("timeout").Value.(flag.Getter).Get().(time.Duration)

	if name == "" {
		return fmt.Errorf("package is required")
	}
	if err := checkFormat(format); err != nil {
		return err
	}
	ref, err := validation.ValidateRef(name, version)
	if err != nil {
		return err
	}

	logger := setupLogger(logLevel, errOut)
	structured := observability.NewLogger(observability.ParseLogLevel(logLevel), errOut)

	cfg := registry.DefaultConfig()
	cfg.BaseURL = flags.Lookup("registry").Value.String()
	cfg.RetryMax = flags.Lookup("retries").Value.(flag.Getter).Get().(int)
	cfg.MaxConcurrent = flags.Lookup("concurrency").Value.(flag.Getter).Get().(int64)
	client := registry.NewClient(cfg,
		registry.WithLogger(structured),
		registry.WithRetryLogger(retryLogger{logger: logger}),
	)
	resolver := dependencies.NewResolver(client, cache.NewMemoryVersionCache(cache.DefaultTTL),
		dependencies.WithLogger(structured),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Infof("Resolving %s against %s", ref, cfg.BaseURL)
	start := time.Now()
	tree, err := resolver.Resolve(ctx, ref.Name, ref.Version)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", ref, err)
	}
	logger.WithField("packages", tree.Size()).Infof("Resolved %s@%s in %s", tree.Name, tree.Version, time.Since(start).Round(time.Millisecond))

	return render(out, tree, format)
}

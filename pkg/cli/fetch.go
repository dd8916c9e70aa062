package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/platinummonkey/deptree/pkg/api"
	"github.com/platinummonkey/deptree/pkg/httputil"
	"github.com/platinummonkey/deptree/pkg/validation"
)

func newFetchCommand(out, errOut io.Writer) *Command {
	cmd := &Command{
		Name:        "fetch",
		Description: "Fetch a dependency tree from a running deptree service",
		Flags:       flag.NewFlagSet("fetch", flag.ContinueOnError),
	}
	cmd.Flags.SetOutput(errOut)
	cmd.Run = func(args []string) error {
		return runFetch(cmd.Flags, args, out, errOut)
	}

	cmd.Flags.String("package", "", "Package name")
	cmd.Flags.String("version", "latest", "Version, range or latest")
	cmd.Flags.String("server", "http://localhost:3000", "deptree service URL")
	cmd.Flags.String("format", formatTree, "Output format (json or tree)")
	cmd.Flags.String("log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.Flags.Duration("timeout", 2*time.Minute, "Give up after this long")

	return cmd
}

func runFetch(flags *flag.FlagSet, args []string, out, errOut io.Writer) error {
	if err := flags.Parse(args); err != nil {
		return err
	}

	name := flags.Lookup("package").Value.String()
	version := flags.Lookup("version").Value.String()
	server := strings.TrimRight(flags.Lookup("server").Value.String(), "/")
	format := flags.Lookup("format").Value.String()
	timeout := flags.Lookup("timeout").Value.(flag.Getter).Get().(time.Duration)
	logger := setupLogger(flags.Lookup("log-level").Value.String(), errOut)

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

	body, err := json.Marshal(map[string]string{"version": ref.Version})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	target := server + "/package/" + ref.Name
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logger.Debugf("POST %s", target)
	resp, err := cleanhttp.DefaultClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp httputil.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
			return fmt.Errorf("server returned %s", resp.Status)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, errResp.Error)
	}

	var tree api.DependencyTree
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return fmt.Errorf("failed to decode tree: %w", err)
	}
	logger.WithField("packages", tree.Size()).Infof("Fetched %s@%s", tree.Name, tree.Version)

	return render(out, &tree, format)
}

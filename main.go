package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alonweissfeld/download-manager/internal/coordinator"
	"github.com/alonweissfeld/download-manager/internal/mirrors"
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:           "download-manager <url|url-list-file> [max-concurrent-connections]",
	Short:         "Resumable, parallel HTTP downloader",
	Args:          cobra.RangeArgs(1, 2),
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "Download failed.")
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	n := 1
	if len(args) == 2 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil || parsed < 1 {
			return fmt.Errorf("invalid MAX-CONCURRENT-CONNECTIONS %q", args[1])
		}
		n = parsed
	}

	urls, err := mirrors.Resolve(args[0])
	if err != nil {
		return err
	}

	dest, err := destinationPath(urls[0])
	if err != nil {
		return err
	}

	c, err := coordinator.New(urls, dest, n, coordinator.WithLogger(log.WithField("component", "coordinator")))
	if err != nil {
		return err
	}

	if err := c.Run(ctx, os.Stdout); err != nil {
		return err
	}
	return nil
}

// destinationPath derives <cwd>/<basename-after-last-'/'> from the first
// URL, including the leading slash from the URL path.
func destinationPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL %q: %w", rawURL, err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return cwd + "/" + path.Base(u.Path), nil
}

// Command chatctl is a terminal client for the realtime service.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/khushnawaj/scriptSelf-sub001/internal/client"
	"github.com/khushnawaj/scriptSelf-sub001/internal/logger"
)

var version = "dev"

type globals struct {
	url     string
	token   string
	user    string
	retries int
	delay   time.Duration
	verbose bool
}

var g globals

var rootCmd = &cobra.Command{
	Use:           "chatctl",
	Short:         "Send and watch realtime messages from the terminal",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if g.token == "" {
			g.token = os.Getenv("CHATCTL_TOKEN")
		}
		if g.token == "" {
			return fmt.Errorf("--token or CHATCTL_TOKEN is required")
		}
		if g.user == "" {
			return fmt.Errorf("--user is required")
		}
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	f := rootCmd.PersistentFlags()
	f.StringVar(&g.url, "url", "ws://localhost:8080/ws", "socket endpoint")
	f.StringVar(&g.token, "token", "", "bearer token (default $CHATCTL_TOKEN)")
	f.StringVarP(&g.user, "user", "u", "", "your user id, must match the token subject")
	f.IntVar(&g.retries, "retries", 5, "connection attempts before giving up")
	f.DurationVar(&g.delay, "retry-delay", 2*time.Second, "fixed delay between connection attempts")
	f.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(listenCmd, sendCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// connect dials, joins the user's room and returns a session ready to Run.
func connect(ctx context.Context) (*client.Session, *client.Conn, error) {
	level := "warn"
	if g.verbose {
		level = "debug"
	}
	lg, err := logger.New(logger.Config{Development: true, Level: level})
	if err != nil {
		return nil, nil, err
	}
	conn, err := client.Dial(ctx, client.DialConfig{URL: g.url, Token: g.token, Delay: g.delay, MaxAttempts: g.retries}, lg)
	if err != nil {
		return nil, nil, err
	}
	s := client.NewSession(g.user, conn, client.NewTimeline(g.user), lg)
	if err := s.Join(); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return s, conn, nil
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/browser"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Capture and inspect the marketplace login session",
}

var sessionCaptureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Log in through a visible browser and save the session cookies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("session"); err != nil {
			return err
		}

		bc := chromeConfig(cfg.Browser)
		bc.Headless = false
		// Start clean so stale cookies do not mask a failed login.
		bc.SessionFile = ""
		chrome := browser.NewChrome(bc)
		defer chrome.Close() //nolint:errcheck

		out := cmd.ErrOrStderr()
		sess, err := chrome.CaptureSession(ctx, cfg.Browser.LoginURL, func(ctx context.Context) error {
			_, _ = fmt.Fprintln(out, "Log in in the browser window, then press Enter here.")
			return waitForEnter(ctx, cmd.InOrStdin())
		})
		if err != nil {
			return err
		}
		if len(sess.Cookies) == 0 {
			return eris.New("session capture: browser returned no cookies")
		}

		if err := sess.Save(cfg.Browser.SessionFile); err != nil {
			return err
		}
		zap.L().Info("session saved",
			zap.String("file", cfg.Browser.SessionFile),
			zap.Int("cookies", len(sess.Cookies)),
		)
		return nil
	},
}

var sessionCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report cookie count and expiry of the saved session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("session"); err != nil {
			return err
		}

		sess, err := browser.LoadSession(cfg.Browser.SessionFile)
		if err != nil {
			return err
		}
		formatSessionCheck(cmd.OutOrStdout(), sess, time.Now())
		return nil
	},
}

func formatSessionCheck(w io.Writer, sess *browser.Session, now time.Time) {
	_, _ = fmt.Fprintf(w, "Cookies:  %d\n", len(sess.Cookies))
	_, _ = fmt.Fprintf(w, "Live:     %d\n", len(sess.Live(now)))
	if exp, ok := sess.EarliestExpiry(); ok {
		state := "in " + exp.Sub(now).Round(time.Minute).String()
		if !exp.After(now) {
			state = "EXPIRED"
		}
		_, _ = fmt.Fprintf(w, "Expires:  %s (%s)\n", exp.UTC().Format(time.RFC3339), state)
	} else {
		_, _ = fmt.Fprintln(w, "Expires:  session cookies only")
	}
}

// waitForEnter returns once a line is read from in or ctx is done.
func waitForEnter(ctx context.Context, in io.Reader) error {
	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(in).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func init() {
	sessionCmd.AddCommand(sessionCaptureCmd)
	sessionCmd.AddCommand(sessionCheckCmd)
	rootCmd.AddCommand(sessionCmd)
}

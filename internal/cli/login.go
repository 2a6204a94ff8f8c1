package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sadopc/beebar/internal/beeminder"
)

func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		callback string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize beebar with your Beeminder account",
		Long: `Prints the authorization URL. After approving access, paste the URL your
browser was redirected to (or pass it with --callback).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			return runLogin(cmd, a, callback, force)
		},
	}
	cmd.Flags().StringVar(&callback, "callback", "", "redirect URL received after authorizing")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "log in again even if a session exists")
	return cmd
}

func runLogin(cmd *cobra.Command, a *app, callback string, force bool) error {
	out := cmd.OutOrStdout()
	if a.auth.Authenticated() && !force {
		fmt.Fprintf(out, "Already logged in as %s.\n", a.auth.Username())
		return nil
	}

	authURL, result, err := a.auth.Begin()
	if err != nil {
		return fmt.Errorf("start login: %w", err)
	}

	if callback == "" {
		fmt.Fprintf(out, "Open this URL to authorize beebar:\n\n  %s\n\nPaste the redirect URL: ", authURL)
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			a.auth.Cancel()
			return fmt.Errorf("read callback: %w", err)
		}
		callback = strings.TrimSpace(line)
	}

	if err := a.auth.Complete(callback); err != nil {
		return err
	}
	res := <-result
	if res.Err != nil {
		return res.Err
	}

	return whoami(cmd, a)
}

// whoami confirms the stored token against the service.
func whoami(cmd *cobra.Command, a *app) error {
	tok, err := a.token()
	if err != nil {
		return err
	}
	user, err := a.client.FetchUser(cmd.Context(), tok)
	if err != nil {
		if errors.Is(err, beeminder.ErrUnauthorized) {
			a.onUnauthorized(err)
		}
		return fmt.Errorf("verify login: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%d goals, timezone %s).\n", user.Username, len(user.Goals), user.Timezone)
	return nil
}

func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.auth.Logout(); err != nil {
				return err
			}
			a.engine.Reset()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/blobstore"
)

const (
	keyringService = "medtrack"
	keyringUser    = "session"
)

var errNotSignedIn = errors.New("not signed in, run `medtrack login` first")

// saveToken stores the CLI session's access token in the OS keyring.
func saveToken(token string) error {
	if token == "" {
		return errors.New("access token cannot be empty")
	}
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		return fmt.Errorf("store session in keyring: %w", err)
	}
	return nil
}

func loadToken() (string, error) {
	token, err := keyring.Get(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", errNotSignedIn
	}
	if err != nil {
		return "", fmt.Errorf("read session from keyring: %w", err)
	}
	return token, nil
}

// clearToken removes the stored session. It reports whether one existed.
func clearToken() (bool, error) {
	err := keyring.Delete(keyringService, keyringUser)
	if errors.Is(err, keyring.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete session from keyring: %w", err)
	}
	return true, nil
}

// openCLI builds the services for a one-shot command. Logs go to stderr so
// they never mix with command output or the MCP stream.
func openCLI(ctx context.Context) (*app, func(), error) {
	cfg, logger, closeLog, err := loadConfig(os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(ctx, cfg, logger, blobstore.NewInMemory(), cliCacheTTL)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		closeLog()
	}, nil
}

// cliSession resolves the keyring token into a session.
func cliSession(a *app) (*auth.Session, error) {
	token, err := loadToken()
	if err != nil {
		return nil, err
	}
	sess, err := a.identity.Resolve(token)
	if err != nil {
		return nil, fmt.Errorf("stored session is no longer valid, run `medtrack login` again: %w", err)
	}
	return sess, nil
}

func readPassword(in io.Reader) (string, error) {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session",
		Long: `Sign in with email and password. The session token is kept in the OS
keyring and used by report and mcp until logout or expiry.

The password is read from standard input when --password is not given:

  echo "$PASSWORD" | medtrack login --email me@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			signUp, _ := cmd.Flags().GetBool("signup")

			if password == "" {
				var err error
				if password, err = readPassword(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read password: %w", err)
				}
			}

			ctx := cmd.Context()
			a, done, err := openCLI(ctx)
			if err != nil {
				return err
			}
			defer done()

			signIn := a.identity.SignIn
			if signUp {
				signIn = a.identity.SignUp
			}
			sess, err := signIn(ctx, email, password)
			if err != nil {
				return err
			}
			if err := saveToken(sess.AccessToken); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", sess.Email)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("password", "", "Account password (read from stdin when empty)")
	cmd.Flags().Bool("signup", false, "Create the account first")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			existed, err := clearToken()
			if err != nil {
				return err
			}
			if !existed {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, done, err := openCLI(ctx)
			if err != nil {
				return err
			}
			defer done()

			sess, err := cliSession(a)
			if err != nil {
				return err
			}
			user, err := a.identity.CurrentUser(ctx, sess)
			if err != nil {
				return err
			}
			if user == nil {
				return errNotSignedIn
			}
			fmt.Fprint(cmd.OutOrStdout(), describeSession(user.Email, sess))
			return nil
		},
	}
}

func describeSession(email string, sess *auth.Session) string {
	return fmt.Sprintf("%s (%s)\nsession expires %s\n", email, sess.UserID, humanize.Time(sess.ExpiresAt))
}

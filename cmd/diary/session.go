package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/diary"
	"github.com/aretw0/diary/pkg/core"
)

var (
	authName     string
	authEmail    string
	authPassword string
)

// openClient connects to the configured backend with the session kept in
// the user's credentials file.
func openClient(ctx context.Context) *diary.Client {
	path, err := diary.DefaultCredentialsPath()
	if err != nil {
		fatal("Failed to locate credentials", err)
	}
	client, err := diary.New(ctx, diary.NewFileStorage(path),
		diary.WithConfig(cfg),
		diary.WithLogger(slog.Default()),
	)
	if err != nil {
		fatal("Failed to connect to backend", err)
	}
	if cfg.Backend == diary.AdapterMemory {
		slog.Warn("memory backend: accounts and notes are lost when the command exits")
	}
	return client
}

var errNotLoggedIn = errors.New(`not logged in, run "diary login" first`)

// currentUser returns the signed-in user of client.
func currentUser(client *diary.Client) (*core.User, error) {
	user := client.Session.CurrentUser()
	if user == nil {
		return nil, errNotLoggedIn
	}
	return user, nil
}

// requireUser returns the signed-in user or exits.
func requireUser(client *diary.Client) *core.User {
	user, err := currentUser(client)
	if err != nil {
		fatal("Not logged in", err)
	}
	return user
}

// readPassword returns flag, or a line read from in after prompting.
func readPassword(flag string, in io.Reader, prompt io.Writer) (string, error) {
	if flag != "" {
		return flag, nil
	}
	fmt.Fprint(prompt, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// passwordFor reads the password for cmd or exits.
func passwordFor(cmd *cobra.Command) string {
	password, err := readPassword(authPassword, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		fatal("Failed to read password", err)
	}
	return password
}

func login(ctx context.Context, client *diary.Client, email, password string, out io.Writer) error {
	if err := client.Session.Login(ctx, email, password); err != nil {
		return err
	}
	user := client.Session.CurrentUser()
	fmt.Fprintf(out, "Logged in as %s (%s)\n", user.Name(), user.Email)
	return nil
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in with email and password",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client := openClient(ctx)
		defer client.Close()

		if err := login(ctx, client, authEmail, passwordFor(cmd), cmd.OutOrStdout()); err != nil {
			fatal("Login failed", err)
		}
	},
}

func signup(ctx context.Context, client *diary.Client, name, email, password string, out io.Writer) error {
	outcome, err := client.Session.Signup(ctx, name, email, password)
	if err != nil {
		return err
	}
	switch outcome {
	case core.SignupWithSession:
		fmt.Fprintf(out, "Welcome %s, you are logged in.\n", client.Session.CurrentUser().Name())
	case core.SignupAwaitingConfirmation:
		fmt.Fprintln(out, "Confirmation Required")
		fmt.Fprintln(out, "A confirmation link has been sent to your email. Please check your inbox and confirm your account, then run \"diary login\".")
	}
	return nil
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account",
	Long:  `Signup registers a new account with a display name. Depending on the project settings the account must be confirmed by email before logging in.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client := openClient(ctx)
		defer client.Close()

		if err := signup(ctx, client, authName, authEmail, passwordFor(cmd), cmd.OutOrStdout()); err != nil {
			fatal("Signup failed", err)
		}
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and forget the stored session",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client := openClient(ctx)
		defer client.Close()

		if err := client.Session.Logout(ctx); err != nil {
			fatal("Logout failed", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	},
}

// userFetcher is implemented by auth clients that can ask the server who
// the token belongs to.
type userFetcher interface {
	GetUser(ctx context.Context) (*core.User, error)
}

func whoami(ctx context.Context, client *diary.Client, out io.Writer) error {
	user, err := currentUser(client)
	if err != nil {
		return err
	}
	if f, ok := client.Auth.(userFetcher); ok {
		if user, err = f.GetUser(ctx); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "%s <%s>\nid: %s\n", user.Name(), user.Email, user.ID)
	return nil
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client := openClient(ctx)
		defer client.Close()

		if err := whoami(ctx, client, cmd.OutOrStdout()); err != nil {
			fatal("Failed to verify session", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, signupCmd, logoutCmd, whoamiCmd)

	for _, cmd := range []*cobra.Command{loginCmd, signupCmd} {
		cmd.Flags().StringVar(&authEmail, "email", "", "Account email")
		cmd.Flags().StringVar(&authPassword, "password", "", "Account password (prompted when empty)")
		cmd.MarkFlagRequired("email")
	}
	signupCmd.Flags().StringVar(&authName, "name", "", "Display name")
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/leafbox/leafbox-core/internal/auth"
)

func newUserCmd(load configLoader) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long:  `Commands for managing dashboard accounts.`,
	}

	var username, name string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a dashboard account",
		Long: `Create a dashboard account. The password is prompted for without echo
when stdin is a terminal, and read from the first line of stdin otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			if username == "" {
				fmt.Fprint(out, "Enter username: ")
				if username, err = readLine(in); err != nil {
					return fmt.Errorf("failed to read username: %w", err)
				}
			}

			password, err := readPassword(cmd, in, "Enter password: ")
			if err != nil {
				return err
			}
			if isTerminal(cmd.InOrStdin()) {
				confirm, err := readPassword(cmd, in, "Confirm password: ")
				if err != nil {
					return err
				}
				if password != confirm {
					return errors.New("passwords do not match")
				}
			}

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}

			svc := auth.NewService(auth.NewUserRepository(db.DB), cfg.Security.JWT.Secret, cfg.Security.JWT.AccessTokenTTL)
			user, err := svc.Register(cmd.Context(), auth.Registration{
				Username: username,
				Password: password,
				Name:     name,
			})
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			fmt.Fprintf(out, "User created successfully!\n")
			fmt.Fprintf(out, "ID: %s\n", user.ID)
			fmt.Fprintf(out, "Username: %s\n", user.Username)
			fmt.Fprintf(out, "Name: %s\n", user.Name)
			return nil
		},
	}
	createCmd.Flags().StringVar(&username, "username", "", "login name (prompted when empty)")
	createCmd.Flags().StringVar(&name, "name", "", "display name (defaults to the username)")

	userCmd.AddCommand(createCmd)
	return userCmd
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) // #nosec G115 -- fd fits in int
}

// readPassword reads a password without echo from a terminal, or as a
// plain line from any other reader.
func readPassword(cmd *cobra.Command, in *bufio.Reader, prompt string) (string, error) {
	if !isTerminal(cmd.InOrStdin()) {
		pw, err := readLine(in)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return pw, nil
	}

	fmt.Fprint(cmd.OutOrStdout(), prompt)
	f, _ := cmd.InOrStdin().(*os.File) //nolint:errcheck // checked by isTerminal
	fd := int(f.Fd())                  // #nosec G115 -- fd fits in int
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/recipebox/apiserver/internal/db"
	"github.com/recipebox/apiserver/internal/services"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword prompts for a password without echoing it when stdin is a
// terminal.
var readPassword = func(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")

		password, err := readPassword(cmd)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		handle, err := db.Open(cmd.Context(), appConfig.Database)
		if err != nil {
			return err
		}
		defer func() {
			_ = handle.Close(cmd.Context())
		}()

		svc := services.NewUserService(handle.Users, appConfig.Auth.BcryptCost)
		user, err := svc.Register(cmd.Context(), services.Registration{
			Name:     name,
			Email:    email,
			Password: password,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created user %s <%s>\n", user.ID, user.Email)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().String("name", "", "display name")
	userCreateCmd.Flags().String("email", "", "login email")
	_ = userCreateCmd.MarkFlagRequired("name")
	_ = userCreateCmd.MarkFlagRequired("email")
}

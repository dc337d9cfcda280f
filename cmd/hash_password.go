package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash for WEB_ADMIN_PASSWORD_HASH",
	Long:  `Read a password from the first line of standard input and print its bcrypt hash.`,
	Example: `  echo 's3cret' | face-attendance hash-password`,
	RunE:    runHashPassword,
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
	hashPasswordCmd.Flags().Int("cost", bcrypt.DefaultCost, "bcrypt cost")
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("empty password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), mustGetInt(cmd, "cost"))
	if err != nil {
		return err
	}
	fmt.Println(string(hash))
	return nil
}

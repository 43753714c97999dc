package commands

import (
	"database/sql"
	"fmt"
	"io"
	"strings"
	"syscall"

	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"golang.org/x/term"
)

// readPassword reads a secret from the terminal without echo. Tests replace it.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(syscall.Stdin))
}

// MaskDatabaseURL masks sensitive parts of the database URL for display
func MaskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) == 2 {
			return "postgres://***:***@" + parts[1]
		}
	}
	return url
}

// getDatabaseInfo returns database connection information
func getDatabaseInfo(db *sql.DB) string {
	if db == nil {
		return "Not connected"
	}

	var dbName string
	err := db.QueryRow("SELECT current_database()").Scan(&dbName)
	if err != nil {
		return "Connected (unknown database)"
	}

	var host string
	err = db.QueryRow("SELECT inet_server_addr()::text").Scan(&host)
	if err != nil {
		return fmt.Sprintf("Connected to %s", dbName)
	}

	return fmt.Sprintf("Connected to %s on %s", dbName, host)
}

// promptNewPassword asks for a password twice and checks both entries match
func promptNewPassword(out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter new password: ")
	passwordBytes, err := readPassword()
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password: %v", err)
	}
	fmt.Fprintln(out)

	password := string(passwordBytes)
	if password == "" {
		return "", contextutils.ErrorWithContextf("password cannot be empty")
	}

	fmt.Fprint(out, "Confirm new password: ")
	confirmBytes, err := readPassword()
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password confirmation: %v", err)
	}
	fmt.Fprintln(out)

	if password != string(confirmBytes) {
		return "", contextutils.ErrorWithContextf("passwords do not match")
	}
	return password, nil
}

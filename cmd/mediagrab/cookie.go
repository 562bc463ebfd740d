package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mediagrab/pkg/platform"
	"mediagrab/pkg/scraper"
)

// cookieCmd groups credential pool administration
var cookieCmd = &cobra.Command{
	Use:   "cookie",
	Short: "Manage the credential pool",
	Long: `Manage the per-platform credential (cookie) pool.

Cookie payloads are encrypted at rest with a passphrase taken from the
MEDIAGRAB_PASSPHRASE environment variable, the system keychain, or a
generated key file. Listings only ever show masked payloads.`,
}

var cookieAddCmd = &cobra.Command{
	Use:   "add <platform>",
	Short: "Add a credential for a platform",
	Long: `Add a credential for a platform. The cookie value is read from stdin;
on a terminal the input is hidden.

To get a cookie value, log into the platform in a browser, open the
developer tools, and copy the Cookie request header of any API call.`,
	Args: cobra.ExactArgs(1),
	RunE: runCookieAdd,
}

var cookieListCmd = &cobra.Command{
	Use:   "list <platform>",
	Short: "List credentials for a platform, payloads masked",
	Args:  cobra.ExactArgs(1),
	RunE:  runCookieList,
}

var cookieRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runCookieRemove,
}

var cookieResetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Reset a banned or errored credential back to available",
	Args:  cobra.ExactArgs(1),
	RunE:  runCookieReset,
}

var cookieMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Encrypt any plaintext credential records in place",
	Long: `Encrypt any plaintext credential records left by earlier releases.
Running it again is harmless; already-encrypted records are skipped.`,
	RunE: runCookieMigrate,
}

func init() {
	cookieCmd.AddCommand(cookieAddCmd)
	cookieCmd.AddCommand(cookieListCmd)
	cookieCmd.AddCommand(cookieRemoveCmd)
	cookieCmd.AddCommand(cookieResetCmd)
	cookieCmd.AddCommand(cookieMigrateCmd)
}

func parsePlatform(arg string) (platform.Platform, error) {
	p := platform.Platform(strings.ToLower(arg))
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q (supported: %v)", arg, platform.All())
	}
	return p, nil
}

func readCookieValue() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		fmt.Fprint(os.Stderr, "Cookie value (input hidden): ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	// Piped input
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func runCookieAdd(cmd *cobra.Command, args []string) error {
	p, err := parsePlatform(args[0])
	if err != nil {
		return err
	}

	value, err := readCookieValue()
	if err != nil {
		return fmt.Errorf("failed to read cookie value: %w", err)
	}
	if value == "" {
		return fmt.Errorf("cookie value is empty")
	}

	svc, err := scraper.NewFromConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	info, err := svc.Pool().Add(cmd.Context(), p, value)
	if err != nil {
		return err
	}
	fmt.Printf("Added credential %s for %s (%s)\n", info.ID, info.Platform, info.MaskedPayload)
	return nil
}

func runCookieList(cmd *cobra.Command, args []string) error {
	p, err := parsePlatform(args[0])
	if err != nil {
		return err
	}

	svc, err := scraper.NewFromConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	infos := svc.Pool().List(p)
	if len(infos) == 0 {
		fmt.Printf("No credentials stored for %s\n", p)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tUSES\tERRORS\tLAST USED\tPAYLOAD")
	for _, info := range infos {
		lastUsed := "never"
		if !info.LastUsedAt.IsZero() {
			lastUsed = info.LastUsedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			info.ID, info.Status, info.UseCount, info.ErrorCount, lastUsed, info.MaskedPayload)
	}
	return w.Flush()
}

func runCookieRemove(cmd *cobra.Command, args []string) error {
	svc, err := scraper.NewFromConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Pool().Remove(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed credential %s\n", args[0])
	return nil
}

func runCookieReset(cmd *cobra.Command, args []string) error {
	svc, err := scraper.NewFromConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.Pool().Reset(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Reset credential %s to available\n", args[0])
	return nil
}

func runCookieMigrate(cmd *cobra.Command, args []string) error {
	svc, err := scraper.NewFromConfig(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	report := svc.Pool().MigrateLegacy(cmd.Context())
	fmt.Printf("Migrated %d credential(s), %d error(s)\n", report.Migrated, report.Errors)
	return nil
}

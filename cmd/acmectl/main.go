package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/acmeresponder/internal/auth"
	"github.com/jmerrifield20/acmeresponder/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	adminURL   string
	publicURL  string
	adminToken string
	cfgFile    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "acmectl",
	Short: "Control an ACME HTTP-01 responder",
	Long: `acmectl registers, inspects and retires HTTP-01 challenges on a running
responder through its admin API.

It can also compute key authorizations from an ACME account key and mint
admin tokens for responders that have admin.jwt_secret set.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.acmectl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("acmectl")
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if adminURL == "" {
			adminURL = viper.GetString("admin_url")
		}
		if adminURL == "" {
			adminURL = "http://127.0.0.1:8081"
		}
		if publicURL == "" {
			publicURL = viper.GetString("public_url")
		}
		if adminToken == "" {
			adminToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.acmectl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&adminURL, "admin", "", "responder admin API base URL (default http://127.0.0.1:8081)")
	rootCmd.PersistentFlags().StringVar(&publicURL, "public", "", "responder public base URL, used by lookup (default: --admin)")
	rootCmd.PersistentFlags().StringVar(&adminToken, "token", "", "admin bearer token (env ACMECTL_TOKEN)")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(retireCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(keyAuthCmd)
	rootCmd.AddCommand(mintTokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	var opts []client.Option
	if adminToken != "" {
		opts = append(opts, client.WithBearerToken(adminToken))
	}
	public := publicURL
	if public == "" {
		public = adminURL
	}
	opts = append(opts, client.WithPublicBase(public))
	return client.New(adminURL, opts...)
}

// ── register ─────────────────────────────────────────────────────────────────

var (
	registerKeyAuth    string
	registerAccountKey string
	registerTTL        time.Duration
	registerFormat     string
)

var registerCmd = &cobra.Command{
	Use:   "register <domain> <token>",
	Short: "Register an HTTP-01 challenge for a domain",
	Long: `register makes <token> the live challenge for <domain>. Any earlier
challenge for the domain stops being served.

Supply the key authorization directly, or let acmectl derive it from the
ACME account key:

  acmectl register example.com evaGxfADs6pSRb2LAv9IZf17Dt3juxGJ-PCt92wr-oA --key-auth evaGx....nP1qzF
  acmectl register example.com evaGxfADs6pSRb2LAv9IZf17Dt3juxGJ-PCt92wr-oA --account-key account.pem`,
	Args: cobra.ExactArgs(2),
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerKeyAuth, "key-auth", "", "Key authorization to serve")
	registerCmd.Flags().StringVar(&registerAccountKey, "account-key", "", "ACME account private key PEM used to derive the key authorization")
	registerCmd.Flags().DurationVar(&registerTTL, "ttl", 0, "Challenge lifetime (e.g. 10m); 0 uses the responder default")
	registerCmd.Flags().StringVar(&registerFormat, "format", "text", "Output format: text or json")
}

func runRegister(cmd *cobra.Command, args []string) error {
	domain, token := args[0], args[1]

	keyAuth := registerKeyAuth
	switch {
	case keyAuth != "" && registerAccountKey != "":
		return errors.New("--key-auth and --account-key are mutually exclusive")
	case registerAccountKey != "":
		key, err := loadAccountKey(registerAccountKey)
		if err != nil {
			return err
		}
		if keyAuth, err = keyAuthorization(key, token); err != nil {
			return err
		}
	case keyAuth == "":
		return errors.New("one of --key-auth or --account-key is required")
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	ch, err := c.Register(cmd.Context(), client.RegisterRequest{
		Domain:           domain,
		VerificationPath: token,
		KeyAuthorization: keyAuth,
		TTL:              registerTTL,
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", domain, err)
	}

	if registerFormat == "json" {
		return printJSON(ch)
	}
	fmt.Printf("✓ Challenge registered\n\n")
	printChallenge(ch)
	return nil
}

// ── retire ───────────────────────────────────────────────────────────────────

var retireCmd = &cobra.Command{
	Use:   "retire <domain> [domain] ...",
	Short: "Stop serving the challenge for one or more domains",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		for _, domain := range args {
			if err := c.Retire(cmd.Context(), domain); err != nil {
				return fmt.Errorf("retire %s: %w", domain, err)
			}
			fmt.Printf("✓ Retired %s\n", domain)
		}
		return nil
	},
}

// ── get / list ───────────────────────────────────────────────────────────────

var getFormat string

var getCmd = &cobra.Command{
	Use:   "get <domain>",
	Short: "Show the live challenge for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ch, err := c.Get(cmd.Context(), args[0])
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("no live challenge for %s", args[0])
		}
		if err != nil {
			return err
		}
		if getFormat == "json" {
			return printJSON(ch)
		}
		printChallenge(ch)
		return nil
	},
}

var listFormat string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all live challenges",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		challenges, err := c.List(cmd.Context())
		if err != nil {
			return err
		}
		if listFormat == "json" {
			return printJSON(challenges)
		}
		if len(challenges) == 0 {
			fmt.Println("No live challenges.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tTOKEN\tSTATUS\tEXPIRES IN")
		for _, ch := range challenges {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				ch.Domain, ch.VerificationPath, ch.Status,
				time.Until(ch.Deadline).Truncate(time.Second))
		}
		return w.Flush()
	},
}

func init() {
	getCmd.Flags().StringVar(&getFormat, "format", "text", "Output format: text or json")
	listCmd.Flags().StringVar(&listFormat, "format", "text", "Output format: text or json")
}

// ── lookup ───────────────────────────────────────────────────────────────────

var lookupCmd = &cobra.Command{
	Use:   "lookup <token>",
	Short: "Fetch a token the way an ACME validator would",
	Long: `lookup requests /.well-known/acme-challenge/<token> from the responder's
public listener and prints the body. Use --public when the public listener
is not on the admin address.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		body, err := c.Lookup(ctx, args[0])
		if errors.Is(err, client.ErrNotFound) {
			return fmt.Errorf("token %s is not being served", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Println(string(body))
		return nil
	},
}

// ── keyauth ──────────────────────────────────────────────────────────────────

var keyAuthAccountKey string

var keyAuthCmd = &cobra.Command{
	Use:   "keyauth <token>",
	Short: "Compute the key authorization for a token",
	Long: `keyauth prints <token>.<base64url(JWK thumbprint)> for the given ACME
account key, the value a responder must serve for that token.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if keyAuthAccountKey == "" {
			return errors.New("--account-key is required")
		}
		key, err := loadAccountKey(keyAuthAccountKey)
		if err != nil {
			return err
		}
		ka, err := keyAuthorization(key, args[0])
		if err != nil {
			return err
		}
		fmt.Println(ka)
		return nil
	},
}

func init() {
	keyAuthCmd.Flags().StringVar(&keyAuthAccountKey, "account-key", "", "ACME account private key PEM")
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	mintSecret  string
	mintSubject string
	mintTTL     time.Duration
)

var mintTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an admin bearer token",
	Long: `token signs an admin API token with the responder's admin.jwt_secret.

  export ACMECTL_TOKEN=$(acmectl token --secret "$RESPONDER_ADMIN_JWT_SECRET" --subject cert-manager)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := mintSecret
		if secret == "" {
			secret = viper.GetString("jwt_secret")
		}
		issuer, err := auth.NewTokenIssuer(secret, mintTTL)
		if err != nil {
			return err
		}
		tok, err := issuer.Issue(mintSubject)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	mintTokenCmd.Flags().StringVar(&mintSecret, "secret", "", "HMAC secret, at least 32 bytes (env ACMECTL_JWT_SECRET)")
	mintTokenCmd.Flags().StringVar(&mintSubject, "subject", "acmectl", "Token subject")
	mintTokenCmd.Flags().DurationVar(&mintTTL, "ttl", 24*time.Hour, "Token lifetime")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the acmectl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("acmectl", version)
	},
}

func printChallenge(ch *client.Challenge) {
	fmt.Printf("  Domain:   %s\n", ch.Domain)
	fmt.Printf("  Token:    %s\n", ch.VerificationPath)
	fmt.Printf("  Status:   %s\n", ch.Status)
	fmt.Printf("  Deadline: %s\n", ch.Deadline.Format(time.RFC3339))
	fmt.Printf("  ID:       %s\n", ch.ID)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

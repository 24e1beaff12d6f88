package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mukhtiarDev/personal-health-monitor/internal/auth"
	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
	"github.com/mukhtiarDev/personal-health-monitor/internal/store"
)

// operatorAdmin is the store surface used by the operator commands.
type operatorAdmin interface {
	CreateOperator(ctx context.Context, op *model.Operator) (int64, error)
	ListOperators(ctx context.Context) ([]model.Operator, error)
	DeleteOperator(ctx context.Context, name string) (bool, error)
}

// prefixAttempts bounds token regeneration on prefix collisions.
const prefixAttempts = 5

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage operators allowed to approve or reject escalations",
}

var operatorAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create an operator and print its token",
	Long: `Create an operator and print a new bearer token for it.

The token is shown once. Only its bcrypt hash is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOperatorStore(cmd, func(s operatorAdmin) error {
			return addOperator(cmd.Context(), s, args[0], cmd.OutOrStdout())
		})
	},
}

var operatorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List operators",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOperatorStore(cmd, func(s operatorAdmin) error {
			return listOperators(cmd.Context(), s, cmd.OutOrStdout())
		})
	},
}

var operatorRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove an operator and revoke its token",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOperatorStore(cmd, func(s operatorAdmin) error {
			return removeOperator(cmd.Context(), s, args[0], cmd.OutOrStdout())
		})
	},
}

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Print the bcrypt hash for operator_token_hash",
	Long: `Print a bcrypt hash suitable for HEALTHMON_OPERATOR_TOKEN_HASH.

The token is read from the argument or, when omitted, from the first line
of stdin. With --generate a random token is created and printed as well.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		generate, _ := cmd.Flags().GetBool("generate")
		return hashToken(cmd.InOrStdin(), cmd.OutOrStdout(), args, generate)
	},
}

func init() {
	hashTokenCmd.Flags().Bool("generate", false, "generate a random token")
	operatorCmd.AddCommand(operatorAddCmd, operatorListCmd, operatorRemoveCmd)
	rootCmd.AddCommand(operatorCmd, hashTokenCmd)
}

func withOperatorStore(cmd *cobra.Command, fn func(operatorAdmin) error) error {
	cfg, logger, err := loadEnv(false)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	st, err := store.Open(cmd.Context(), cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(st)
}

func addOperator(ctx context.Context, s operatorAdmin, name string, w io.Writer) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("operator name must not be empty")
	}
	for attempt := 0; attempt < prefixAttempts; attempt++ {
		tok, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		_, err = s.CreateOperator(ctx, &model.Operator{
			Name:        name,
			TokenPrefix: tok.Prefix,
			TokenHash:   tok.Hash,
		})
		if errors.Is(err, store.ErrPrefixTaken) {
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Created operator %s.\n\n  %s\n\nStore this token now; it will not be shown again.\n", name, tok.Token)
		return nil
	}
	return fmt.Errorf("could not allocate a unique token prefix after %d attempts", prefixAttempts)
}

func listOperators(ctx context.Context, s operatorAdmin, w io.Writer) error {
	ops, err := s.ListOperators(ctx)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		fmt.Fprintln(w, "No operators found.")
		return nil
	}
	fmt.Fprintf(w, "%-20s %-10s %s\n", "NAME", "PREFIX", "CREATED")
	for _, op := range ops {
		fmt.Fprintf(w, "%-20s %-10s %s\n", op.Name, op.TokenPrefix, op.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}
	return nil
}

func removeOperator(ctx context.Context, s operatorAdmin, name string, w io.Writer) error {
	ok, err := s.DeleteOperator(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("operator %q not found", name)
	}
	fmt.Fprintf(w, "Removed operator %s.\n", name)
	return nil
}

func hashToken(in io.Reader, w io.Writer, args []string, generate bool) error {
	var token string
	switch {
	case generate:
		tok, err := auth.GenerateToken()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "token: %s\nhash:  %s\n", tok.Token, tok.Hash)
		return nil
	case len(args) == 1:
		token = args[0]
	default:
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading token: %w", err)
		}
		token = strings.TrimSpace(line)
	}
	if token == "" {
		return errors.New("empty token")
	}
	hash, err := auth.HashToken(token)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, hash)
	return nil
}

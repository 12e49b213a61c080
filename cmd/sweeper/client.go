package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"solana-sweeper/internal/api"
)

func addClientCommands(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.String("api-url", "http://localhost:5000", "Base URL of a running sweeper serve")
	pf.String("token", "", "Admin token for the command API")
	pf.String("owner", "", "Owner (chat id) the command applies to")
	for key, flag := range map[string]string{
		"API_URL":     "api-url",
		"ADMIN_TOKEN": "token",
		"OWNER":       "owner",
	} {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	addCmd.Flags().StringP("file", "f", "", "TXT file with one private key per line (max 10MB); stdin when empty")

	root.AddCommand(addCmd, resumeCmd, statusCmd, stopCmd, stopAllCmd, clearCmd, welcomeCmd, helpTextCmd)
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add wallets and start monitoring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("file")
		text, err := readKeys(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}
		return withOwner(cmd, func(ctx context.Context, c *api.Client, owner string) (string, error) {
			res, err := c.AddAccounts(ctx, owner, text)
			if err != nil {
				return "", err
			}
			return res.Text, nil
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:     "resume",
	Aliases: []string{"resume_monitoring"},
	Short:   "Resume monitoring of saved wallets",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withOwner(cmd, func(ctx context.Context, c *api.Client, owner string) (string, error) {
			res, err := c.Resume(ctx, owner)
			if err != nil {
				return "", err
			}
			return res.Text, nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wallet status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withOwner(cmd, func(ctx context.Context, c *api.Client, owner string) (string, error) {
			res, err := c.Status(ctx, owner)
			if err != nil {
				return "", err
			}
			return res.Text, nil
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <address or fragment>...",
	Short: "Stop specific wallets by full address, prefix, suffix or fragment",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOwner(cmd, func(ctx context.Context, c *api.Client, owner string) (string, error) {
			res, err := c.StopAccounts(ctx, owner, args)
			if err != nil {
				return "", err
			}
			return res.Text, nil
		})
	},
}

var stopAllCmd = &cobra.Command{
	Use:     "stop-all",
	Aliases: []string{"stop_monitoring"},
	Short:   "Stop monitoring of all wallets",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withOwner(cmd, func(ctx context.Context, c *api.Client, owner string) (string, error) {
			res, err := c.StopAll(ctx, owner)
			if err != nil {
				return "", err
			}
			return res.Text, nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:     "clear",
	Aliases: []string{"clear_wallets"},
	Short:   "Delete all saved wallets",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withOwner(cmd, func(ctx context.Context, c *api.Client, owner string) (string, error) {
			res, err := c.Clear(ctx, owner)
			if err != nil {
				return "", err
			}
			return res.Text, nil
		})
	},
}

var welcomeCmd = &cobra.Command{
	Use:   "start",
	Short: "Show the welcome message and saved wallet count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withOwner(cmd, func(ctx context.Context, c *api.Client, owner string) (string, error) {
			return c.Welcome(ctx, owner)
		})
	},
}

var helpTextCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show the usage guide",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		text, err := client().Help(context.Background())
		if err != nil {
			return replyError(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

func client() *api.Client {
	return api.NewClient(v.GetString("API_URL"), v.GetString("ADMIN_TOKEN"))
}

func withOwner(cmd *cobra.Command, run func(ctx context.Context, c *api.Client, owner string) (string, error)) error {
	owner := strings.TrimSpace(v.GetString("OWNER"))
	if owner == "" {
		return errors.New("--owner is required")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	text, err := run(ctx, client(), owner)
	if err != nil {
		return replyError(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

// replyError surfaces the server's operator text when there is one.
func replyError(err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Text != "" {
		return errors.New(apiErr.Text)
	}
	return err
}

func readKeys(stdin io.Reader, path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(io.LimitReader(stdin, api.MaxUploadSize+1))
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if len(data) > api.MaxUploadSize {
			return "", errors.New(api.FileTooLargeText)
		}
		return string(data), nil
	}

	text, err := api.ReadKeyFile(path)
	switch {
	case errors.Is(err, api.ErrNotTxt):
		return "", errors.New(api.NotTxtText)
	case errors.Is(err, api.ErrFileTooLarge):
		return "", errors.New(api.FileTooLargeText)
	case err != nil:
		return "", err
	}
	return text, nil
}

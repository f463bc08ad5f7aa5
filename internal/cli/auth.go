package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ning0612/treeclean/internal/adapter/gdrive"
	"github.com/Ning0612/treeclean/internal/config"
	"github.com/Ning0612/treeclean/internal/domain"
)

func (a *App) authCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate remote transports",
	}

	gdriveCmd := &cobra.Command{
		Use:   "gdrive <transport>",
		Short: "Run the OAuth2 flow for a Google Drive transport",
		Long: `Prints an authorization URL, reads the code and stores the token at the
transport's token_path (default: user config dir).`,
		Args: func(cmd *cobra.Command, args []string) error {
			return newUsageError(cobra.ExactArgs(1)(cmd, args))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return newUsageError(err)
			}

			transport, err := cfg.GetTransport(args[0])
			if err != nil {
				return newUsageError(err)
			}
			if transport.Type != domain.TransportGDrive {
				return newUsageError(fmt.Errorf("%w: transport %s is not of type gdrive",
					domain.ErrConfigInvalid, transport.Name))
			}

			clientID := transport.Config["client_id"]
			clientSecret := transport.Config["client_secret"]
			if clientID == "" || clientSecret == "" {
				return newUsageError(fmt.Errorf("%w: transport %s requires client_id and client_secret",
					domain.ErrConfigInvalid, transport.Name))
			}

			auth := gdrive.NewAuthenticator(clientID, clientSecret, config.ExpandPath(transport.Config["token_path"]))
			auth.SetPrompt(cmd.InOrStdin(), a.Stdout)
			if _, err := auth.Authenticate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(a.Stdout, "\nAuthentication successful, token stored at %s\n", auth.TokenPath())
			return nil
		},
	}

	cmd.AddCommand(gdriveCmd)
	return cmd
}

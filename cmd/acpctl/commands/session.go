package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect session state",
	}
	cmd.AddCommand(sessionInspectCmd())
	return cmd
}

func sessionInspectCmd() *cobra.Command {
	var (
		keyID   uint32
		nonce   uint64
		keyFile string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a session's TX sequence and replay window bitmap",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			session, err := loadSession(keyFile, keyID, nonce)
			if err != nil {
				return err
			}

			lastAccepted, window := session.ReplayState()
			fmt.Printf("key_id:          %d\n", session.KeyID())
			fmt.Printf("next_tx:         %d\n", session.NextTX())
			fmt.Printf("last_accepted:   %d\n", lastAccepted)
			fmt.Printf("replay_window:   %064b\n", window)
			return nil
		},
	}

	cmd.Flags().Uint32Var(&keyID, "key-id", 0, "session key ID")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "session nonce")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "keystore YAML file")
	cmd.MarkFlagRequired("key-file") //nolint:errcheck // static flag name, error is unreachable

	return cmd
}

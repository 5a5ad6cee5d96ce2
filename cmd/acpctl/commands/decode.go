package commands

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyward-systems/acp"
)

func decodeCmd() *cobra.Command {
	var (
		keyID   uint32
		nonce   uint64
		keyFile string
	)

	cmd := &cobra.Command{
		Use:   "decode HEXBYTES",
		Short: "Decode one ACP frame and print its parsed fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			raw, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("decode hex input: %w", err)
			}

			var session *acp.Session
			if keyFile != "" {
				session, err = loadSession(keyFile, keyID, nonce)
				if err != nil {
					return err
				}
			}

			f, _, err := acp.DecodeAlloc(raw, session)
			if err != nil {
				printDecodeError(err)
				return err
			}

			printFrame(f)
			return nil
		},
	}

	cmd.Flags().Uint32Var(&keyID, "key-id", 0, "session key ID (required to verify an authenticated frame)")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "session nonce")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "keystore YAML file (required to verify an authenticated frame)")

	return cmd
}

// printDecodeError prints the acp.Error's Kind alongside the underlying
// message, so an operator can tell a framing bug from an auth failure
// from a stale replay without reading source.
func printDecodeError(err error) {
	var aerr *acp.Error
	if errors.As(err, &aerr) {
		fmt.Printf("decode failed: kind=%s op=%s error=%v\n", aerr.Kind, aerr.Op, aerr.Err)
		return
	}
	fmt.Printf("decode failed: %v\n", err)
}

func printFrame(f *acp.Frame) {
	fmt.Printf("version:    %d\n", f.Version)
	fmt.Printf("type:       %s\n", f.Type)
	fmt.Printf("flags:      authenticated=%v\n", f.Flags.Authenticated())
	if f.Flags.Authenticated() {
		fmt.Printf("sequence:   %d\n", f.Sequence)
	}
	fmt.Printf("payload:    %q\n", f.Payload)
	fmt.Printf("payload_hex: %x\n", f.Payload)
}

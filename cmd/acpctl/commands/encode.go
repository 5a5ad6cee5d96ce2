package commands

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skyward-systems/acp"
	"github.com/skyward-systems/acp/internal/keystore"
)

// errUnknownFrameType is returned for a --type value outside the three
// defined frame type names.
var errUnknownFrameType = errors.New("unknown frame type")

func encodeCmd() *cobra.Command {
	var (
		typeName string
		auth     bool
		keyID    uint32
		nonce    uint64
		keyFile  string
	)

	cmd := &cobra.Command{
		Use:   "encode PAYLOAD",
		Short: "Build one ACP frame and print it hex-encoded",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			frameType, err := parseFrameType(typeName)
			if err != nil {
				return err
			}

			var flags acp.Flags
			if auth {
				flags |= acp.FlagAuthenticated
			}

			var session *acp.Session
			if auth {
				session, err = loadSession(keyFile, keyID, nonce)
				if err != nil {
					return err
				}
			}

			out, err := acp.EncodeAlloc(frameType, flags, []byte(args[0]), session)
			if err != nil {
				return fmt.Errorf("encode frame: %w", err)
			}

			fmt.Println(hex.EncodeToString(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&typeName, "type", "telemetry", "frame type: telemetry, command, system")
	cmd.Flags().BoolVar(&auth, "auth", false, "set the authenticated flag and sign with --key-id")
	cmd.Flags().Uint32Var(&keyID, "key-id", 0, "session key ID (required with --auth)")
	cmd.Flags().Uint64Var(&nonce, "nonce", 0, "session nonce (required with --auth)")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "keystore YAML file (required with --auth)")

	return cmd
}

// parseFrameType maps a --type flag value to its acp.FrameType.
func parseFrameType(name string) (acp.FrameType, error) {
	switch name {
	case "telemetry":
		return acp.FrameTypeTelemetry, nil
	case "command":
		return acp.FrameTypeCommand, nil
	case "system":
		return acp.FrameTypeSystem, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnknownFrameType, name)
	}
}

// loadSession builds a fresh acp.Session from keyFile for keyID/nonce.
// acpctl has no connection to a running acpd's session state; each
// invocation starts sequence 1 and an empty replay window, matching the
// tool's role as a local encode/decode utility rather than a client of a
// live session (SPEC_FULL.md §4.K).
func loadSession(keyFile string, keyID uint32, nonce uint64) (*acp.Session, error) {
	if keyFile == "" {
		return nil, errors.New("--key-file is required with --auth")
	}

	ks, err := keystore.LoadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("load keystore: %w", err)
	}

	key, err := ks.Get(keyID)
	if err != nil {
		return nil, fmt.Errorf("look up key %d: %w", keyID, err)
	}

	session, err := acp.NewSession(keyID, key[:], nonce)
	if err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}

	return session, nil
}

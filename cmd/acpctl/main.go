// acpctl is the operator CLI for the Autonomous Command Protocol: it
// encodes and decodes frames from the command line and inspects session
// state, exercising the acp core the same way acpd does but for
// one-shot, human-driven debugging (SPEC_FULL.md §4.K).
package main

import "github.com/skyward-systems/acp/cmd/acpctl/commands"

func main() {
	commands.Execute()
}

package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "generate-key":
		return runGenerateKey(args[1:], stdout, stderr)
	case "init-config":
		return runInitConfig(args[1:], stdout, stderr)
	case "pubkey":
		return runPubkey(args[1:], stdout, stderr)
	case "sign":
		return runSign(args[1:], stdout, stderr)
	case "inspect":
		return runInspect(args[1:], stdout, stderr)
	case "recover":
		return runRecover(args[1:], stdout, stderr)
	case "schemas":
		return runSchemas(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return `Usage: eragon-cli <command> [flags]

Commands:
  generate-key [--keystore path]                 create a new server signing key
  init-config --config path --contract addr      write a signerd config with a fresh keystore
  pubkey [key flags]                             print the server public key
  sign [key flags] <kind> field=value...         sign an authorisation (ts defaults to now)
  inspect <kind> <message-hex>                   decode canonical bytes and print the digest
  recover <kind> <message-hex> <signature> <recid>
                                                 recover the signing public key
  schemas                                        print message and call layouts

Key flags:
  --key-file path | --keystore path | --aptos-config path [--profile name]
  Without flags the key is read from ERAGON_SIGNER_KEY.`
}

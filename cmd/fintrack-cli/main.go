// Command fintrack-cli evaluates a TOML file of recurring items offline.
package main

import "os"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import "wallet-guard/cmd/guard-cli/cmd"

func main() {
	cmd.Execute()
}

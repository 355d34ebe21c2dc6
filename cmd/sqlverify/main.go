// Package main is the entry point for the sqlverify binary.
package main

import (
	"os"

	cli "sqlverify/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}

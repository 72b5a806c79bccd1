package main

import "github.com/keurnel/btrace/cmd/cli/cmd"

func main() {
	cmd.Execute()
}

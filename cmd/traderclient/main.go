package main

import "github.com/rustyeddy/traderclient/internal/cli"

func main() {
	cli.Execute()
}

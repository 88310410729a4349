package main

import (
	"stock-sync/internal/cli"
)

func main() {
	cli.Execute()
}

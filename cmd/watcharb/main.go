package main

import "watch-arb-alerts/internal/cli"

func main() {
	cli.Execute()
}

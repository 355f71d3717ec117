package main

import "rsi-cycle-tracker/cli"

func main() {
	cli.Execute()
}

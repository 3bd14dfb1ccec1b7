package main

import "github.com/inaciog/reminders-app/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/squidsoup/slaybot/cmd"

func main() {
	cmd.Execute()
}

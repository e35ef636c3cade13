package main

import "github.com/brogergvhs/tankobon/cmd"

func main() {
	cmd.Execute()
}

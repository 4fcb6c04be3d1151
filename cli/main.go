package main

import "github.com/ponyo877/livebid/cli/cmd"

func main() {
	cmd.Execute()
}

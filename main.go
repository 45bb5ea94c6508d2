package main

import "github.com/mozilla-conduit/review/cmd"

func main() {
	cmd.Execute()
}

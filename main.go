package main

import "github.com/stevemurr/butterfly-api/cmd"

func main() {
	cmd.Execute()
}

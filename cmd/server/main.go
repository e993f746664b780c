package main

import "example.com/chunkcast/cmd/server/cmd"

func main() {
	cmd.Execute()
}

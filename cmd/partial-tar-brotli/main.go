package main

import "github.com/oshokin/partial-tar-brotli/cmd/partial-tar-brotli/cmd"

func main() {
	cmd.Execute()
}

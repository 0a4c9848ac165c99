package main

import "github.com/vietddude/feedrank/internal/cli"

func main() {
	cli.Execute()
}

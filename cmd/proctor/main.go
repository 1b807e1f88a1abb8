package main

import "proctor-service/internal/cli"

func main() {
	cli.Execute()
}

package main

import "bitcoin-collector/internal/cli"

func main() {
	cli.Execute()
}

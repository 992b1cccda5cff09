package main

import "github.com/layerline/layerd/internal/cli"

func main() {
	cli.Execute()
}

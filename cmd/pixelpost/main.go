package main

import (
	"github.com/pixelpost/pixelpost/internal/cli"
	"github.com/pixelpost/pixelpost/internal/common/logging"
)

func init() {
	logging.Init()
}

func main() {
	cli.Execute()
}

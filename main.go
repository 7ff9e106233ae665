package main

import (
	"os"

	"github.com/hbomb79/galleria/internal/cli"
	"github.com/hbomb79/galleria/pkg/logger"
)

var log = logger.Get("Main")

func main() {
	if err := cli.Execute(); err != nil {
		log.Emit(logger.FATAL, "%v\n", err)
		os.Exit(1)
	}
}

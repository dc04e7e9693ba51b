package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/rivalapexmediation/migration-engine/internal/cli"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	cli.Execute()
}

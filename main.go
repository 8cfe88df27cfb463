package main

import (
	"os"

	"github.com/harrisonrobin/tasksync/pkg/cli"
)

var version = "dev"

func main() {
	os.Exit(cli.Execute(version))
}

package main

import (
	"errors"
	"fmt"

	"github.com/trezcool/mahudhurio/core"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf *core.Config
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  createdb - create the database if it does not exist")
	fmt.Println("  migratedb [COMMAND] - run migrations; COMMAND is a goose command (default: up)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "createdb":
		return cli.createDB()
	case "migratedb":
		command := "up"
		var rest []string
		if len(args) > 2 {
			command = args[2]
			rest = args[3:]
		}
		return cli.migrate(command, rest...)
	default:
		cli.printUsage()
		return errHelp
	}
}

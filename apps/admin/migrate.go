package main

import (
	"github.com/trezcool/goose"

	"github.com/trezcool/mahudhurio/fs"
	"github.com/trezcool/mahudhurio/storage/database"
)

var gooseRunFunc = goose.RunFS // mockable

func (cli *commandLine) createDB() error {
	return database.CreateIfNotExist(cli.conf)
}

func (cli *commandLine) migrate(command string, args ...string) error {
	db, err := database.Open(cli.conf)
	if err != nil {
		return err
	}
	defer db.Close()

	return gooseRunFunc(command, db.DB, appfs.FS, "migrations", args...)
}

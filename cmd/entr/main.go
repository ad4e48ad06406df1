package main

import (
	"github.com/vault-cli/entr/internal/cli"
	"github.com/vault-cli/entr/internal/util"
)

func main() {
	if err := cli.Execute(); err != nil {
		util.HandleError(err)
	}
}

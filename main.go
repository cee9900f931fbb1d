package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/shaharia-lab/bookwell/cmd"
	"github.com/shaharia-lab/bookwell/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.NewRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"os"

	"meetcap/internal/output"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		output.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/therealutkarshpriyadarshi/logscope/internal/apperr"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if apperr.KindOf(err) == apperr.Unknown {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, apperr.Format(err, ""))
		}
		os.Exit(1)
	}
}

// Command spbctl — операторская утилита: запросы к HTTP API хоста и просмотр трафика Sparkplug B.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

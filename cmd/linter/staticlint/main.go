// Command staticlint запускает анализатор spblint: go run ./cmd/linter/staticlint ./...
package main

import (
	"github.com/RoGogDBD/sparkplug-b/cmd/linter"
	"golang.org/x/tools/go/analysis/singlechecker"
)

func main() {
	singlechecker.Main(linter.Analyzer)
}

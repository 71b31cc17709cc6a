// Package version хранит сведения о сборке, заданные через -ldflags "-X".
package version

import (
	"fmt"
	"io"
)

var (
	// buildVersion — версия сборки приложения.
	buildVersion string
	// buildDate — дата сборки приложения.
	buildDate string
	// buildCommit — хеш коммита сборки.
	buildCommit string
)

// Info — сведения о сборке.
type Info struct {
	Version string `json:"version"`
	Date    string `json:"date"`
	Commit  string `json:"commit"`
}

// Get возвращает сведения о сборке; незаданные поля равны "N/A".
func Get() Info {
	return Info{
		Version: orNA(buildVersion),
		Date:    orNA(buildDate),
		Commit:  orNA(buildCommit),
	}
}

// String возвращает версию одной строкой.
func (i Info) String() string {
	return fmt.Sprintf("%s (%s, %s)", i.Version, i.Commit, i.Date)
}

// PrintBuildInfo выводит информацию о сборке приложения в w.
func PrintBuildInfo(w io.Writer) {
	i := Get()
	fmt.Fprintf(w, "Build version: %s\n", i.Version)
	fmt.Fprintf(w, "Build date: %s\n", i.Date)
	fmt.Fprintf(w, "Build commit: %s\n", i.Commit)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

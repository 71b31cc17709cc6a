package pkg

import (
	"log"
	"os"
)

const namespace = "spBv1.0"

func Panics() {
	panic("boom") // want "use of builtin panic is discouraged"
}

func Fatal() {
	log.Fatal("outside main") // want "call to log.Fatal or os.Exit outside main.main"
}

func Exit() {
	os.Exit(1) // want "call to log.Fatal or os.Exit outside main.main"
}

func DataTopic(group, node string) string {
	return "spBv1.0/" + group + "/NDATA/" + node // want "sparkplug topic literal; build topics with the topic package"
}

var stateTopic = `spBv1.0/STATE/scada` // want "sparkplug topic literal; build topics with the topic package"

func Allowed() string {
	log.Println("ok")
	return namespace
}

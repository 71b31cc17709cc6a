package config

import (
	"flag"
	"strconv"
	"strings"
)

// NetAddress представляет сетевой адрес с хостом и портом.
//
// Реализует интерфейсы flag.Value и AddrSetter.
type NetAddress struct {
	Host string // Имя хоста
	Port int    // Порт
}

// String возвращает строковое представление сетевого адреса в формате host:port.
func (a NetAddress) String() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}

// Set разбирает строку вида host:port. Если порт не указан, используется 8080.
func (a *NetAddress) Set(s string) error {
	hp := strings.Split(s, ":")
	a.Host = hp[0]
	if len(hp) == 2 {
		port, err := strconv.Atoi(hp[1])
		if err != nil {
			return err
		}
		a.Port = port
	} else {
		a.Port = 8080
	}
	return nil
}

// AddressFlag регистрирует в fs флаг сетевого адреса со значением по умолчанию def.
func AddressFlag(fs *flag.FlagSet, name string, def NetAddress, usage string) *NetAddress {
	addr := &def
	fs.Var(addr, name, usage)
	return addr
}

// explicitFlags возвращает имена флагов, явно заданных в командной строке.
func explicitFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

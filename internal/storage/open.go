package storage

import (
	"fmt"
	"strings"

	logx "reviewbadge/pkg/logx"
)

type opener func(cfg Config, log logx.Logger) (Store, error)

var drivers = map[string]opener{
	"":        openSQLite,
	"sqlite":  openSQLite,
	"sqlite3": openSQLite,
	"file":    openFile,
}

// Open returns the store for cfg.Driver ("sqlite" by default, or "file").
func Open(cfg Config, log logx.Logger) (Store, error) {
	open, ok := drivers[strings.ToLower(strings.TrimSpace(cfg.Driver))]
	if !ok {
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return open(cfg, log.With(logx.String("driver", cfg.Driver)))
}

package app

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const preparedBinaryParam = "disable_prepared_binary_result"

// DBTarget is a Postgres connection string resolved for the job ledger.
type DBTarget struct {
	// DSN is handed to the driver and to the migrator.
	DSN string
	// Name feeds the db.name trace attribute.
	Name string
	// Host is host:port without credentials, for logs.
	Host string
}

// ResolveDBTarget accepts the URL form (postgres:// or postgresql://) and
// the key/value form of a Postgres connection string. With
// disablePreparedBinary set, the pooler-safe flag is added unless the
// string already carries one.
func ResolveDBTarget(raw string, disablePreparedBinary bool) (DBTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DBTarget{}, fmt.Errorf("empty database url")
	}
	if strings.Contains(raw, "://") {
		return resolveURLTarget(raw, disablePreparedBinary)
	}
	return resolveKeyValueTarget(raw, disablePreparedBinary), nil
}

func resolveURLTarget(raw string, disablePreparedBinary bool) (DBTarget, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		// url.Error would echo the password back.
		return DBTarget{}, fmt.Errorf("parse database url: malformed")
	}
	switch parsed.Scheme {
	case "postgres", "postgresql":
	default:
		return DBTarget{}, fmt.Errorf("unsupported database scheme %q", parsed.Scheme)
	}

	if disablePreparedBinary {
		query := parsed.Query()
		if query.Get(preparedBinaryParam) == "" {
			query.Set(preparedBinaryParam, "yes")
			parsed.RawQuery = query.Encode()
		}
	}

	return DBTarget{
		DSN:  parsed.String(),
		Name: strings.TrimSpace(strings.TrimPrefix(parsed.Path, "/")),
		Host: parsed.Host,
	}, nil
}

func resolveKeyValueTarget(raw string, disablePreparedBinary bool) DBTarget {
	target := DBTarget{DSN: raw}
	host, port := "", ""
	hasFlag := false
	for _, token := range strings.Fields(raw) {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "dbname":
			target.Name = value
		case "host":
			host = value
		case "port":
			port = value
		case preparedBinaryParam:
			hasFlag = true
		}
	}

	if host != "" {
		target.Host = host
		if port != "" {
			target.Host = net.JoinHostPort(host, port)
		}
	}
	if disablePreparedBinary && !hasFlag {
		target.DSN = raw + " " + preparedBinaryParam + "=yes"
	}
	return target
}

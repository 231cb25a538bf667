package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server":
		return serverTemplate, nil
	case "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `name = "msgstream"
addr = ":9400"
admin_addr = "127.0.0.1:9401"
header_width = 4
max_message_size = 16777216
read_timeout = "2m"
write_timeout = "15s"
max_conns = 0
cors_origins = ["http://localhost:3000"]
admin_token = ""
`

const clientTemplate = `addr = "127.0.0.1:9400"
header_width = 4
max_message_size = 16777216
dial_timeout = "5s"
read_timeout = "15s"
write_timeout = "15s"
max_connect_attempts = 5

[backoff]
initial_delay = "250ms"
multiplier = 2.0
max_delay = "5s"
jitter = true
`

package server

import (
	"strconv"
	"strings"
)

// parseGamePath splits /api/games/{id}[/{section}[/{arg}]] into its parts.
func parseGamePath(path string) (uint, string, string, bool) {
	const prefix = "/api/games/"
	if !strings.HasPrefix(path, prefix) {
		return 0, "", "", false
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 3 {
		return 0, "", "", false
	}
	gameID, ok := parseID(parts[0])
	if !ok {
		return 0, "", "", false
	}
	section := ""
	arg := ""
	if len(parts) >= 2 {
		section = parts[1]
	}
	if len(parts) == 3 {
		arg = parts[2]
	}
	return gameID, section, arg, true
}

func parseWebsocketPath(path string) (uint, bool) {
	const prefix = "/ws/games/"
	if !strings.HasPrefix(path, prefix) {
		return 0, false
	}
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" || strings.Contains(rest, "/") {
		return 0, false
	}
	return parseID(rest)
}

func parseID(raw string) (uint, bool) {
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || value == 0 {
		return 0, false
	}
	return uint(value), true
}

// Package roster models the set of players present in a world and the diff between samples.
package roster

import "strings"

// Snapshot is one sample of a world's roster.
type Snapshot struct {
	Players []string
	Current int
	Max     int
}

// ParsePlayers splits the comma separated player list reported by the peer.
// An empty list yields an empty, non-nil slice.
func ParsePlayers(list string) []string {
	players := make([]string, 0)
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			players = append(players, p)
		}
	}
	return players
}

// Diff returns the players present in current but not in previous (joined) and
// those present in previous but not in current (left). Each result keeps the order
// of first occurrence in its source slice.
func Diff(previous, current []string) (joined, left []string) {
	return subtract(current, previous), subtract(previous, current)
}

// subtract returns a − b without duplicates, ordered by first occurrence in a.
func subtract(a, b []string) []string {
	exclude := make(map[string]struct{}, len(b))
	for _, s := range b {
		exclude[s] = struct{}{}
	}

	var out []string
	for _, s := range a {
		if _, ok := exclude[s]; ok {
			continue
		}
		exclude[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

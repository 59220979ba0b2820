// Package playerdata parses the text reports the peer returns for tag and scoreboard queries.
package playerdata

import (
	"regexp"
	"strconv"
)

var (
	// Tags are highlighted as §a<tag>§r in the tag list report.
	tagPattern = regexp.MustCompile(`§a(.*?)§r`)
	// Each scoreboard line reads "...: <value> (<objective>)".
	scorePattern = regexp.MustCompile(`: (-?\d+) \((.*?)\)`)
)

// ParseTags extracts tag names from a tag list status message.
// A message without any tag yields an empty slice.
func ParseTags(statusMessage string) []string {
	matches := tagPattern.FindAllStringSubmatch(statusMessage, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, m[1])
	}
	return tags
}

// ParseScores extracts objective values from a scoreboard list status message.
// A message without any score yields an empty map.
func ParseScores(statusMessage string) map[string]int {
	scores := make(map[string]int)
	for _, m := range scorePattern.FindAllStringSubmatch(statusMessage, -1) {
		value, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		scores[m[2]] = value
	}
	return scores
}

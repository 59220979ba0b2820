package command

import (
	"encoding/json"
	"regexp"
)

var selectorPattern = regexp.MustCompile(`@s|@p|@a|@r|@e`)

// DefaultTarget addresses every player in the world.
const DefaultTarget = "@a"

// Tellraw broadcasts a raw-text message. The peer never replies to it.
type Tellraw struct {
	Target  string
	Message string
	// Translate, when set, appends a translated component with Args substituted.
	Translate string
	Args      []string
}

type rawText struct {
	RawText []any `json:"rawtext"`
}

type textComponent struct {
	Text string `json:"text"`
}

type translateComponent struct {
	Translate string   `json:"translate"`
	With      []string `json:"with"`
}

func (c *Tellraw) CommandName() string {
	return "Tellraw"
}

func (c *Tellraw) CommandLine() string {
	target := c.Target
	if target == "" {
		target = DefaultTarget
	}
	if !selectorPattern.MatchString(target) {
		target = quote(target)
	}

	payload := rawText{RawText: []any{textComponent{Text: c.Message}}}
	if c.Translate != "" {
		with := c.Args
		if with == nil {
			with = []string{}
		}
		payload.RawText = append(payload.RawText, translateComponent{Translate: c.Translate, With: with})
	}

	// Marshalling a struct of strings cannot fail.
	data, _ := json.Marshal(payload)
	return "tellraw " + target + " " + string(data)
}

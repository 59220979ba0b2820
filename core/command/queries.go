package command

// ListPlayers asks for the current roster and player counts.
type ListPlayers struct{}

func (c *ListPlayers) CommandName() string {
	return "ListPlayers"
}

func (c *ListPlayers) CommandLine() string {
	return "list"
}

// ListTags asks for the tags attached to a player.
type ListTags struct {
	Player string
}

func (c *ListTags) CommandName() string {
	return "ListTags"
}

func (c *ListTags) CommandLine() string {
	return "tag " + quote(c.Player) + " list"
}

// ListScores asks for every scoreboard objective value of a player.
type ListScores struct {
	Player string
}

func (c *ListScores) CommandName() string {
	return "ListScores"
}

func (c *ListScores) CommandLine() string {
	return "scoreboard players list " + quote(c.Player)
}

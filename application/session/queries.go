package session

import (
	"context"

	"worldlink/core/command"
	"worldlink/domain/playerdata"
	"worldlink/domain/roster"
)

// SendMessage broadcasts a chat message to target. Selectors (@a, @p, ...) pass
// through, anything else is treated as a player name.
func (s *Session) SendMessage(ctx context.Context, target, message string) error {
	_, err := s.Run(ctx, &command.Tellraw{Target: target, Message: message})
	return err
}

// SendTranslated broadcasts a message followed by a translated component.
func (s *Session) SendTranslated(ctx context.Context, target, message, key string, args ...string) error {
	_, err := s.Run(ctx, &command.Tellraw{
		Target:    target,
		Message:   message,
		Translate: key,
		Args:      args,
	})
	return err
}

// ListPlayers returns the world's current roster and player counts.
// A reply flagged as an error is returned as *protocol.RemoteError.
func (s *Session) ListPlayers(ctx context.Context) (*roster.Snapshot, error) {
	resp, err := s.Run(ctx, &command.ListPlayers{})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	current, _ := resp.Body.Int("currentPlayerCount")
	maxCount, _ := resp.Body.Int("maxPlayerCount")
	return &roster.Snapshot{
		Players: roster.ParsePlayers(resp.Body.String("players")),
		Current: current,
		Max:     maxCount,
	}, nil
}

// GetTags returns the tags attached to player. A successful reply without tags
// yields an empty slice.
func (s *Session) GetTags(ctx context.Context, player string) ([]string, error) {
	resp, err := s.Run(ctx, &command.ListTags{Player: player})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return playerdata.ParseTags(resp.StatusMessage()), nil
}

// HasTag reports whether player carries tag.
func (s *Session) HasTag(ctx context.Context, player, tag string) (bool, error) {
	tags, err := s.GetTags(ctx, player)
	if err != nil {
		return false, err
	}
	for _, t := range tags {
		if t == tag {
			return true, nil
		}
	}
	return false, nil
}

// GetScores returns every scoreboard objective value of player.
func (s *Session) GetScores(ctx context.Context, player string) (map[string]int, error) {
	resp, err := s.Run(ctx, &command.ListScores{Player: player})
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return playerdata.ParseScores(resp.StatusMessage()), nil
}

// GetScore returns one objective value of player; ok is false when the player has
// no score for objective.
func (s *Session) GetScore(ctx context.Context, player, objective string) (score int, ok bool, err error) {
	scores, err := s.GetScores(ctx, player)
	if err != nil {
		return 0, false, err
	}
	score, ok = scores[objective]
	return score, ok, nil
}

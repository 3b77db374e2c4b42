// models/game.go
package models

import (
	"fmt"

	"github.com/gosimple/slug"
)

// GameType is the closed set of playable arcade games. Adding a game means
// adding a constant here plus a case in every exhaustive switch below — these
// are the compile-time-checked boundaries the price lookup and session
// creation rely on.
type GameType string

const (
	GameSnake         GameType = "snake"
	GameTetris        GameType = "tetris"
	GamePong          GameType = "pong"
	GameBreakout      GameType = "breakout"
	GameSpaceInvaders GameType = "space-invaders"
)

// AllGameTypes returns every supported game, in catalog order.
func AllGameTypes() []GameType {
	return []GameType{GameSnake, GameTetris, GamePong, GameBreakout, GameSpaceInvaders}
}

// DisplayName returns the human-readable name shown in the catalog.
func (g GameType) DisplayName() string {
	switch g {
	case GameSnake:
		return "Snake"
	case GameTetris:
		return "Tetris"
	case GamePong:
		return "Pong"
	case GameBreakout:
		return "Breakout"
	case GameSpaceInvaders:
		return "Space Invaders"
	default:
		return string(g)
	}
}

// Slug is the URL path segment for the game (e.g. "space-invaders").
func (g GameType) Slug() string {
	return slug.Make(g.DisplayName())
}

// Valid reports whether g is one of the supported games.
func (g GameType) Valid() bool {
	switch g {
	case GameSnake, GameTetris, GamePong, GameBreakout, GameSpaceInvaders:
		return true
	}
	return false
}

// ParseGameType resolves a route parameter (raw value or slug) to a GameType.
func ParseGameType(s string) (GameType, error) {
	for _, g := range AllGameTypes() {
		if s == string(g) || slug.Make(s) == g.Slug() {
			return g, nil
		}
	}
	return "", fmt.Errorf("unsupported game type: %q", s)
}

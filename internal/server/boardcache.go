package server

import (
	"sync"

	"obralog/internal/board"
	"obralog/pkg/types"
)

// boardCache keeps one in-memory board per signed-in user. Pages reconcile
// it with the database list and mutations apply their confirmed record to
// it. A user's board is dropped on logout; sessions that simply expire keep
// theirs until the process restarts.
type boardCache struct {
	mu     sync.Mutex
	boards map[string]*board.Board
}

func newBoardCache() *boardCache {
	return &boardCache{boards: make(map[string]*board.Board)}
}

func (c *boardCache) boardFor(userID string) *board.Board {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.boards[userID]
	if !ok {
		b = board.New(nil)
		c.boards[userID] = b
	}
	return b
}

// sync replaces the user's board content with the confirmed list and
// returns the board.
func (c *boardCache) sync(userID string, confirmed []*types.Problem) *board.Board {
	b := c.boardFor(userID)
	b.Reconcile(confirmed)
	return b
}

func (c *boardCache) drop(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.boards, userID)
}

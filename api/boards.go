package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"gopanel/domain"
)

// ListBoards fetches every board the user owns or is a member of, newest
// first.
func (c *Client) ListBoards(ctx context.Context) ([]domain.Board, error) {
	var boards []domain.Board
	if err := c.do(ctx, http.MethodGet, "/boards", nil, nil, &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

// CreateBoard persists a new board and returns it with the server-assigned
// id and invite code.
func (c *Client) CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error) {
	if b.Title == "" {
		return domain.Board{}, errors.New("board title is required")
	}
	if !domain.ValidTemplate(b.Type) {
		return domain.Board{}, fmt.Errorf("unknown board template %q", b.Type)
	}
	var created domain.Board
	if err := c.do(ctx, http.MethodPost, "/boards", nil, b, &created); err != nil {
		return domain.Board{}, err
	}
	return created, nil
}

// DeleteBoard removes a board and everything on it.
func (c *Client) DeleteBoard(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("board id is required")
	}
	q := url.Values{"id": {id}}
	return c.do(ctx, http.MethodDelete, "/boards", q, nil, nil)
}

// JoinBoard adds the current user to the board matching the invite code and
// returns the joined board.
func (c *Client) JoinBoard(ctx context.Context, inviteCode string) (domain.Board, error) {
	if inviteCode == "" {
		return domain.Board{}, errors.New("invite code is required")
	}
	body := struct {
		InviteCode string `json:"invite_code"`
	}{InviteCode: inviteCode}
	var joined domain.Board
	if err := c.do(ctx, http.MethodPost, "/boards/join", nil, body, &joined); err != nil {
		return domain.Board{}, err
	}
	return joined, nil
}

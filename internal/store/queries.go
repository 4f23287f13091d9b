package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// RecentMatches returns the latest finished matches, newest first, with
// their participants.
func (s *Store) RecentMatches(ctx context.Context, limit int) ([]MatchRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, winner_id, winner_name, steps, finished_at
		FROM matches ORDER BY finished_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query matches")
	}
	defer rows.Close()

	var result []MatchRow
	for rows.Next() {
		var m MatchRow
		var winner, steps int64
		var finished string
		if err := rows.Scan(&m.ID, &winner, &m.WinnerName, &steps, &finished); err != nil {
			return nil, errors.Wrap(err, "scan match")
		}
		m.WinnerID, m.Steps = uint64(winner), uint64(steps)
		m.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		players, err := s.matchPlayers(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Players = players
	}
	return result, nil
}

func (s *Store) matchPlayers(ctx context.Context, matchID string) ([]MatchPlayerRow, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT player_id, name, kills, deaths, winner
		FROM match_players WHERE match_id = ? ORDER BY player_id
	`, matchID)
	if err != nil {
		return nil, errors.Wrap(err, "query match players")
	}
	defer rows.Close()

	var result []MatchPlayerRow
	for rows.Next() {
		var p MatchPlayerRow
		var id int64
		var winner int
		if err := rows.Scan(&id, &p.Name, &p.Kills, &p.Deaths, &winner); err != nil {
			return nil, errors.Wrap(err, "scan match player")
		}
		p.PlayerID, p.Winner = uint64(id), winner != 0
		result = append(result, p)
	}
	return result, rows.Err()
}

// EventCounts returns how many events of each type a match produced.
func (s *Store) EventCounts(ctx context.Context, matchID string) (map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT event_type, COUNT(*) FROM events
		WHERE match_id = ?
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, matchID)
	if err != nil {
		return nil, errors.Wrap(err, "query event counts")
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			return nil, errors.Wrap(err, "scan event count")
		}
		result[evtType] = count
	}
	return result, rows.Err()
}

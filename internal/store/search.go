package store

import "database/sql"

// SearchConversations returns conversations matching query on title (LIKE)
// or message content (FTS5 MATCH), optionally narrowed by filters, most
// recently updated first. Title-only hits carry an empty snippet.
func (s *Store) SearchConversations(query string, filters SearchFilters, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 25
	}

	sqlQuery := `
		SELECT c.id, c.title, c.topic_id, c.status, c.created_at, c.updated_at, c.snip FROM (
			SELECT c.id, c.title, c.topic_id, c.status, c.created_at, c.updated_at,
			       snippet(messages_fts, 0, '[', ']', '...', 8) AS snip
			FROM messages_fts
			JOIN messages m ON m.rowid = messages_fts.rowid
			JOIN conversations c ON c.id = m.conversation_id
			WHERE messages_fts MATCH ?
			UNION
			SELECT id, title, topic_id, status, created_at, updated_at, '' FROM conversations WHERE title LIKE ?
		) c WHERE 1=1`
	args := []any{query, "%" + query + "%"}

	if filters.TopicID != nil {
		sqlQuery += " AND c.topic_id = ?"
		args = append(args, *filters.TopicID)
	}
	if filters.Status != nil {
		sqlQuery += " AND c.status = ?"
		args = append(args, string(*filters.Status))
	}
	if filters.DateFrom != nil {
		sqlQuery += " AND c.updated_at >= ?"
		args = append(args, filters.DateFrom.Unix())
	}
	if filters.DateTo != nil {
		sqlQuery += " AND c.updated_at <= ?"
		args = append(args, filters.DateTo.Unix())
	}
	sqlQuery += " ORDER BY c.updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var c Conversation
		var topicID sql.NullString
		var status string
		var createdAt, updatedAt int64
		var snippet string
		if err := rows.Scan(&c.ID, &c.Title, &topicID, &status, &createdAt, &updatedAt, &snippet); err != nil {
			return nil, err
		}
		if topicID.Valid {
			v := topicID.String
			c.TopicID = &v
		}
		c.Status = Status(status)
		c.CreatedAt = unixToTime(createdAt)
		c.UpdatedAt = unixToTime(updatedAt)
		hits = append(hits, SearchHit{Conversation: c, Snippet: snippet})
	}
	return hits, rows.Err()
}

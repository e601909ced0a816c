package store

import (
	"database/sql"
	"fmt"
	"time"
)

const exportVersion = "1.0"

// ExportToJSON builds an export document for the given conversations (or,
// when convIDs is empty, every conversation matching topicID). Topic ids
// are resolved to their name; a nil or unknown topic omits the field.
func (s *Store) ExportToJSON(convIDs []string, topicID *string) (ExportDocument, error) {
	var conversations []Conversation
	if len(convIDs) > 0 {
		for _, id := range convIDs {
			c, err := s.getConversation(id)
			if err != nil {
				return ExportDocument{}, err
			}
			conversations = append(conversations, c)
		}
	} else {
		all, err := s.ListConversations(ListFilters{TopicID: topicID}, 1_000_000, 0)
		if err != nil {
			return ExportDocument{}, err
		}
		conversations = all
	}

	doc := ExportDocument{
		Version:    exportVersion,
		ExportDate: time.Now().UTC().Format(time.RFC3339),
	}

	modelSeen := map[string]bool{}
	for _, c := range conversations {
		messages, err := s.GetMessages(c.ID, 1_000_000, 0)
		if err != nil {
			return ExportDocument{}, err
		}

		topicName := ""
		if c.TopicID != nil {
			name, err := s.topicName(*c.TopicID)
			if err == nil {
				topicName = name
			}
		}

		exportConv := ExportConversation{
			ID: c.ID, Title: c.Title, Topic: topicName,
			CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
		}
		for _, m := range messages {
			model := ""
			if m.ModelRef != nil {
				model = *m.ModelRef
				modelSeen[model] = true
			}
			exportConv.Messages = append(exportConv.Messages, ExportMessage{
				Role: m.Role, Content: m.Content, Model: model, Timestamp: m.Timestamp,
			})
			doc.Metadata.MessageCount++
			if m.Role == RoleUser {
				doc.Metadata.UserMessages++
			} else if m.Role == RoleAssistant {
				doc.Metadata.AssistantMessages++
			}
		}
		doc.Conversations = append(doc.Conversations, exportConv)
	}

	for model := range modelSeen {
		doc.Metadata.ModelsUsed = append(doc.Metadata.ModelsUsed, model)
	}

	return doc, nil
}

// ImportFromJSON materializes every conversation in doc, creating topics
// as needed (reusing an existing topic by name on conflict) and returns
// the newly created conversation ids. Import accepts any document whose
// major version matches exportVersion's.
func (s *Store) ImportFromJSON(doc ExportDocument) ([]string, error) {
	if err := checkImportVersion(doc.Version); err != nil {
		return nil, err
	}

	var newIDs []string
	for _, ec := range doc.Conversations {
		var topicID *string
		if ec.Topic != "" {
			id, err := s.EnsureTopic(ec.Topic, nil)
			if err != nil {
				return newIDs, fmt.Errorf("store: import: ensure topic %q: %w", ec.Topic, err)
			}
			topicID = &id
		}

		convID, err := s.CreateConversation(ec.Title, topicID)
		if err != nil {
			return newIDs, fmt.Errorf("store: import: create conversation %q: %w", ec.ID, err)
		}
		newIDs = append(newIDs, convID)

		for _, m := range ec.Messages {
			var modelRef *string
			if m.Model != "" {
				model := m.Model
				modelRef = &model
			}
			if m.Role == RoleAssistant && modelRef == nil {
				// An assistant message without a model cannot satisfy the
				// store's invariant; attribute it to an unknown model
				// rather than silently dropping history on import.
				unknown := "unknown"
				modelRef = &unknown
			}
			if _, err := s.AppendMessage(convID, m.Role, m.Content, modelRef); err != nil {
				return newIDs, fmt.Errorf("store: import: append message: %w", err)
			}
		}
	}
	return newIDs, nil
}

func checkImportVersion(version string) error {
	if version == "" {
		return fmt.Errorf("store: import document missing version")
	}
	major := version
	for i, r := range version {
		if r == '.' {
			major = version[:i]
			break
		}
	}
	if major != "1" {
		return fmt.Errorf("store: import document major version %q is not supported", major)
	}
	return nil
}

// GetConversation fetches a single conversation's metadata.
func (s *Store) GetConversation(id string) (Conversation, error) {
	return s.getConversation(id)
}

func (s *Store) getConversation(id string) (Conversation, error) {
	row := s.db.QueryRow(`SELECT id, title, topic_id, status, created_at, updated_at FROM conversations WHERE id = ?`, id)
	var c Conversation
	var topicID sql.NullString
	var status string
	var createdAt, updatedAt int64
	if err := row.Scan(&c.ID, &c.Title, &topicID, &status, &createdAt, &updatedAt); err != nil {
		return Conversation{}, fmt.Errorf("store: conversation %q not found: %w", id, err)
	}
	if topicID.Valid {
		v := topicID.String
		c.TopicID = &v
	}
	c.Status = Status(status)
	c.CreatedAt = unixToTime(createdAt)
	c.UpdatedAt = unixToTime(updatedAt)
	return c, nil
}

func (s *Store) topicName(id string) (string, error) {
	var name string
	err := s.db.QueryRow(`SELECT name FROM topics WHERE id = ?`, id).Scan(&name)
	return name, err
}

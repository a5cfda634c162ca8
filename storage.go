package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Store persists conversations as one JSON file per conversation under a
// data directory. The directory is injected so tests can point it anywhere.
// Read-modify-write updates are serialized so a concurrent title update
// can't clobber a message append.
type Store struct {
	mu      sync.Mutex
	dataDir string
}

// NewStore creates a store rooted at dataDir.
func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

func (s *Store) ensureDataDir() error {
	return os.MkdirAll(s.dataDir, 0755)
}

func (s *Store) conversationPath(conversationID string) string {
	return filepath.Join(s.dataDir, conversationID+".json")
}

// CreateConversation creates a new empty conversation with the given ID and
// the default title, and saves it to disk.
func (s *Store) CreateConversation(conversationID string) (*Conversation, error) {
	if err := s.ensureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	conversation := &Conversation{
		ID:        conversationID,
		CreatedAt: time.Now().UTC(),
		Title:     DefaultConversationTitle,
		Messages:  []Message{},
	}

	if err := s.SaveConversation(conversation); err != nil {
		return nil, err
	}

	return conversation, nil
}

// GetConversation loads a conversation by ID. Returns nil without error if
// the conversation doesn't exist.
func (s *Store) GetConversation(conversationID string) (*Conversation, error) {
	path := s.conversationPath(conversationID)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation file: %w", err)
	}

	var conversation Conversation
	if err := json.Unmarshal(data, &conversation); err != nil {
		return nil, fmt.Errorf("failed to parse conversation JSON: %w", err)
	}

	return &conversation, nil
}

// SaveConversation writes a conversation to disk as formatted JSON.
func (s *Store) SaveConversation(conversation *Conversation) error {
	if err := s.ensureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(conversation, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	path := s.conversationPath(conversation.ID)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write conversation file: %w", err)
	}

	return nil
}

// AllConversations loads every stored conversation, silently skipping
// unreadable or invalid files.
func (s *Store) AllConversations() ([]Conversation, error) {
	if err := s.ensureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	conversations := make([]Conversation, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dataDir, entry.Name()))
		if err != nil {
			continue
		}

		var conv Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			continue
		}

		conversations = append(conversations, conv)
	}

	return conversations, nil
}

// ListConversations lists conversation metadata sorted by creation time,
// newest first. Archived conversations are filtered out unless requested.
func (s *Store) ListConversations(includeArchived bool) ([]ConversationMetadata, error) {
	all, err := s.AllConversations()
	if err != nil {
		return nil, err
	}

	if !includeArchived {
		all = lo.Filter(all, func(conv Conversation, _ int) bool {
			return !conv.Archived
		})
	}

	metadata := lo.Map(all, func(conv Conversation, _ int) ConversationMetadata {
		return ConversationMetadata{
			ID:           conv.ID,
			CreatedAt:    conv.CreatedAt,
			Title:        conv.Title,
			MessageCount: len(conv.Messages),
			Archived:     conv.Archived,
		}
	})

	sort.Slice(metadata, func(i, j int) bool {
		return metadata[i].CreatedAt.After(metadata[j].CreatedAt)
	})

	return metadata, nil
}

// History returns the prior turns of a conversation as chat messages: the
// user's texts and the assistant's final syntheses, in order. This is the
// context the council seeds multi-turn deliberations with.
func (s *Store) History(conversationID string) ([]ChatMessage, error) {
	conversation, err := s.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}

	history := lo.FilterMap(conversation.Messages, func(m Message, _ int) (ChatMessage, bool) {
		switch {
		case m.Role == "user" && m.Content != "":
			return ChatMessage{Role: "user", Content: m.Content}, true
		case m.Role == "assistant" && m.Stage3 != nil && m.Stage3.Response != "":
			return ChatMessage{Role: "assistant", Content: m.Stage3.Response}, true
		default:
			return ChatMessage{}, false
		}
	})

	return history, nil
}

// AddUserMessage appends a user message to a conversation and saves it.
func (s *Store) AddUserMessage(conversationID string, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, err := s.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	conversation.Messages = append(conversation.Messages, Message{
		Role:    "user",
		Content: content,
	})

	return s.SaveConversation(conversation)
}

// AddAssistantMessage appends the complete council results as one assistant
// turn. The ephemeral metadata is deliberately not part of this write; it is
// regenerated from the stage1/stage2 data whenever needed.
func (s *Store) AddAssistantMessage(conversationID string, stage1 []Stage1Response, stage2 []Stage2Ranking, stage3 Stage3Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, err := s.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	conversation.Messages = append(conversation.Messages, Message{
		Role:   "assistant",
		Stage1: stage1,
		Stage2: stage2,
		Stage3: &stage3,
	})

	return s.SaveConversation(conversation)
}

// UpdateConversationTitle updates the title of a conversation.
func (s *Store) UpdateConversationTitle(conversationID string, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, err := s.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	conversation.Title = title

	return s.SaveConversation(conversation)
}

// ArchiveConversation sets or clears a conversation's archived flag.
// Archived conversations are hidden from listings and excluded from the
// historical leaderboard, but remain on disk.
func (s *Store) ArchiveConversation(conversationID string, archived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversation, err := s.GetConversation(conversationID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return fmt.Errorf("conversation %s not found", conversationID)
	}

	conversation.Archived = archived

	return s.SaveConversation(conversation)
}

// DeleteConversation permanently removes a conversation from disk.
// Deleting a conversation that doesn't exist is not an error.
func (s *Store) DeleteConversation(conversationID string) error {
	path := s.conversationPath(conversationID)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete conversation file: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"chatdesk/internal/models"
	"chatdesk/internal/security"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS read_markers (
	conversation_id TEXT PRIMARY KEY,
	last_read_message_id TEXT NOT NULL,
	read_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS banner_snapshots (
	conversation_id TEXT PRIMARY KEY,
	unread_count INTEGER NOT NULL DEFAULT 0,
	has_replied INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Store persists per-conversation console state in a local SQLite file.
type Store struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Store, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	// Validate database path to prevent directory traversal
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := NewEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Store{db: db, encryptor: enc}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReadMarker upserts the newest-read position for a conversation.
func (s *Store) SaveReadMarker(ctx context.Context, marker *models.ReadMarker) error {
	encryptedConvID, err := s.encryptor.EncryptForLookupIfEnabled(marker.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to encrypt conversation ID: %w", err)
	}

	encryptedMsgID, err := s.encryptor.EncryptIfEnabled(marker.LastReadMessageID)
	if err != nil {
		return fmt.Errorf("failed to encrypt message ID: %w", err)
	}

	query := `
		INSERT INTO read_markers (conversation_id, last_read_message_id, read_at, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(conversation_id) DO UPDATE SET
			last_read_message_id = excluded.last_read_message_id,
			read_at = excluded.read_at,
			updated_at = CURRENT_TIMESTAMP
	`

	return retryableDBOperation(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, encryptedConvID, encryptedMsgID, marker.ReadAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to save read marker: %w", err)
		}
		return nil
	}, "save read marker")
}

// GetReadMarker returns the stored read position, or nil when none exists.
func (s *Store) GetReadMarker(ctx context.Context, conversationID string) (*models.ReadMarker, error) {
	encryptedConvID, err := s.encryptor.EncryptForLookupIfEnabled(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt conversation ID: %w", err)
	}

	query := `
		SELECT last_read_message_id, read_at, updated_at
		FROM read_markers
		WHERE conversation_id = ?
	`

	var encryptedMsgID string
	marker := &models.ReadMarker{ConversationID: conversationID}

	err = s.db.QueryRowContext(ctx, query, encryptedConvID).Scan(
		&encryptedMsgID,
		&marker.ReadAt,
		&marker.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get read marker: %w", err)
	}

	marker.LastReadMessageID, err = s.encryptor.DecryptIfEnabled(encryptedMsgID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt message ID: %w", err)
	}

	return marker, nil
}

// SaveBannerSnapshot upserts the divider counter state for a conversation.
func (s *Store) SaveBannerSnapshot(ctx context.Context, conversationID string, state models.BannerState) error {
	encryptedConvID, err := s.encryptor.EncryptForLookupIfEnabled(conversationID)
	if err != nil {
		return fmt.Errorf("failed to encrypt conversation ID: %w", err)
	}

	query := `
		INSERT INTO banner_snapshots (conversation_id, unread_count, has_replied, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(conversation_id) DO UPDATE SET
			unread_count = excluded.unread_count,
			has_replied = excluded.has_replied,
			updated_at = CURRENT_TIMESTAMP
	`

	return retryableDBOperation(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, encryptedConvID, state.UnreadCount, state.HasReplied)
		if err != nil {
			return fmt.Errorf("failed to save banner snapshot: %w", err)
		}
		return nil
	}, "save banner snapshot")
}

// GetBannerSnapshot returns the stored divider state, or nil when none exists.
func (s *Store) GetBannerSnapshot(ctx context.Context, conversationID string) (*models.BannerSnapshot, error) {
	encryptedConvID, err := s.encryptor.EncryptForLookupIfEnabled(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt conversation ID: %w", err)
	}

	query := `
		SELECT unread_count, has_replied, updated_at
		FROM banner_snapshots
		WHERE conversation_id = ?
	`

	snapshot := &models.BannerSnapshot{ConversationID: conversationID}

	err = s.db.QueryRowContext(ctx, query, encryptedConvID).Scan(
		&snapshot.UnreadCount,
		&snapshot.HasReplied,
		&snapshot.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get banner snapshot: %w", err)
	}

	return snapshot, nil
}

// DeleteConversationState removes all persisted state for a conversation.
// Used when a conversation is purged from the console.
func (s *Store) DeleteConversationState(ctx context.Context, conversationID string) error {
	encryptedConvID, err := s.encryptor.EncryptForLookupIfEnabled(conversationID)
	if err != nil {
		return fmt.Errorf("failed to encrypt conversation ID: %w", err)
	}

	return retryableDBOperation(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM read_markers WHERE conversation_id = ?`, encryptedConvID); err != nil {
			return fmt.Errorf("failed to delete read marker: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM banner_snapshots WHERE conversation_id = ?`, encryptedConvID); err != nil {
			return fmt.Errorf("failed to delete banner snapshot: %w", err)
		}
		return nil
	}, "delete conversation state")
}

// CleanupStaleSnapshots removes banner snapshots older than the retention window.
func (s *Store) CleanupStaleSnapshots(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC()

	var affected int64
	err := retryableDBOperation(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM banner_snapshots WHERE updated_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup snapshots: %w", err)
		}
		affected, _ = res.RowsAffected()
		return nil
	}, "cleanup stale snapshots")

	return affected, err
}

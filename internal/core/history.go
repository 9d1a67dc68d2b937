package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/issuerdesk/internal/schema"
)

// HistoryEntry records one processed upload.
type HistoryEntry struct {
	ID         string            `json:"id"`
	UploadID   string            `json:"upload_id"`
	FileName   string            `json:"file_name"`
	RecordType schema.RecordType `json:"record_type"`
	Principal  string            `json:"principal"`
	Processed  int               `json:"processed"`
	Failed     int               `json:"failed"`
	UploadedAt time.Time         `json:"uploaded_at"`
}

// DefaultHistoryLimit caps History when no limit is given.
const DefaultHistoryLimit = 50

func (s *Service) recordHistory(ctx context.Context, u *Upload, res ProcessResult) error {
	unlock, err := s.store.Lock(ctx)
	if err != nil {
		return storeError("lock", err)
	}
	defer unlock()

	entries, err := s.loadHistory(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, HistoryEntry{
		ID:         uuid.NewString(),
		UploadID:   u.ID,
		FileName:   u.FileName,
		RecordType: u.RecordType,
		Principal:  u.Principal.Username,
		Processed:  res.Processed,
		Failed:     len(res.Errors),
		UploadedAt: s.now(),
	})
	if err := s.store.Save(ctx, uploadsDoc, entries); err != nil {
		return storeError("save upload history", err)
	}
	return nil
}

// History returns up to limit entries, newest first. A non-empty principal
// keeps only that principal's uploads.
func (s *Service) History(ctx context.Context, principal string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	entries, err := s.loadHistory(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]HistoryEntry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		if principal != "" && entries[i].Principal != principal {
			continue
		}
		out = append(out, entries[i])
	}
	return out, nil
}

func (s *Service) loadHistory(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := s.loadDoc(ctx, uploadsDoc, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

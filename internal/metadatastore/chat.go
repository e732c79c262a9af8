package metadatastore

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/domainerr"
	"github.com/graphbrain/kgqa/internal/pkg/dbctx"
)

const chatCounterName = "chat_id"

type ChatSessionRepo interface {
	Create(dbc dbctx.Context, s domain.ChatSession) error
	Get(dbc dbctx.Context, sessionID string) (domain.ChatSession, error)
	ListByBrain(dbc dbctx.Context, brainID string) ([]domain.ChatSession, error)
	Delete(dbc dbctx.Context, sessionID string) error
}

type chatSessionRepo struct {
	db *gorm.DB
}

func NewChatSessionRepo(db *gorm.DB) ChatSessionRepo { return &chatSessionRepo{db: db} }

func (r *chatSessionRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *chatSessionRepo) Create(dbc dbctx.Context, s domain.ChatSession) error {
	row := ChatSessionRow{SessionID: s.SessionID, Name: s.Name, BrainID: s.BrainID, CreatedAt: s.CreatedAt}
	if err := r.tx(dbc).WithContext(dbc.Ctx).Create(&row).Error; err != nil {
		return domainerr.MetadataStore("create_chat_session failed", err)
	}
	return nil
}

func (r *chatSessionRepo) Get(dbc dbctx.Context, sessionID string) (domain.ChatSession, error) {
	var row ChatSessionRow
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("session_id = ?", sessionID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return domain.ChatSession{}, domainerr.ResourceNotFound("chat session not found: " + sessionID)
	}
	if err != nil {
		return domain.ChatSession{}, domainerr.MetadataStore("get_chat_session failed", err)
	}
	return domain.ChatSession{SessionID: row.SessionID, Name: row.Name, BrainID: row.BrainID, CreatedAt: row.CreatedAt}, nil
}

func (r *chatSessionRepo) ListByBrain(dbc dbctx.Context, brainID string) ([]domain.ChatSession, error) {
	var rows []ChatSessionRow
	if err := r.tx(dbc).WithContext(dbc.Ctx).Where("brain_id = ?", brainID).Find(&rows).Error; err != nil {
		return nil, domainerr.MetadataStore("list_chat_sessions failed", err)
	}
	out := make([]domain.ChatSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.ChatSession{SessionID: row.SessionID, Name: row.Name, BrainID: row.BrainID, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

func (r *chatSessionRepo) Delete(dbc dbctx.Context, sessionID string) error {
	if err := r.tx(dbc).WithContext(dbc.Ctx).Where("session_id = ?", sessionID).Delete(&ChatSessionRow{}).Error; err != nil {
		return domainerr.MetadataStore("delete_chat_session failed", err)
	}
	return nil
}

type ChatRepo interface {
	// Save mints a chat_id and persists the message in one transaction.
	Save(dbc dbctx.Context, msg domain.ChatMessage) (domain.ChatMessage, error)
	ListBySession(dbc dbctx.Context, sessionID string) ([]domain.ChatMessage, error)
	Get(dbc dbctx.Context, chatID int64) (domain.ChatMessage, error)
}

type chatRepo struct {
	db *gorm.DB
}

func NewChatRepo(db *gorm.DB) ChatRepo { return &chatRepo{db: db} }

func (r *chatRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *chatRepo) Save(dbc dbctx.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	nodesJSON, err := json.Marshal(msg.ReferencedNodes)
	if err != nil {
		return domain.ChatMessage{}, domainerr.MetadataStore("encode referenced_nodes failed", err)
	}

	var saved domain.ChatMessage
	run := func(tx *gorm.DB) error {
		id, err := nextIDInTx(dbc, tx, chatCounterName)
		if err != nil {
			return domainerr.MetadataStore("mint chat_id failed", err)
		}
		msg.ChatID = id
		row := ChatRow{
			ChatID:              msg.ChatID,
			SessionID:           msg.SessionID,
			IsAI:                msg.IsAI,
			Message:             msg.Message,
			ReferencedNodesJSON: string(nodesJSON),
			Accuracy:            msg.Accuracy,
		}
		if err := tx.WithContext(dbc.Ctx).Create(&row).Error; err != nil {
			return domainerr.MetadataStore("save_chat failed", err)
		}
		saved = msg
		return nil
	}

	if dbc.Tx != nil {
		if err := run(dbc.Tx); err != nil {
			return domain.ChatMessage{}, err
		}
		return saved, nil
	}
	if err := r.db.Transaction(run); err != nil {
		return domain.ChatMessage{}, err
	}
	return saved, nil
}

func (r *chatRepo) ListBySession(dbc dbctx.Context, sessionID string) ([]domain.ChatMessage, error) {
	var rows []ChatRow
	if err := r.tx(dbc).WithContext(dbc.Ctx).Where("session_id = ?", sessionID).Order("chat_id asc").Find(&rows).Error; err != nil {
		return nil, domainerr.MetadataStore("get_chat_list failed", err)
	}
	out := make([]domain.ChatMessage, 0, len(rows))
	for _, row := range rows {
		msg, err := decodeChatRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (r *chatRepo) Get(dbc dbctx.Context, chatID int64) (domain.ChatMessage, error) {
	var row ChatRow
	err := r.tx(dbc).WithContext(dbc.Ctx).Where("chat_id = ?", chatID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return domain.ChatMessage{}, domainerr.ResourceNotFound(fmt.Sprintf("chat not found: %d", chatID))
	}
	if err != nil {
		return domain.ChatMessage{}, domainerr.MetadataStore("get_chat_by_id failed", err)
	}
	return decodeChatRow(row)
}

func decodeChatRow(row ChatRow) (domain.ChatMessage, error) {
	var nodes []domain.ReferencedNode
	if row.ReferencedNodesJSON != "" {
		if err := json.Unmarshal([]byte(row.ReferencedNodesJSON), &nodes); err != nil {
			return domain.ChatMessage{}, domainerr.MetadataStore("decode referenced_nodes failed", err)
		}
	}
	return domain.ChatMessage{
		ChatID:          row.ChatID,
		SessionID:       row.SessionID,
		IsAI:            row.IsAI,
		Message:         row.Message,
		ReferencedNodes: nodes,
		Accuracy:        row.Accuracy,
	}, nil
}

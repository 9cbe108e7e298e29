package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-automation/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict means the conversation changed since it was read.
	ErrVersionConflict = errors.New("conversation version conflict")
)

// Store is the gorm-backed repository used by the webhook pipeline.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- Integrations ---

// FindIntegration matches accountID against the phone number id first, then the WABA id.
func (s *Store) FindIntegration(ctx context.Context, accountID string) (*models.Integration, error) {
	var integration models.Integration
	err := s.db.WithContext(ctx).
		Where("phone_number_id = ?", accountID).
		First(&integration).Error
	if err == nil {
		return &integration, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = s.db.WithContext(ctx).
		Where("waba_id = ?", accountID).
		Order("id").
		First(&integration).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &integration, nil
}

// --- Contacts ---

func (s *Store) FindContactByPhone(ctx context.Context, tenantID, phone string) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND phone = ?", tenantID, phone).
		First(&contact).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &contact, nil
}

func (s *Store) CreateContact(ctx context.Context, contact *models.Contact) error {
	return s.db.WithContext(ctx).Create(contact).Error
}

// UpdateContact saves the named columns, or every column when none are named.
func (s *Store) UpdateContact(ctx context.Context, contact *models.Contact, columns ...string) error {
	tx := s.db.WithContext(ctx).Model(contact)
	if len(columns) > 0 {
		tx = tx.Select(columns)
	} else {
		tx = tx.Select("*").Omit("id", "tenant_id", "created_at")
	}
	return tx.Updates(contact).Error
}

// --- Conversations ---

// FindOpenConversation returns the oldest open or pending thread for the contact.
func (s *Store) FindOpenConversation(ctx context.Context, tenantID, contactID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND contact_id = ? AND status IN ?", tenantID, contactID,
			[]string{models.ConversationOpen, models.ConversationPending}).
		Order("created_at, id").
		First(&conv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.Version == 0 {
		conv.Version = 1
	}
	return s.db.WithContext(ctx).Create(conv).Error
}

// UpdateConversation writes the mutable fields if the stored version still equals conv.Version,
// then bumps conv.Version. Returns ErrVersionConflict otherwise.
func (s *Store) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	res := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ? AND version = ?", conv.ID, conv.Version).
		Updates(map[string]interface{}{
			"status":          conv.Status,
			"last_message":    conv.LastMessage,
			"last_message_at": conv.LastMessageAt,
			"unread_count":    conv.UnreadCount,
			"active_flow_id":  conv.ActiveFlowID,
			"current_step_id": conv.CurrentStepID,
			"version":         conv.Version + 1,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	conv.Version++
	return nil
}

// --- Messages ---

// InsertMessage stores msg unless a message with the same provider id exists.
// Reports whether a row was written.
func (s *Store) InsertMessage(ctx context.Context, msg *models.Message) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(msg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) MessageExists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// FindMessage looks a message up by provider id across all tenants.
func (s *Store) FindMessage(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	if err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}

func (s *Store) UpdateMessageStatus(ctx context.Context, id, status string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":           status,
			"status_timestamp": at,
		}).Error
}

// --- Flows ---

// PublishedFlows returns the tenant's published flows in creation order, ties by id.
func (s *Store) PublishedFlows(ctx context.Context, tenantID string) ([]models.Flow, error) {
	var flows []models.Flow
	err := s.db.WithContext(ctx).
		Preload("Nodes", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Edges", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("tenant_id = ? AND status = ?", tenantID, models.FlowPublished).
		Order("created_at, id").
		Find(&flows).Error
	return flows, err
}

func (s *Store) FindFlow(ctx context.Context, tenantID, flowID string) (*models.Flow, error) {
	var flow models.Flow
	err := s.db.WithContext(ctx).
		Preload("Nodes", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Edges", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("tenant_id = ? AND id = ?", tenantID, flowID).
		First(&flow).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &flow, nil
}

// ListFlows returns the tenant's flows without their graphs.
func (s *Store) ListFlows(ctx context.Context, tenantID string) ([]models.Flow, error) {
	var flows []models.Flow
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at, id").
		Find(&flows).Error
	return flows, err
}

// SaveFlow replaces the flow row and its whole node and edge set.
func (s *Store) SaveFlow(ctx context.Context, flow *models.Flow) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nodes, edges := flow.Nodes, flow.Edges
		flow.Nodes, flow.Edges = nil, nil
		defer func() { flow.Nodes, flow.Edges = nodes, edges }()

		// created_at orders trigger matching and must survive a replace.
		if flow.ID != "" && flow.CreatedAt.IsZero() {
			var existing models.Flow
			if err := tx.Select("created_at").Where("id = ?", flow.ID).Take(&existing).Error; err == nil {
				flow.CreatedAt = existing.CreatedAt
			}
		}
		if err := tx.Save(flow).Error; err != nil {
			return fmt.Errorf("save flow: %w", err)
		}
		if err := tx.Where("flow_id = ?", flow.ID).Delete(&models.FlowNode{}).Error; err != nil {
			return err
		}
		if err := tx.Where("flow_id = ?", flow.ID).Delete(&models.FlowEdge{}).Error; err != nil {
			return err
		}
		for i := range nodes {
			nodes[i].ID = 0
			nodes[i].FlowID = flow.ID
		}
		for i := range edges {
			edges[i].ID = 0
			edges[i].FlowID = flow.ID
		}
		if len(nodes) > 0 {
			if err := tx.Create(&nodes).Error; err != nil {
				return fmt.Errorf("save nodes: %w", err)
			}
		}
		if len(edges) > 0 {
			if err := tx.Create(&edges).Error; err != nil {
				return fmt.Errorf("save edges: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) FindCannedResponse(ctx context.Context, tenantID, id string) (*models.CannedResponse, error) {
	var resp models.CannedResponse
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&resp).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &resp, nil
}

func (s *Store) LogFlowRun(ctx context.Context, entry *models.AutomationLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// AutomationLogs returns the newest audit rows first.
func (s *Store) AutomationLogs(ctx context.Context, tenantID string, limit int) ([]models.AutomationLog, error) {
	var logs []models.AutomationLog
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// OutcomeCounts counts the tenant's audit rows per outcome.
func (s *Store) OutcomeCounts(ctx context.Context, tenantID string) (map[string]int64, error) {
	var rows []struct {
		Outcome string
		Total   int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.AutomationLog{}).
		Select("outcome, count(*) AS total").
		Where("tenant_id = ?", tenantID).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Outcome] = r.Total
	}
	return counts, nil
}

// ActiveConversations returns the tenant's conversations that are inside a flow.
func (s *Store) ActiveConversations(ctx context.Context, tenantID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND active_flow_id IS NOT NULL AND current_step_id IS NOT NULL", tenantID).
		Order("updated_at DESC, id").
		Find(&convs).Error
	return convs, err
}

// --- Templates ---

// UpdateTemplateStatus sets status and reason on the tenant's templates matching name and,
// when language is not empty, language. Returns the number of matching rows.
func (s *Store) UpdateTemplateStatus(ctx context.Context, tenantID, name, language, status, reason string) (int64, error) {
	tx := s.db.WithContext(ctx).
		Model(&models.Template{}).
		Where("tenant_id = ? AND name = ?", tenantID, name)
	if language != "" {
		tx = tx.Where("language = ?", language)
	}
	res := tx.Updates(map[string]interface{}{
		"status":     status,
		"reason":     reason,
		"updated_at": time.Now().UTC(),
	})
	return res.RowsAffected, res.Error
}

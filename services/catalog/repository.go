package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"agentdock/pkg/db"
)

// Store holds external dependencies required by the postgres repository.
type Store struct {
	DB  *pgxpool.Pool
	ORM *gorm.DB
}

type pgRepository struct {
	store *Store
}

// NewRepository returns a Repository backed by postgres. Directory reads go through the pgx
// pool, agent and vocabulary writes through gorm.
func NewRepository(store *Store) (Repository, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if store.DB == nil {
		return nil, errors.New("store DB is required")
	}
	if store.ORM == nil {
		return nil, errors.New("store ORM is required")
	}
	return &pgRepository{store: store}, nil
}

func (r *pgRepository) Capabilities(ctx context.Context) ([]Capability, error) {
	items := []Capability{}
	if err := db.Select(ctx, r.store.DB, &items, `SELECT id, name FROM capabilities ORDER BY name ASC`); err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	return items, nil
}

func (r *pgRepository) Deployments(ctx context.Context, capabilityID string) ([]Deployment, error) {
	items := []Deployment{}
	err := db.Select(ctx, r.store.DB, &items, `
SELECT provider, service_name, COALESCE(deployment_type, '') AS deployment_type, COALESCE(region, '') AS region
FROM capability_deployments
WHERE capability_id = $1
ORDER BY provider ASC, service_name ASC
`, capabilityID)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	return items, nil
}

func (r *pgRepository) Vocabulary(ctx context.Context) (Vocabulary, error) {
	var models []vocabularyModel
	if err := r.store.ORM.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return Vocabulary{}, fmt.Errorf("list vocabulary: %w", err)
	}
	v := Vocabulary{
		AgentTypes:        []string{},
		ValuePropositions: []string{},
		Tags:              []string{},
		TargetPersonas:    []string{},
	}
	for _, m := range models {
		switch m.Kind {
		case KindAgentType:
			v.AgentTypes = append(v.AgentTypes, m.Value)
		case KindValueProposition:
			v.ValuePropositions = append(v.ValuePropositions, m.Value)
		case KindTag:
			v.Tags = append(v.Tags, m.Value)
		case KindTargetPersona:
			v.TargetPersonas = append(v.TargetPersonas, m.Value)
		}
	}
	return v, nil
}

func (r *pgRepository) AddVocabulary(ctx context.Context, entries []VocabularyEntry) error {
	if len(entries) == 0 {
		return nil
	}
	models := make([]vocabularyModel, 0, len(entries))
	for _, e := range entries {
		models = append(models, vocabularyModel{Kind: e.Kind, Value: e.Value})
	}
	err := r.store.ORM.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "kind"}, {Name: "value"}}, DoNothing: true}).
		Create(&models).Error
	if err != nil {
		return fmt.Errorf("add vocabulary: %w", err)
	}
	return nil
}

func (r *pgRepository) Agent(ctx context.Context, id uuid.UUID) (Agent, error) {
	return loadAgent(r.store.ORM.WithContext(ctx), id)
}

func loadAgent(tx *gorm.DB, id uuid.UUID) (Agent, error) {
	var model agentModel
	switch err := tx.First(&model, "id = ?", id).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Agent{}, ErrNotFound
	case err != nil:
		return Agent{}, fmt.Errorf("load agent: %w", err)
	}

	var assets []agentAssetModel
	if err := tx.Where("agent_id = ?", id).Order("created_at ASC, id ASC").Find(&assets).Error; err != nil {
		return Agent{}, fmt.Errorf("load agent assets: %w", err)
	}
	return model.toAPI(assets), nil
}

func (r *pgRepository) CreateAgent(ctx context.Context, a Agent, uploads []Asset) error {
	model := agentModelFrom(a)
	return r.store.ORM.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("create agent: %w", err)
		}
		if len(uploads) == 0 {
			return nil
		}
		assets := assetModelsFor(a.ID, uploads)
		if err := tx.Create(&assets).Error; err != nil {
			return fmt.Errorf("create agent assets: %w", err)
		}
		return nil
	})
}

func (r *pgRepository) UpdateAgent(ctx context.Context, a Agent, uploads []Asset) (Agent, error) {
	var previous Agent
	err := r.store.ORM.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		previous, err = loadAgent(tx, a.ID)
		if err != nil {
			return err
		}

		model := agentModelFrom(a)
		if err := tx.Model(&agentModel{ID: a.ID}).Updates(model.updates()).Error; err != nil {
			return fmt.Errorf("update agent: %w", err)
		}
		if len(uploads) == 0 {
			return nil
		}
		assets := assetModelsFor(a.ID, uploads)
		if err := tx.Create(&assets).Error; err != nil {
			return fmt.Errorf("create agent assets: %w", err)
		}
		return nil
	})
	if err != nil {
		return Agent{}, err
	}
	return previous, nil
}

package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Capability struct {
	ID        string    `gorm:"type:text;primaryKey"`
	Name      string    `gorm:"type:text;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

type CapabilityDeployment struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CapabilityID   string     `gorm:"type:text;not null;index"`
	Provider       string     `gorm:"type:text;not null"`
	ServiceName    string     `gorm:"type:text;not null"`
	DeploymentType string     `gorm:"type:text"`
	Region         string     `gorm:"type:text"`
	Capability     Capability `gorm:"foreignKey:CapabilityID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type Vocabulary struct {
	ID        int64     `gorm:"type:bigserial;primaryKey"`
	Kind      string    `gorm:"type:text;not null;uniqueIndex:idx_vocabulary_kind_value"`
	Value     string    `gorm:"type:text;not null;uniqueIndex:idx_vocabulary_kind_value"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (Vocabulary) TableName() string { return "vocabulary" }

type Agent struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey"`
	UserID           string         `gorm:"type:text;not null;index"`
	Name             string         `gorm:"type:text;not null"`
	Description      string         `gorm:"type:text"`
	KeyFeatures      string         `gorm:"type:text"`
	ROI              string         `gorm:"column:roi;type:text"`
	AgentType        string         `gorm:"type:text"`
	ValueProposition string         `gorm:"type:text"`
	Tags             string         `gorm:"type:text"`
	ByPersona        string         `gorm:"type:text"`
	BundledAgents    string         `gorm:"type:text"`
	ByCapability     string         `gorm:"type:text"`
	CapabilityIDs    string         `gorm:"column:capability_ids;type:text"`
	Deployments      datatypes.JSON `gorm:"type:jsonb"`
	DemoLinks        string         `gorm:"type:text"`
	PreviewURLs      string         `gorm:"column:preview_urls;type:text"`
	SDKDetails       string         `gorm:"column:sdk_details;type:text"`
	APIDocsURL       string         `gorm:"column:api_docs_url;type:text"`
	SampleInput      string         `gorm:"type:text"`
	SampleOutput     string         `gorm:"type:text"`
	SecurityDetails  string         `gorm:"type:text"`
	RelatedLinks     string         `gorm:"type:text"`
	ReadmeURL        string         `gorm:"column:readme_url;type:text"`
	CreatedAt        time.Time      `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type AgentAsset struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AgentID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Name      string    `gorm:"type:text"`
	AssetURL  string    `gorm:"column:asset_url;type:text"`
	FilePath  string    `gorm:"type:text"`
	MediaType string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Agent     Agent     `gorm:"foreignKey:AgentID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type Notice struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	AgentID   uuid.UUID `gorm:"type:uuid;index"`
	UserID    string    `gorm:"type:text"`
	Kind      string    `gorm:"type:text;not null"`
	Message   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

type Audit struct {
	ID      int64             `gorm:"type:bigserial;primaryKey"`
	Actor   string            `gorm:"type:text;not null"`
	Action  string            `gorm:"type:text;not null"`
	Obj     string            `gorm:"type:text"`
	Details datatypes.JSONMap `gorm:"type:jsonb"`
	At      time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
}

func (Audit) TableName() string { return "audit" }

func openTx(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&Capability{},
		&CapabilityDeployment{},
		&Vocabulary{},
		&Agent{},
		&AgentAsset{},
		&Notice{},
		&Audit{},
	); err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	if err := m.CreateConstraint(&CapabilityDeployment{}, "Capability"); err != nil {
		return err
	}
	return m.CreateConstraint(&AgentAsset{}, "Agent")
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&Audit{},
		&Notice{},
		&AgentAsset{},
		&Agent{},
		&Vocabulary{},
		&CapabilityDeployment{},
		&Capability{},
	)
}

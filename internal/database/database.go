package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/emilythestrangee/uservoice/backend/internal/models"
	"github.com/emilythestrangee/uservoice/backend/internal/store"
)

// Service represents a service that interacts with a database.
type Service interface {
	store.Store

	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string
}

// Config holds the Postgres connection settings.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	// LogLevel controls gorm's SQL logging. Defaults to logger.Warn.
	LogLevel logger.LogLevel
}

func (c Config) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port, sslmode,
	)
}

type service struct {
	db   *gorm.DB
	name string
}

var _ Service = (*service)(nil)

// New connects to Postgres and migrates the schema.
func New(cfg Config) (Service, error) {
	s, err := open(cfg.DSN(), cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	s.name = cfg.Name
	return s, nil
}

// Open connects using a raw DSN or URL and migrates the schema.
func Open(dsn string, level logger.LogLevel) (Service, error) {
	return open(dsn, level)
}

func open(dsn string, level logger.LogLevel) (*service, error) {
	if level == 0 {
		level = logger.Warn
	}

	// Configure GORM logger
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("✅ Database connected successfully")

	err = db.AutoMigrate(
		&models.User{},
		&models.FeatureRequest{},
		&models.UserVote{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("✅ Database migrations completed")

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &service{db: db}, nil
}

func (s *service) UpsertUser(ctx context.Context, user *models.User) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(user).Error
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", user.ID, classify(err))
	}
	return nil
}

func (s *service) CreateFeatureRequest(ctx context.Context, request *models.FeatureRequest) error {
	// Omit the association so the creator row is not written back.
	if err := s.db.WithContext(ctx).Omit("Creator").Create(request).Error; err != nil {
		return fmt.Errorf("insert feature request: %w", classify(err))
	}
	return nil
}

func (s *service) GetFeatureRequest(ctx context.Context, id uuid.UUID) (models.FeatureRequest, error) {
	var request models.FeatureRequest
	err := s.db.WithContext(ctx).Preload("Creator").First(&request, "id = ?", id).Error
	if err != nil {
		return models.FeatureRequest{}, classify(err)
	}
	return request, nil
}

func (s *service) ListFeatureRequests(ctx context.Context) ([]models.FeatureRequest, error) {
	var requests []models.FeatureRequest
	err := s.db.WithContext(ctx).Preload("Creator").Order("created_at").Find(&requests).Error
	if err != nil {
		return nil, fmt.Errorf("list feature requests: %w", classify(err))
	}
	return requests, nil
}

func (s *service) ListUserVotes(ctx context.Context, userID uint64, requestIDs []uuid.UUID) (map[uuid.UUID]models.VoteValue, error) {
	votes := make(map[uuid.UUID]models.VoteValue)
	if len(requestIDs) == 0 {
		return votes, nil
	}

	var rows []models.UserVote
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND feature_request_id IN ?", userID, requestIDs).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list votes of %d: %w", userID, classify(err))
	}
	for _, row := range rows {
		votes[row.FeatureRequestID] = row.Vote
	}
	return votes, nil
}

// WithVoteLock takes a row lock on the feature request for the duration of
// the transaction, so concurrent votes on it are applied one at a time.
func (s *service) WithVoteLock(ctx context.Context, requestID uuid.UUID, fn func(store.VoteTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.FeatureRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&locked, "id = ?", requestID).Error
		if err != nil {
			return classify(err)
		}
		return fn(voteTx{db: tx})
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

type voteTx struct {
	db *gorm.DB
}

func (t voteTx) GetVote(ctx context.Context, userID uint64, requestID uuid.UUID) (models.VoteValue, error) {
	var row models.UserVote
	err := t.db.WithContext(ctx).
		Where("user_id = ? AND feature_request_id = ?", userID, requestID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.VoteNone, nil
	}
	if err != nil {
		return models.VoteNone, classify(err)
	}
	return row.Vote, nil
}

func (t voteTx) PutVote(ctx context.Context, vote models.UserVote) error {
	err := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "feature_request_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"vote"}),
		}).
		Create(&vote).Error
	return classify(err)
}

func (t voteTx) DeleteVote(ctx context.Context, userID uint64, requestID uuid.UUID) error {
	err := t.db.WithContext(ctx).
		Where("user_id = ? AND feature_request_id = ?", userID, requestID).
		Delete(&models.UserVote{}).Error
	return classify(err)
}

func (t voteTx) AdjustCounters(ctx context.Context, requestID uuid.UUID, upDelta, downDelta int) error {
	res := t.db.WithContext(ctx).
		Model(&models.FeatureRequest{}).
		Where("id = ?", requestID).
		UpdateColumns(map[string]any{
			"upvotes":   gorm.Expr("upvotes + ?", upDelta),
			"downvotes": gorm.Expr("downvotes + ?", downDelta),
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected != 1 {
		return store.ErrNotFound
	}
	return nil
}

// classify maps driver errors onto the store sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		}
	}
	return err
}

// Health checks the health of the database connection by pinging the database.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats := make(map[string]string)

	// Get underlying SQL DB
	sqlDB, err := s.db.DB()
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db error: %v", err)
		return stats
	}

	// Ping the database
	err = sqlDB.PingContext(ctx)
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	// Database is up
	stats["status"] = "up"
	stats["message"] = "It's healthy"

	// Get database stats
	dbStats := sqlDB.Stats()
	stats["open_connections"] = fmt.Sprintf("%d", dbStats.OpenConnections)
	stats["in_use"] = fmt.Sprintf("%d", dbStats.InUse)
	stats["idle"] = fmt.Sprintf("%d", dbStats.Idle)

	return stats
}

// Close closes the database connection.
func (s *service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	log.Printf("Disconnected from database: %s", s.name)
	return sqlDB.Close()
}

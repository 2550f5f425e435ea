package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"amm_go/internal/domain"
	"amm_go/internal/event"
)

// PoolRecord is one row of the pool table.
type PoolRecord struct {
	ID          string `gorm:"primaryKey;size:66"`
	AssetA      string `gorm:"size:42;not null"`
	AssetB      string `gorm:"size:42;not null"`
	ReserveA    string `gorm:"not null"`
	ReserveB    string `gorm:"not null"`
	TotalShares string `gorm:"not null"`
	UpdatedAt   time.Time
}

// ShareRecord is one row of the share ledger.
type ShareRecord struct {
	PoolID    string `gorm:"primaryKey;size:66"`
	Account   string `gorm:"primaryKey;size:42"`
	Balance   string `gorm:"not null"`
	UpdatedAt time.Time
}

// CommandRecord is one write-ahead log entry.
type CommandRecord struct {
	Seq       uint64 `gorm:"primaryKey;autoIncrement:false"`
	ID        string `gorm:"uniqueIndex;size:36"`
	Type      string `gorm:"size:32;not null"`
	Payload   []byte `gorm:"not null"`
	CreatedAt time.Time
}

// NotificationRecord is one journaled engine notification.
type NotificationRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	Kind      string `gorm:"size:32;index"`
	PoolID    string `gorm:"size:66;index"`
	Payload   []byte
	CreatedAt time.Time `gorm:"index"`
}

// Storage persists pool state, the command WAL and the notification journal
// in SQLite.
type Storage struct {
	db *gorm.DB
}

type txKey struct{}

// NewStorage opens (or creates) the database at path. An empty path resolves
// to the per-user config directory.
func NewStorage(path string) (*Storage, error) {
	if path == "" {
		p, err := getDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		path = p
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return newStorage(db)
}

func newStorage(db *gorm.DB) (*Storage, error) {
	// SQLite has a single writer; one connection keeps transactions serialized.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&PoolRecord{}, &ShareRecord{}, &CommandRecord{}, &NotificationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "AMM", "data", "amm.db"), nil
}

// Close releases the database handle.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// conn returns the transaction carried by ctx, or the base handle.
func (s *Storage) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return s.db.WithContext(ctx)
}

// ======================================================================================
// Pool State
// ======================================================================================

// SavePool upserts the pool row and the touched share rows in one transaction.
// then runs inside that transaction; its error rolls the write back.
func (s *Storage) SavePool(ctx context.Context, change domain.PoolChange, then func(ctx context.Context) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertPool(tx, &change.Pool); err != nil {
			return err
		}
		for i := range change.Shares {
			if err := upsertShare(tx, &change.Shares[i]); err != nil {
				return err
			}
		}
		if then == nil {
			return nil
		}
		return then(context.WithValue(ctx, txKey{}, tx))
	})
}

// SaveState upserts a full snapshot. Used to reconcile the tables after replay.
func (s *Storage) SaveState(ctx context.Context, pools []domain.Pool, shares []domain.ShareBalance) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range pools {
			if err := upsertPool(tx, &pools[i]); err != nil {
				return err
			}
		}
		for i := range shares {
			if err := upsertShare(tx, &shares[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertPool(tx *gorm.DB, p *domain.Pool) error {
	rec := PoolRecord{
		ID:          p.ID.Hex(),
		AssetA:      p.AssetA.Hex(),
		AssetB:      p.AssetB.Hex(),
		ReserveA:    p.ReserveA.Dec(),
		ReserveB:    p.ReserveB.Dec(),
		TotalShares: p.TotalShares.Dec(),
	}
	return tx.Save(&rec).Error
}

func upsertShare(tx *gorm.DB, b *domain.ShareBalance) error {
	rec := ShareRecord{
		PoolID:  b.Pool.Hex(),
		Account: b.Account.Hex(),
		Balance: b.Balance.Dec(),
	}
	return tx.Save(&rec).Error
}

// LoadState reads every pool and share row.
func (s *Storage) LoadState(ctx context.Context) ([]domain.Pool, []domain.ShareBalance, error) {
	var poolRecs []PoolRecord
	if err := s.conn(ctx).Order("id").Find(&poolRecs).Error; err != nil {
		return nil, nil, err
	}
	var shareRecs []ShareRecord
	if err := s.conn(ctx).Order("pool_id, account").Find(&shareRecs).Error; err != nil {
		return nil, nil, err
	}

	pools := make([]domain.Pool, 0, len(poolRecs))
	for _, rec := range poolRecs {
		p, err := rec.toDomain()
		if err != nil {
			return nil, nil, err
		}
		pools = append(pools, p)
	}

	shares := make([]domain.ShareBalance, 0, len(shareRecs))
	for _, rec := range shareRecs {
		bal, err := uint256.FromDecimal(rec.Balance)
		if err != nil {
			return nil, nil, fmt.Errorf("share %s/%s: %w", rec.PoolID, rec.Account, err)
		}
		shares = append(shares, domain.ShareBalance{
			Pool:    common.HexToHash(rec.PoolID),
			Account: common.HexToAddress(rec.Account),
			Balance: *bal,
		})
	}
	return pools, shares, nil
}

func (r PoolRecord) toDomain() (domain.Pool, error) {
	p := domain.Pool{
		ID:     common.HexToHash(r.ID),
		AssetA: common.HexToAddress(r.AssetA),
		AssetB: common.HexToAddress(r.AssetB),
		Exists: true,
	}
	for _, f := range []struct {
		dst *uint256.Int
		src string
	}{
		{&p.ReserveA, r.ReserveA},
		{&p.ReserveB, r.ReserveB},
		{&p.TotalShares, r.TotalShares},
	} {
		if err := f.dst.SetFromDecimal(f.src); err != nil {
			return domain.Pool{}, fmt.Errorf("pool %s: %w", r.ID, err)
		}
	}
	return p, nil
}

// ======================================================================================
// Command WAL
// ======================================================================================

// SaveCommand appends cmd to the WAL. A duplicate sequence number fails.
func (s *Storage) SaveCommand(ctx context.Context, cmd event.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command %d: %w", cmd.GetSeq(), err)
	}
	rec := CommandRecord{
		Seq:     cmd.GetSeq(),
		ID:      uuid.NewString(),
		Type:    string(cmd.GetType()),
		Payload: payload,
	}
	return s.conn(ctx).Create(&rec).Error
}

// LoadCommands returns the WAL in sequence order.
func (s *Storage) LoadCommands(ctx context.Context) ([]event.Command, error) {
	var recs []CommandRecord
	if err := s.conn(ctx).Order("seq").Find(&recs).Error; err != nil {
		return nil, err
	}
	cmds := make([]event.Command, 0, len(recs))
	for _, rec := range recs {
		cmd, err := event.Decode(event.Type(rec.Type), rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("wal seq %d: %w", rec.Seq, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// LastSeq returns the highest logged sequence number, or 0.
func (s *Storage) LastSeq(ctx context.Context) (uint64, error) {
	var rec CommandRecord
	err := s.conn(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "seq"}, Desc: true}).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil // Empty log is not an error
	}
	return rec.Seq, err
}

// ======================================================================================
// Notification Journal
// ======================================================================================

// Emit journals n. Inside SavePool it joins the pool write's transaction.
func (s *Storage) Emit(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	rec := NotificationRecord{
		ID:      uuid.New().String(),
		Kind:    n.Kind(),
		PoolID:  n.PoolID().Hex(),
		Payload: payload,
	}
	return s.conn(ctx).Create(&rec).Error
}

// Notifications returns the newest journaled notifications of a pool.
func (s *Storage) Notifications(ctx context.Context, pool domain.PoolID, limit int) ([]NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var recs []NotificationRecord
	err := s.conn(ctx).
		Where("pool_id = ?", pool.Hex()).
		Order("created_at desc").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

package agent

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	xerrors "OpenDCA-Chain/internal/errors"
	"github.com/go-sql-driver/mysql"
)

// MySQLStore 使用 MySQL 保存智能体与账本。
// 创建/删除在账本行上加排他锁，执行提交用 execution_count 条件更新，
// 跨进程场景下同样保证单账户串行与单窗口至多一次执行。
type MySQLStore struct {
	db *sql.DB
}

// MySQLConfig 描述连接池参数。
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(cfg MySQLConfig) (*MySQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 20
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 10 * time.Minute
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := runMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "应用数据库迁移失败")
	}
	return store, nil
}

// EnsurePlatform 幂等地写入平台账本的单行记录。
func (s *MySQLStore) EnsurePlatform(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT IGNORE INTO platform_stats (id, total_created, total_live) VALUES (1, 0, 0)`)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化平台账本失败")
	}
	return nil
}

// CreateAgent 实现 Store 接口。
func (s *MySQLStore) CreateAgent(ctx context.Context, ag *Agent) (*Agent, error) {
	if ag == nil || ag.Strategy == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "agent 不能为空")
	}
	if strings.TrimSpace(ag.Creator) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "创建者不能为空")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT IGNORE INTO agent_accounts (creator) VALUES (?)`, ag.Creator); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化账本条目失败")
	}

	var liveCount, sponsoredCount, nextID uint64
	row := tx.QueryRowContext(ctx,
		`SELECT live_count, sponsored_count, next_id FROM agent_accounts WHERE creator = ? FOR UPDATE`,
		ag.Creator)
	if err := row.Scan(&liveCount, &sponsoredCount, &nextID); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取账本条目失败")
	}

	if liveCount+1 > MaxLiveAgentsPerUser {
		return nil, ErrAgentLimitExceeded
	}
	sponsored := sponsoredCount < MaxSponsoredPerUser

	clone := ag.Clone()
	clone.ID = nextID
	clone.Sponsored = sponsored
	clone.State = StateActive

	st := clone.Strategy
	_, err = tx.ExecContext(ctx, `INSERT INTO agents
        (creator, id, display_name, state, sponsored, strategy_type, total_transactions,
         created_at, updated_at, kind, asset, amount_per_execution, remaining_balance,
         timing_unit, timing_value, last_execution_at, stop_at, threshold_percent, trend,
         reference_price, entry_price, last_observed_price, total_base, total_quote,
         average_price, execution_count, halted)
        VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, 0)`,
		clone.Creator, clone.ID, clone.DisplayName, clone.State, clone.Sponsored,
		clone.StrategyType, clone.CreatedAt, clone.UpdatedAt,
		st.Kind, st.Asset, st.AmountPerExecution, st.RemainingBalance,
		st.TimingUnit, st.TimingValue, st.LastExecutionAt, st.StopAt,
		st.ThresholdPercent, st.Trend, st.ReferencePrice, st.EntryPrice, st.LastObservedPrice,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil, xerrors.New(xerrors.CodeConflict, "智能体编号冲突")
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入智能体失败")
	}

	sponsoredDelta := 0
	if sponsored {
		sponsoredDelta = 1
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE agent_accounts SET live_count = live_count + 1,
         sponsored_count = sponsored_count + ?, next_id = next_id + 1 WHERE creator = ?`,
		sponsoredDelta, ag.Creator); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新账本条目失败")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE platform_stats SET total_created = total_created + 1,
         total_live = total_live + 1 WHERE id = 1`); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新平台账本失败")
	}

	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交创建事务失败")
	}
	return clone, nil
}

const agentColumns = `creator, id, display_name, state, sponsored, strategy_type,
        total_transactions, created_at, updated_at, kind, asset, amount_per_execution,
        remaining_balance, timing_unit, timing_value, last_execution_at, stop_at,
        threshold_percent, trend, reference_price, entry_price, last_observed_price,
        total_base, total_quote, average_price, execution_count, halted`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var ag Agent
	var st Strategy
	if err := row.Scan(
		&ag.Creator, &ag.ID, &ag.DisplayName, &ag.State, &ag.Sponsored, &ag.StrategyType,
		&ag.TotalTransactions, &ag.CreatedAt, &ag.UpdatedAt,
		&st.Kind, &st.Asset, &st.AmountPerExecution, &st.RemainingBalance,
		&st.TimingUnit, &st.TimingValue, &st.LastExecutionAt, &st.StopAt,
		&st.ThresholdPercent, &st.Trend, &st.ReferencePrice, &st.EntryPrice,
		&st.LastObservedPrice, &st.TotalBase, &st.TotalQuote, &st.AveragePrice,
		&st.ExecutionCount, &st.Halted,
	); err != nil {
		return nil, err
	}
	ag.Strategy = &st
	return &ag, nil
}

// Get 查询指定智能体。
func (s *MySQLStore) Get(ctx context.Context, creator string, id uint64) (*Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE creator = ? AND id = ?`, creator, id)
	ag, err := scanAgent(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询智能体失败")
	}
	return ag, nil
}

// ListByCreator 返回创建者名下未删除的智能体。
func (s *MySQLStore) ListByCreator(ctx context.Context, creator string) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE creator = ? AND state <> ? ORDER BY id ASC`,
		creator, StateDeleted)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询智能体列表失败")
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		ag, err := scanAgent(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析智能体记录失败")
		}
		agents = append(agents, ag)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历智能体失败")
	}
	return agents, nil
}

// Transition 实现 Store 接口。
func (s *MySQLStore) Transition(ctx context.Context, creator string, id uint64, to State, now int64) (*Agent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启事务失败")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE creator = ? AND id = ? FOR UPDATE`, creator, id)
	ag, err := scanAgent(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询智能体失败")
	}

	switch to {
	case StatePaused:
		if ag.State != StateActive {
			return nil, ErrNotActive
		}
	case StateActive:
		if ag.State != StatePaused {
			return nil, ErrNotPaused
		}
	case StateDeleted:
		if ag.State == StateDeleted {
			return nil, ErrInvalidStateTransition
		}
	default:
		return nil, ErrInvalidStateTransition
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE agents SET state = ?, updated_at = ? WHERE creator = ? AND id = ?`,
		to, now, creator, id); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新智能体状态失败")
	}

	if to == StateDeleted {
		sponsoredDelta := 0
		if ag.Sponsored {
			sponsoredDelta = 1
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE agent_accounts SET live_count = live_count - 1,
             sponsored_count = sponsored_count - ? WHERE creator = ? AND live_count > 0`,
			sponsoredDelta, creator); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "释放账本名额失败")
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE platform_stats SET total_live = total_live - 1 WHERE id = 1 AND total_live > 0`); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "回落平台存活计数失败")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交状态迁移失败")
	}

	ag.State = to
	ag.UpdatedAt = now
	return ag, nil
}

// CommitExecution 实现 Store 接口。
// execution_count 条件更新即乐观校验：两次并发提交只有一次能生效。
func (s *MySQLStore) CommitExecution(ctx context.Context, ag *Agent, expectedCount uint64) error {
	if ag == nil || ag.Strategy == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "agent 不能为空")
	}
	st := ag.Strategy
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET remaining_balance = ?, total_base = ?, total_quote = ?,
         average_price = ?, execution_count = ?, last_execution_at = ?,
         reference_price = ?, last_observed_price = ?, total_transactions = ?, updated_at = ?
         WHERE creator = ? AND id = ? AND execution_count = ? AND state <> ?`,
		st.RemainingBalance, st.TotalBase, st.TotalQuote,
		st.AveragePrice, st.ExecutionCount, st.LastExecutionAt,
		st.ReferencePrice, st.LastObservedPrice, ag.TotalTransactions, ag.UpdatedAt,
		ag.Creator, ag.ID, expectedCount, StateDeleted,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交执行记账失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		return xerrors.New(xerrors.CodeConflict, "执行提交与存储状态不一致")
	}
	return nil
}

// HaltStrategy 实现 Store 接口。
func (s *MySQLStore) HaltStrategy(ctx context.Context, creator string, id uint64, now int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET halted = 1, updated_at = ? WHERE creator = ? AND id = ?`,
		now, creator, id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记策略停止失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrAgentNotFound
	}
	return nil
}

// Account 返回创建者的账本条目。
func (s *MySQLStore) Account(ctx context.Context, creator string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT live_count, sponsored_count, next_id FROM agent_accounts WHERE creator = ?`, creator)

	account := NewAccount(creator)
	if err := row.Scan(&account.LiveCount, &account.SponsoredCount, &account.NextID); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询账本条目失败")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM agents WHERE creator = ? ORDER BY id ASC`, creator)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询持有列表失败")
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析持有列表失败")
		}
		account.OwnedIDs = append(account.OwnedIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历持有列表失败")
	}
	return account, nil
}

// PlatformStats 返回平台聚合计数。
func (s *MySQLStore) PlatformStats(ctx context.Context) (PlatformStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT total_created, total_live FROM platform_stats WHERE id = 1`)
	var stats PlatformStats
	if err := row.Scan(&stats.TotalCreated, &stats.TotalLive); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return PlatformStats{}, nil
		}
		return PlatformStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询平台账本失败")
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*MySQLStore)(nil)

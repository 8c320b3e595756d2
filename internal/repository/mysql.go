package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/yiyuanduobao/duobao/config"
	"github.com/yiyuanduobao/duobao/internal/model"
)

// mysqlDuplicateEntry MySQL唯一键冲突错误码
const mysqlDuplicateEntry = 1062

type MySQLRepository struct {
	masterDB *sql.DB
	slaveDB  *sql.DB
}

func NewMySQLRepository() (*MySQLRepository, error) {
	masterDB, err := sql.Open("mysql", config.AppConfig.MySQL.Master)
	if err != nil {
		return nil, fmt.Errorf("连接主数据库失败: %w", err)
	}

	masterDB.SetMaxOpenConns(config.AppConfig.MySQL.MaxOpenConns)
	masterDB.SetMaxIdleConns(config.AppConfig.MySQL.MaxIdleConns)
	masterDB.SetConnMaxLifetime(time.Hour)

	if err = masterDB.Ping(); err != nil {
		return nil, fmt.Errorf("主数据库连接测试失败: %w", err)
	}

	slaveDB, err := sql.Open("mysql", config.AppConfig.MySQL.Slave)
	if err != nil {
		return nil, fmt.Errorf("连接从数据库失败: %w", err)
	}

	slaveDB.SetMaxOpenConns(config.AppConfig.MySQL.MaxOpenConns)
	slaveDB.SetMaxIdleConns(config.AppConfig.MySQL.MaxIdleConns)
	slaveDB.SetConnMaxLifetime(time.Hour)

	if err = slaveDB.Ping(); err != nil {
		log.Printf("从数据库连接测试失败: %v，将使用主数据库代替", err)
		slaveDB = masterDB
	}

	return &MySQLRepository{
		masterDB: masterDB,
		slaveDB:  slaveDB,
	}, nil
}

// isDuplicateKey 判断是否为唯一键冲突
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

const roundColumns = `id, period_code, unit_price, currency, total_shares, sold_shares,
	user_cap, buyout_price, start_at, end_at, draw_scheduled_at, drawn_at,
	winning_ticket_id, status, created_at, updated_at`

// scanRound 从一行查询结果构造期次模型
func scanRound(row interface{ Scan(...any) error }) (*model.Round, error) {
	var (
		r         model.Round
		userCap   sql.NullInt64
		schedAt   sql.NullTime
		drawnAt   sql.NullTime
		winTicket sql.NullString
	)
	err := row.Scan(&r.ID, &r.PeriodCode, &r.UnitPrice, &r.Currency, &r.TotalShares, &r.SoldShares,
		&userCap, &r.BuyoutPrice, &r.StartAt, &r.EndAt, &schedAt, &drawnAt,
		&winTicket, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if userCap.Valid {
		r.UserCap = model.CapOf(int(userCap.Int64))
	} else {
		r.UserCap = model.UnlimitedCap()
	}
	if schedAt.Valid {
		t := schedAt.Time
		r.DrawScheduledAt = &t
	}
	if drawnAt.Valid {
		t := drawnAt.Time
		r.DrawnAt = &t
	}
	r.WinningTicketID = winTicket.String
	return &r, nil
}

// CreateRound 创建期次。期次编号冲突时返回 ErrDuplicatePeriodCode，由调用方重新生成编号重试。
func (r *MySQLRepository) CreateRound(ctx context.Context, round *model.Round) (*model.Round, error) {
	var userCap sql.NullInt64
	if round.UserCap.Limited {
		userCap = sql.NullInt64{Int64: int64(round.UserCap.Max), Valid: true}
	}

	now := time.Now()
	result, err := r.masterDB.ExecContext(ctx,
		`INSERT INTO rounds (period_code, unit_price, currency, total_shares, sold_shares,
			user_cap, buyout_price, start_at, end_at, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`,
		round.PeriodCode, round.UnitPrice, round.Currency, round.TotalShares,
		userCap, round.BuyoutPrice, round.StartAt, round.EndAt, round.Status, now, now)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicatePeriodCode
		}
		return nil, fmt.Errorf("创建期次失败: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("获取期次ID失败: %w", err)
	}

	created := *round
	created.ID = id
	created.SoldShares = 0
	created.CreatedAt = now
	created.UpdatedAt = now
	return &created, nil
}

// GetRound 按期次编号查询
func (r *MySQLRepository) GetRound(ctx context.Context, periodCode string) (*model.Round, error) {
	row := r.slaveDB.QueryRowContext(ctx,
		"SELECT "+roundColumns+" FROM rounds WHERE period_code = ?", periodCode)
	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("查询期次失败: %w", err)
	}
	return round, nil
}

// GetRoundByID 按主键查询（走主库，开奖路径需要最新状态）
func (r *MySQLRepository) GetRoundByID(ctx context.Context, id int64) (*model.Round, error) {
	row := r.masterDB.QueryRowContext(ctx,
		"SELECT "+roundColumns+" FROM rounds WHERE id = ?", id)
	round, err := scanRound(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("查询期次失败: %w", err)
	}
	return round, nil
}

// ListRoundsByStatus 按状态列出期次
func (r *MySQLRepository) ListRoundsByStatus(ctx context.Context, status model.RoundStatus, limit int) ([]*model.Round, error) {
	rows, err := r.slaveDB.QueryContext(ctx,
		"SELECT "+roundColumns+" FROM rounds WHERE status = ? ORDER BY id DESC LIMIT ?", status, limit)
	if err != nil {
		return nil, fmt.Errorf("按状态查询期次失败: %w", err)
	}
	defer rows.Close()

	var rounds []*model.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描期次失败: %w", err)
		}
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代期次失败: %w", err)
	}
	return rounds, nil
}

// ActivateDueRounds 把到达开售时间的 PENDING 期次置为 ACTIVE
func (r *MySQLRepository) ActivateDueRounds(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.masterDB.ExecContext(ctx,
		"UPDATE rounds SET status = ?, updated_at = ? WHERE status = ? AND start_at <= ?",
		model.RoundStatusActive, now, model.RoundStatusPending, now)
	if err != nil {
		return 0, fmt.Errorf("激活期次失败: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("获取激活结果失败: %w", err)
	}
	return n, nil
}

// CancelRound 条件更新取消期次，仅 PENDING/ACTIVE 可取消
func (r *MySQLRepository) CancelRound(ctx context.Context, roundID int64) (bool, error) {
	result, err := r.masterDB.ExecContext(ctx,
		"UPDATE rounds SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)",
		model.RoundStatusCancelled, time.Now(), roundID,
		model.RoundStatusPending, model.RoundStatusActive)
	if err != nil {
		return false, fmt.Errorf("取消期次失败: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("获取取消结果失败: %w", err)
	}
	return n > 0, nil
}

// ListDueDraws 列出计划开奖时间已到且仍在售卖中的期次
func (r *MySQLRepository) ListDueDraws(ctx context.Context, now time.Time) ([]*model.Round, error) {
	rows, err := r.masterDB.QueryContext(ctx,
		"SELECT "+roundColumns+` FROM rounds
		 WHERE status = ? AND draw_scheduled_at IS NOT NULL AND draw_scheduled_at <= ?`,
		model.RoundStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("查询待开奖期次失败: %w", err)
	}
	defer rows.Close()

	var rounds []*model.Round
	for rows.Next() {
		round, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描待开奖期次失败: %w", err)
		}
		rounds = append(rounds, round)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代待开奖期次失败: %w", err)
	}
	return rounds, nil
}

// PurchaseTickets 购买份额。
// 预检、剩余份额扣减、份额编号分配在同一事务内完成，期次行锁保证同期购买串行化；
// 本次请求要么全部成交要么全部失败。售罄时在同一事务内写入计划开奖时间，
// 避免"已售罄但无人安排开奖"的窗口。
func (r *MySQLRepository) PurchaseTickets(ctx context.Context, periodCode string, userID int64, quantity int, sellOutDelay time.Duration) (*PurchaseResult, error) {
	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("开始事务失败: %w", err)
	}

	var (
		roundID     int64
		status      model.RoundStatus
		totalShares int
		soldShares  int
		userCap     sql.NullInt64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT id, status, total_shares, sold_shares, user_cap FROM rounds WHERE period_code = ? FOR UPDATE",
		periodCode).Scan(&roundID, &status, &totalShares, &soldShares, &userCap)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("锁定期次失败: %w", err)
	}

	if status != model.RoundStatusActive {
		tx.Rollback()
		return nil, ErrRoundNotActive
	}

	if quantity > totalShares-soldShares {
		tx.Rollback()
		return nil, ErrCapacityExceeded
	}

	limit := model.UnlimitedCap()
	if userCap.Valid {
		limit = model.CapOf(int(userCap.Int64))
	}
	if limit.Limited {
		var owned int
		err = tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM tickets WHERE round_id = ? AND user_id = ?",
			roundID, userID).Scan(&owned)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("查询用户已购份数失败: %w", err)
		}
		if !limit.Allows(owned, quantity) {
			tx.Rollback()
			return nil, ErrPerUserLimitExceeded
		}
	}

	now := time.Now()
	newSold := soldShares + quantity
	soldOut := newSold == totalShares

	var schedAt sql.NullTime
	if soldOut {
		schedAt = sql.NullTime{Time: now.Add(sellOutDelay), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE rounds SET sold_shares = ?, draw_scheduled_at = ?, updated_at = ? WHERE id = ?",
		newSold, schedAt, now, roundID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("更新已售份数失败: %w", err)
	}

	insertStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO tickets (id, round_id, user_id, ticket_number, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("准备份额插入语句失败: %w", err)
	}
	defer insertStmt.Close()

	tickets := make([]model.Ticket, 0, quantity)
	for i := 0; i < quantity; i++ {
		ticket := model.Ticket{
			ID:        uuid.New().String(),
			RoundID:   roundID,
			UserID:    userID,
			Number:    soldShares + i + 1,
			CreatedAt: now,
		}
		if _, err := insertStmt.ExecContext(ctx, ticket.ID, ticket.RoundID, ticket.UserID, ticket.Number, ticket.CreatedAt); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("插入份额编号 %d 失败: %w", ticket.Number, err)
		}
		tickets = append(tickets, ticket)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("提交购买事务失败: %w", err)
	}

	result := &PurchaseResult{Tickets: tickets, SoldOut: soldOut}
	if soldOut {
		result.DrawScheduledAt = schedAt.Time
	}
	return result, nil
}

// ListTickets 列出期次的全部份额（开奖与验证的输入，走主库保证完整）
func (r *MySQLRepository) ListTickets(ctx context.Context, roundID int64) ([]model.Ticket, error) {
	rows, err := r.masterDB.QueryContext(ctx,
		"SELECT id, round_id, user_id, ticket_number, created_at FROM tickets WHERE round_id = ? ORDER BY ticket_number",
		roundID)
	if err != nil {
		return nil, fmt.Errorf("查询期次份额失败: %w", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.RoundID, &t.UserID, &t.Number, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描份额失败: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代份额失败: %w", err)
	}
	return tickets, nil
}

// ListUserTickets 列出用户在某期次下的份额
func (r *MySQLRepository) ListUserTickets(ctx context.Context, roundID, userID int64) ([]model.Ticket, error) {
	rows, err := r.slaveDB.QueryContext(ctx,
		"SELECT id, round_id, user_id, ticket_number, created_at FROM tickets WHERE round_id = ? AND user_id = ? ORDER BY ticket_number",
		roundID, userID)
	if err != nil {
		return nil, fmt.Errorf("查询用户份额失败: %w", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.RoundID, &t.UserID, &t.Number, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描用户份额失败: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代用户份额失败: %w", err)
	}
	return tickets, nil
}

// CreateDrawResult 写入开奖结果并把期次置为 DRAWN。
// 更新带 status=ACTIVE 条件，保证每期至多一条结果；
// 竞态中落败的一方返回 false 而非错误（良性竞态）。
// 任一步失败整个事务回滚，期次保持 ACTIVE 以便重试。
func (r *MySQLRepository) CreateDrawResult(ctx context.Context, result *model.DrawResult) (bool, error) {
	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("开始事务失败: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE rounds SET status = ?, drawn_at = ?, winning_ticket_id = ?, updated_at = ? WHERE id = ? AND status = ?",
		model.RoundStatusDrawn, result.DrawnAt, result.WinningTicketID, result.DrawnAt,
		result.RoundID, model.RoundStatusActive)
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("更新期次状态失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return false, fmt.Errorf("获取状态更新结果失败: %w", err)
	}
	if n == 0 {
		// 期次已不在 ACTIVE：另一侧触发先完成了开奖，或期次被取消
		tx.Rollback()
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO draw_results (round_id, period_code, winning_number, winning_ticket_id,
			winning_user_id, timestamp_sum, share_count, algorithm, forced, drawn_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RoundID, result.PeriodCode, result.WinningNumber, result.WinningTicketID,
		result.WinningUserID, result.TimestampSum, result.ShareCount, result.Algorithm,
		result.Forced, result.DrawnAt)
	if err != nil {
		tx.Rollback()
		if isDuplicateKey(err) {
			// 状态机保证不会走到这里，出现即为数据被绕过状态机修改
			return false, fmt.Errorf("完整性错误: 期次 %d 已存在开奖结果: %w", result.RoundID, err)
		}
		return false, fmt.Errorf("写入开奖结果失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("提交开奖事务失败: %w", err)
	}
	return true, nil
}

// GetDrawResult 查询开奖结果
func (r *MySQLRepository) GetDrawResult(ctx context.Context, roundID int64) (*model.DrawResult, error) {
	var dr model.DrawResult
	err := r.masterDB.QueryRowContext(ctx,
		`SELECT round_id, period_code, winning_number, winning_ticket_id, winning_user_id,
			timestamp_sum, share_count, algorithm, forced, drawn_at
		 FROM draw_results WHERE round_id = ?`, roundID).
		Scan(&dr.RoundID, &dr.PeriodCode, &dr.WinningNumber, &dr.WinningTicketID, &dr.WinningUserID,
			&dr.TimestampSum, &dr.ShareCount, &dr.Algorithm, &dr.Forced, &dr.DrawnAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDrawResultNotFound
		}
		return nil, fmt.Errorf("查询开奖结果失败: %w", err)
	}
	return &dr, nil
}

const algorithmColumns = "name, display_name, description, formula, active, is_default, params, created_at, updated_at"

// ListAlgorithms 列出全部开奖算法配置
func (r *MySQLRepository) ListAlgorithms(ctx context.Context) ([]model.DrawAlgorithm, error) {
	rows, err := r.slaveDB.QueryContext(ctx,
		"SELECT "+algorithmColumns+" FROM draw_algorithms ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("查询算法配置失败: %w", err)
	}
	defer rows.Close()

	var algos []model.DrawAlgorithm
	for rows.Next() {
		var a model.DrawAlgorithm
		if err := rows.Scan(&a.Name, &a.DisplayName, &a.Description, &a.Formula,
			&a.Active, &a.IsDefault, &a.Params, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("扫描算法配置失败: %w", err)
		}
		algos = append(algos, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代算法配置失败: %w", err)
	}
	return algos, nil
}

// GetDefaultAlgorithm 查询当前默认算法（开奖路径，走主库）
func (r *MySQLRepository) GetDefaultAlgorithm(ctx context.Context) (*model.DrawAlgorithm, error) {
	var a model.DrawAlgorithm
	err := r.masterDB.QueryRowContext(ctx,
		"SELECT "+algorithmColumns+" FROM draw_algorithms WHERE is_default = 1 AND active = 1").
		Scan(&a.Name, &a.DisplayName, &a.Description, &a.Formula,
			&a.Active, &a.IsDefault, &a.Params, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlgorithmNotFound
		}
		return nil, fmt.Errorf("查询默认算法失败: %w", err)
	}
	return &a, nil
}

// SetDefaultAlgorithm 设置默认算法。先清掉旧默认再设新默认，
// 同一事务内完成，保证任意时刻至多一个默认算法。
func (r *MySQLRepository) SetDefaultAlgorithm(ctx context.Context, name string) error {
	tx, err := r.masterDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	var active bool
	err = tx.QueryRowContext(ctx,
		"SELECT active FROM draw_algorithms WHERE name = ? FOR UPDATE", name).Scan(&active)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAlgorithmNotFound
		}
		return fmt.Errorf("锁定算法配置失败: %w", err)
	}
	if !active {
		tx.Rollback()
		return ErrAlgorithmInactive
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		"UPDATE draw_algorithms SET is_default = 0, updated_at = ? WHERE is_default = 1", now); err != nil {
		tx.Rollback()
		return fmt.Errorf("清除旧默认算法失败: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE draw_algorithms SET is_default = 1, updated_at = ? WHERE name = ?", now, name); err != nil {
		tx.Rollback()
		return fmt.Errorf("设置默认算法失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交默认算法事务失败: %w", err)
	}
	return nil
}

// SetAlgorithmActive 启用/停用算法。默认算法不可停用。
func (r *MySQLRepository) SetAlgorithmActive(ctx context.Context, name string, active bool) error {
	var query string
	if active {
		query = "UPDATE draw_algorithms SET active = 1, updated_at = ? WHERE name = ?"
	} else {
		query = "UPDATE draw_algorithms SET active = 0, updated_at = ? WHERE name = ? AND is_default = 0"
	}
	result, err := r.masterDB.ExecContext(ctx, query, time.Now(), name)
	if err != nil {
		return fmt.Errorf("更新算法启用状态失败: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取算法更新结果失败: %w", err)
	}
	if n == 0 {
		var exists int
		if err := r.masterDB.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM draw_algorithms WHERE name = ?", name).Scan(&exists); err == nil && exists == 0 {
			return ErrAlgorithmNotFound
		}
		return fmt.Errorf("算法 %s 为当前默认算法，不可停用", name)
	}
	return nil
}

// UpsertAlgorithm 登记算法元数据（启动时注册内置算法，不覆盖运营方改过的开关）
func (r *MySQLRepository) UpsertAlgorithm(ctx context.Context, algo *model.DrawAlgorithm) error {
	now := time.Now()
	_, err := r.masterDB.ExecContext(ctx,
		`INSERT INTO draw_algorithms (name, display_name, description, formula, active, is_default, params, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		 display_name = VALUES(display_name),
		 description = VALUES(description),
		 formula = VALUES(formula),
		 updated_at = VALUES(updated_at)`,
		algo.Name, algo.DisplayName, algo.Description, algo.Formula,
		algo.Active, algo.IsDefault, algo.Params, now, now)
	if err != nil {
		return fmt.Errorf("登记算法 %s 失败: %w", algo.Name, err)
	}
	return nil
}

// RecordFulfillment 记录中奖交割，round_id 唯一键保证同一期次重复投递只生效一次
func (r *MySQLRepository) RecordFulfillment(ctx context.Context, event *model.FulfillmentEvent) (bool, error) {
	result, err := r.masterDB.ExecContext(ctx,
		`INSERT IGNORE INTO fulfillments (round_id, period_code, ticket_id, ticket_number, user_id, drawn_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.RoundID, event.PeriodCode, event.TicketID, event.TicketNumber, event.UserID, event.DrawnAt, time.Now())
	if err != nil {
		return false, fmt.Errorf("记录中奖交割失败: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("获取交割记录结果失败: %w", err)
	}
	return n > 0, nil
}

// Close 关闭数据库连接
func (r *MySQLRepository) Close() {
	if r.masterDB != nil {
		r.masterDB.Close()
	}
	if r.slaveDB != nil && r.slaveDB != r.masterDB {
		r.slaveDB.Close()
	}
}

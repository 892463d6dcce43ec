package database

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// GenerationStat 某个后端一天的生成统计。
type GenerationStat struct {
	Backend       string `json:"backend"`
	Date          string `json:"date"`
	Count         int    `json:"count"`
	FallbackCount int    `json:"fallback_count"`
	FailureCount  int    `json:"failure_count"`
}

// StatsStore 生成统计，实现 tts.StatsRecorder。
type StatsStore struct {
	db  *DB
	now func() time.Time
}

// NewStatsStore 创建统计存储。
func NewStatsStore(db *DB) *StatsStore {
	return &StatsStore{db: db, now: time.Now}
}

// Record 记录一次生成结果。
func (s *StatsStore) Record(backend string, fallback, failed bool) error {
	_, err := s.db.Exec(`
		INSERT INTO generation_stats (backend, date, count, fallback_count, failure_count)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(backend, date) DO UPDATE SET
			count = count + 1,
			fallback_count = fallback_count + excluded.fallback_count,
			failure_count = failure_count + excluded.failure_count,
			updated_at = CURRENT_TIMESTAMP`,
		backend, s.today(), boolToInt(fallback), boolToInt(failed))
	if err != nil {
		return fmt.Errorf("写入生成统计失败: %w", err)
	}
	return nil
}

// Today 返回今天各后端的统计，按后端名排序。
func (s *StatsStore) Today() ([]GenerationStat, error) {
	return s.On(s.today())
}

// On 返回指定日期（YYYY-MM-DD）的统计。
func (s *StatsStore) On(date string) ([]GenerationStat, error) {
	rows, err := s.db.Query(`
		SELECT backend, date, count, fallback_count, failure_count
		FROM generation_stats WHERE date = ? ORDER BY backend`, date)
	if err != nil {
		return nil, fmt.Errorf("查询生成统计失败: %w", err)
	}
	defer rows.Close()

	stats := make([]GenerationStat, 0)
	for rows.Next() {
		var st GenerationStat
		if err := rows.Scan(&st.Backend, &st.Date, &st.Count, &st.FallbackCount, &st.FailureCount); err != nil {
			return nil, fmt.Errorf("读取生成统计失败: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *StatsStore) today() string {
	return s.now().Format(dateLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

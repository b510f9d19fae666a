package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/config"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/domain"
)

var (
	ErrNotFound        = errors.New("编辑会话不存在或已过期")
	ErrVersionConflict = errors.New("编辑会话已被修改，请刷新后重试")
)

const keyPrefix = "timesheet_session_"

// Session 是一次月表编辑的快照
type Session struct {
	ID      string           `json:"sessionID"`
	Version int64            `json:"version"`
	Grid    domain.MonthGrid `json:"grid"`
	// 保存到数据库后记录对应的月表，之后的保存走更新
	TimesheetID      int64 `json:"timesheetID,omitempty"`
	TimesheetVersion int32 `json:"timesheetVersion,omitempty"`
}

func Key(id string) string {
	return keyPrefix + id
}

func encode(s *Session) ([]byte, error) {
	return json.Marshal(s)
}

func decode(data []byte) (*Session, error) {
	s := &Session{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

type Store struct {
	rdb *redis.Client
	cfg *config.Config
}

func NewStore(rdb *redis.Client, cfg *config.Config) *Store {
	return &Store{
		rdb: rdb,
		cfg: cfg,
	}
}

func (s *Store) expiration() time.Duration {
	return time.Duration(s.cfg.Session.Expiration) * time.Second
}

func (s *Store) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), time.Duration(s.cfg.Session.OperationTimeout)*time.Second)
}

// Create 为 grid 打开一个新的编辑会话，saved 不为空时表示 grid 来自已保存的月表
func (s *Store) Create(grid *domain.MonthGrid, saved *domain.Timesheet) (*Session, error) {
	ctx, cancel := s.context()
	defer cancel()

	sess := &Session{
		ID:      uuid.NewString(),
		Version: 1,
		Grid:    *grid,
	}
	if saved != nil {
		sess.TimesheetID = saved.ID
		sess.TimesheetVersion = saved.Version
	}

	data, err := encode(sess)
	if err != nil {
		return nil, err
	}

	if err := s.rdb.Set(ctx, Key(sess.ID), data, s.expiration()).Err(); err != nil {
		return nil, err
	}

	return sess, nil
}

func (s *Store) Get(id string) (*Session, error) {
	ctx, cancel := s.context()
	defer cancel()

	data, err := s.rdb.Get(ctx, Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return decode(data)
}

// Update 在版本号等于 expectedVersion 时用 fn 修改会话并写回，版本号加一
func (s *Store) Update(id string, expectedVersion int64, fn func(sess *Session) error) (*Session, error) {
	ctx, cancel := s.context()
	defer cancel()

	key := Key(id)
	var updated *Session

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		sess, err := decode(data)
		if err != nil {
			return err
		}
		if sess.Version != expectedVersion {
			return ErrVersionConflict
		}

		if err := fn(sess); err != nil {
			return err
		}
		sess.ID = id
		sess.Version = expectedVersion + 1

		data, err = encode(sess)
		if err != nil {
			return err
		}

		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.expiration())
			return nil
		}); err != nil {
			return err
		}

		updated = sess
		return nil
	}

	if err := s.rdb.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrVersionConflict
		}
		return nil, err
	}

	return updated, nil
}

func (s *Store) Delete(id string) error {
	ctx, cancel := s.context()
	defer cancel()

	if err := s.rdb.Del(ctx, Key(id)).Err(); err != nil {
		return fmt.Errorf("删除编辑会话失败: %w", err)
	}

	return nil
}

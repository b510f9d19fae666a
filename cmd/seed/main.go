package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/config"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/repository"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/seed"
	"github.com/sysu-ecnc-dev/timesheet/backend/internal/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var year int
	var month int
	var dir string

	now := time.Now()
	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机员工, 2: 为在职员工插入随机班次, 3: 导入真实数据)")
	flag.IntVar(&n, "n", 5, "要插入的员工数量")
	flag.IntVar(&year, "year", now.Year(), "班次所在的年份")
	flag.IntVar(&month, "month", int(now.Month()), "班次所在的月份")
	flag.StringVar(&dir, "dir", "./internal/seed/data", "真实数据所在的目录")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("无法读取 .env 文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := utils.ValidateYearMonth(year, time.Month(month)); err != nil {
		logger.Error("年月不合法", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	// 创建 repository
	repo := repository.NewRepository(cfg, dbpool)

	// 执行操作
	switch op {
	case 0:
		slog.Error("未指定操作")
	case 1:
		if n <= 0 {
			slog.Error("请输入合法的员工数量")
		} else {
			cnt := n
			for i := 0; i < n; i++ {
				employee := utils.GenerateRandomEmployee(cfg.Seed.EmailDomain)
				if err := repo.CreateEmployee(employee); err != nil {
					slog.Error("无法插入员工", slog.String("error", err.Error()))
					continue
				}

				cnt--
			}

			slog.Info("插入员工成功", slog.Int("count", n-cnt))
		}
	case 2:
		cnt, err := seed.SeedRandomShifts(repo, cfg, year, time.Month(month))
		if err != nil {
			slog.Error("无法插入随机班次", slog.String("error", err.Error()))
			return
		}

		slog.Info("插入班次成功", slog.Int("count", cnt))
	case 3:
		seed.SeedRealData(repo, cfg, dir, year, time.Month(month))
	default:
		slog.Error("指定的操作非法")
	}
}

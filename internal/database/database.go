package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"linkpad.com/p/internal/model"
)

// DB 数据库连接
var DB *sql.DB

// InitDB 初始化 SQLite 数据库，创建必要的表结构。
// 如果数据库文件不存在，会自动创建。如果表已存在，不会重复创建。
// 参数：
//   - dbPath: 数据库文件路径
//
// 返回：错误（如果有）
func InitDB(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("创建数据库目录失败: %w", err)
	}

	var err error
	DB, err = sql.Open("sqlite3", dbPath+"?_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("打开数据库失败: %w", err)
	}

	if err := DB.Ping(); err != nil {
		return fmt.Errorf("数据库连接测试失败: %w", err)
	}

	if err := createTables(); err != nil {
		return fmt.Errorf("创建表失败: %w", err)
	}

	return nil
}

// createTables 创建数据库表
func createTables() error {
	// 应用配置表（键值对：模式、端口、系统代理开关、代理组选择等）
	createAppConfigTable := `
	CREATE TABLE IF NOT EXISTS app_config (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL UNIQUE,
		value TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`

	// 配置文件表，position 保存列表顺序
	createProfilesTable := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL DEFAULT '{}',
		raw_config TEXT NOT NULL DEFAULT ''
	);`

	createIndexes := `
	CREATE INDEX IF NOT EXISTS idx_profiles_position ON profiles(position);
	`

	for _, stmt := range []string{createAppConfigTable, createProfilesTable, createIndexes} {
		if _, err := DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CloseDB 关闭数据库连接
func CloseDB() error {
	if DB == nil {
		return nil
	}
	err := DB.Close()
	DB = nil
	return err
}

// SetAppConfig 写入应用配置（存在则更新）。
// 参数：
//   - key: 配置键名
//   - value: 配置值
//
// 返回：错误（如果有）
func SetAppConfig(key, value string) error {
	now := time.Now()
	_, err := DB.Exec(
		`INSERT INTO app_config (key, value, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?`,
		key, value, now, now, value, now,
	)
	if err != nil {
		return fmt.Errorf("设置应用配置失败: %w", err)
	}
	return nil
}

// GetAppConfig 从数据库的 app_config 表获取应用配置。
// 参数：
//   - key: 配置键名
//
// 返回：配置值和错误（未找到时返回空字符串）
func GetAppConfig(key string) (string, error) {
	var value string
	err := DB.QueryRow("SELECT value FROM app_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("获取应用配置失败: %w", err)
	}
	return value, nil
}

// GetAllAppConfig 读取全部应用配置
func GetAllAppConfig() (map[string]string, error) {
	rows, err := DB.Query("SELECT key, value FROM app_config")
	if err != nil {
		return nil, fmt.Errorf("获取应用配置失败: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("读取应用配置失败: %w", err)
		}
		values[key] = value
	}
	return values, rows.Err()
}

// SetAppConfigs 在一个事务中写入多项配置
func SetAppConfigs(values map[string]string) error {
	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for key, value := range values {
		if _, err := tx.Exec(
			`INSERT INTO app_config (key, value, created_at, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?`,
			key, value, now, now, value, now,
		); err != nil {
			return fmt.Errorf("设置应用配置失败: %w", err)
		}
	}
	return tx.Commit()
}

// ReplaceProfiles 用给定列表整体替换 profiles 表，保持顺序。
// 参数：
//   - profiles: 配置文件列表
//
// 返回：错误（如果有）
func ReplaceProfiles(profiles []model.Profile) error {
	tx, err := DB.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM profiles"); err != nil {
		return fmt.Errorf("清空配置文件失败: %w", err)
	}

	for i, p := range profiles {
		content, err := json.Marshal(p.ProfileContent)
		if err != nil {
			return fmt.Errorf("序列化配置文件 %s 失败: %w", p.ID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO profiles (id, position, name, source_url, updated_at, active, content, raw_config)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, i, p.Name, p.SourceURL, p.UpdatedAt, boolToInt(p.Active), string(content), p.RawConfig,
		); err != nil {
			return fmt.Errorf("保存配置文件 %s 失败: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// GetAllProfiles 按保存顺序读取全部配置文件
func GetAllProfiles() ([]model.Profile, error) {
	rows, err := DB.Query(
		`SELECT id, source_url, updated_at, active, content, raw_config
		 FROM profiles ORDER BY position ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("查询配置文件失败: %w", err)
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		var (
			p       model.Profile
			active  int
			content string
		)
		if err := rows.Scan(&p.ID, &p.SourceURL, &p.UpdatedAt, &active, &content, &p.RawConfig); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &p.ProfileContent); err != nil {
			return nil, fmt.Errorf("解析配置文件 %s 失败: %w", p.ID, err)
		}
		p.Active = intToBool(active)
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// boolToInt 将布尔值转换为整数
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// intToBool 将整数转换为布尔值
func intToBool(i int) bool {
	return i != 0
}

package botconfig

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// SQL reads the active token from telegram_config and the active admins
// from telegram_admins.
type SQL struct {
	DB *sql.DB
}

// OpenDB opens a database/sql handle. driver is "pgx" (PostgreSQL) or
// "sqlite3".
func OpenDB(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "pgx", "postgres":
		driver = "pgx"
	case "sqlite", "sqlite3":
		driver = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported bot config db driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return db, nil
}

func (s SQL) Load(ctx context.Context) (*BotConfig, error) {
	if s.DB == nil {
		return nil, nil
	}
	var token sql.NullString
	err := s.DB.QueryRowContext(ctx,
		`SELECT bot_token FROM telegram_config WHERE is_active = TRUE ORDER BY id LIMIT 1`).Scan(&token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query telegram_config: %w", err)
	}
	if strings.TrimSpace(token.String) == "" {
		return nil, nil
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT chat_id FROM telegram_admins WHERE is_active = TRUE`)
	if err != nil {
		return nil, fmt.Errorf("query telegram_admins: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan telegram_admins: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &BotConfig{Token: strings.TrimSpace(token.String), AdminChatIDs: splitIDs(ids), Source: "database"}, nil
}

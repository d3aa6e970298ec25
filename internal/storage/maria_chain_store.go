package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/annel0/portalnet/internal/chain"
	"github.com/annel0/portalnet/internal/world/block"
	_ "github.com/go-sql-driver/mysql"
)

// MariaChainStore реализует ChainStore для MariaDB/MySQL.
// Использует таблицу portal_chains: одна строка на цепочку, паттерн и узлы в JSON.
type MariaChainStore struct {
	db *sql.DB
}

// NewMariaChainStore подключается к базе и создаёт таблицу, если её нет.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaChainStore(ctx context.Context, dsn string) (*MariaChainStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	store := &MariaChainStore{db: db}
	if err := store.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return store, nil
}

// createTable создаёт таблицу portal_chains, если она не существует
func (s *MariaChainStore) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS portal_chains (
			id         INT         PRIMARY KEY,
			pattern    TEXT        NOT NULL,
			books      MEDIUMTEXT  NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE   CURRENT_TIMESTAMP
		) ENGINE=InnoDB
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ошибка создания таблицы portal_chains: %w", err)
	}
	return nil
}

// Load читает все цепочки
func (s *MariaChainStore) Load(ctx context.Context) (chain.Document, error) {
	var doc chain.Document

	rows, err := s.db.QueryContext(ctx, `SELECT id, pattern, books FROM portal_chains ORDER BY id`)
	if err != nil {
		return doc, fmt.Errorf("ошибка чтения цепочек: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec            chain.ChainRecord
			pattern, books string
		)
		if err := rows.Scan(&rec.ID, &pattern, &books); err != nil {
			return doc, fmt.Errorf("ошибка чтения строки: %w", err)
		}
		if err := json.Unmarshal([]byte(pattern), &rec.Pattern); err != nil {
			return doc, fmt.Errorf("цепочка %d: повреждён паттерн: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(books), &rec.Books); err != nil {
			return doc, fmt.Errorf("цепочка %d: повреждён список узлов: %w", rec.ID, err)
		}
		doc.Chains = append(doc.Chains, rec)
	}
	return doc, rows.Err()
}

// Save заменяет содержимое таблицы в одной транзакции
func (s *MariaChainStore) Save(ctx context.Context, doc chain.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM portal_chains`); err != nil {
		return fmt.Errorf("ошибка очистки portal_chains: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO portal_chains (id, pattern, books) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for _, rec := range doc.Chains {
		pattern, err := json.Marshal(nonNilPattern(rec.Pattern))
		if err != nil {
			return err
		}
		books, err := json.Marshal(nonNilBooks(rec.Books))
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, string(pattern), string(books)); err != nil {
			return fmt.Errorf("ошибка сохранения цепочки %d: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

// Close закрывает соединение с базой данных
func (s *MariaChainStore) Close() error {
	return s.db.Close()
}

func nonNilPattern(p []block.Type) []block.Type {
	if p == nil {
		return []block.Type{}
	}
	return p
}

func nonNilBooks(b []chain.NodeLocation) []chain.NodeLocation {
	if b == nil {
		return []chain.NodeLocation{}
	}
	return b
}

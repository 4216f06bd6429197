//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides a session.Service backed by a SQLite database.
// The caller opens the *sql.DB with a registered driver, e.g. github.com/mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-agent-turn/log"
	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/session"
)

const (
	sqliteCreateThreads = "CREATE TABLE IF NOT EXISTS threads (" +
		"thread_id TEXT NOT NULL PRIMARY KEY, " +
		"version INTEGER NOT NULL, " +
		"messages_json BLOB NOT NULL, " +
		"state_json BLOB NOT NULL, " +
		"created_at INTEGER NOT NULL, " +
		"updated_at INTEGER NOT NULL" +
		")"

	sqliteSelectThread = "SELECT version, messages_json, state_json, created_at, updated_at " +
		"FROM threads WHERE thread_id = ?"

	// Insert only succeeds for a thread that has never been committed.
	sqliteInsertThread = "INSERT OR IGNORE INTO threads (" +
		"thread_id, version, messages_json, state_json, created_at, updated_at) " +
		"VALUES (?, 1, ?, ?, ?, ?)"

	// Update only succeeds when the stored version is the one the commit is based on.
	sqliteUpdateThread = "UPDATE threads SET version = version + 1, messages_json = ?, state_json = ?, " +
		"updated_at = ? WHERE thread_id = ? AND version = ?"

	sqliteDeleteThread = "DELETE FROM threads WHERE thread_id = ?"
)

var _ session.Service = (*Service)(nil)

// Service stores each thread as one row with JSON encoded messages and state.
type Service struct {
	db *sql.DB
}

// NewService creates the threads table if needed.
func NewService(db *sql.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateThreads); err != nil {
		return nil, fmt.Errorf("create threads table: %w", err)
	}
	return &Service{db: db}, nil
}

// Load implements session.Service.
func (s *Service) Load(ctx context.Context, threadID string) (*session.Thread, error) {
	if threadID == "" {
		return nil, session.ErrThreadIDRequired
	}
	var (
		version              int64
		msgJSON, stateJSON   []byte
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, sqliteSelectThread, threadID).
		Scan(&version, &msgJSON, &stateJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return session.NewThread(threadID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("select thread %s: %w", threadID, err)
	}
	t := &session.Thread{
		ID:        threadID,
		Version:   version,
		CreatedAt: time.Unix(0, createdAt),
		UpdatedAt: time.Unix(0, updatedAt),
	}
	if err := json.Unmarshal(msgJSON, &t.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages of thread %s: %w", threadID, err)
	}
	if err := json.Unmarshal(stateJSON, &t.State); err != nil {
		return nil, fmt.Errorf("unmarshal state of thread %s: %w", threadID, err)
	}
	if t.Messages == nil {
		t.Messages = []model.Message{}
	}
	if t.State == nil {
		t.State = session.StateMap{}
	}
	return t, nil
}

// Commit implements session.Service.
func (s *Service) Commit(ctx context.Context, t *session.Thread) error {
	if t == nil || t.ID == "" {
		return session.ErrThreadIDRequired
	}
	msgs := t.Messages
	if msgs == nil {
		msgs = []model.Message{}
	}
	msgJSON, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	state := t.State
	if state == nil {
		state = session.StateMap{}
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	now := time.Now()
	var res sql.Result
	if t.Version == 0 {
		res, err = s.db.ExecContext(ctx, sqliteInsertThread,
			t.ID, msgJSON, stateJSON, now.UnixNano(), now.UnixNano())
	} else {
		res, err = s.db.ExecContext(ctx, sqliteUpdateThread,
			msgJSON, stateJSON, now.UnixNano(), t.ID, t.Version)
	}
	if err != nil {
		return fmt.Errorf("commit thread %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit thread %s: %w", t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: thread %s changed since version %d", session.ErrVersionConflict, t.ID, t.Version)
	}
	if t.Version == 0 {
		t.CreatedAt = now
	}
	t.Version++
	t.UpdatedAt = now
	log.Debugf("sqlite: committed thread %s at version %d", t.ID, t.Version)
	return nil
}

// Delete implements session.Service.
func (s *Service) Delete(ctx context.Context, threadID string) error {
	if threadID == "" {
		return session.ErrThreadIDRequired
	}
	if _, err := s.db.ExecContext(ctx, sqliteDeleteThread, threadID); err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

// Close is a no-op; the caller owns the database handle.
func (s *Service) Close() error {
	return nil
}

package db

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"portfolio-optimizer/internal/engine"
)

// RunRecord is a stored optimization run.
type RunRecord struct {
	ID         string                    `json:"id"`
	CreatedAt  string                    `json:"created_at"`
	Source     string                    `json:"source"`
	DurationMs int64                     `json:"duration_ms"`
	Result     engine.OptimizationResult `json:"result"`
}

// InsertRun stores res and returns the new run's ID.
func (d *DB) InsertRun(res *engine.OptimizationResult, source string, duration time.Duration) (string, error) {
	if res == nil {
		return "", fmt.Errorf("nil result")
	}
	assetsJSON, err := json.Marshal(res.Assets)
	if err != nil {
		return "", err
	}
	weightsJSON, err := json.Marshal(res.Best.Weights)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = d.sql.Exec(
		`INSERT INTO optimization_runs
		 (id, created_at, source, assets_json, weights_json, expected_return, expected_volatility,
		  sharpe, num_samples, seed, workers, duration_ms)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, time.Now().UTC().Format(timeLayout), source, string(assetsJSON), string(weightsJSON),
		res.Best.ExpectedReturn, res.Best.ExpectedVolatility, res.Best.Sharpe,
		res.NumSamples, strconv.FormatUint(res.Seed, 10), res.Workers, duration.Milliseconds(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

const runColumns = `id, created_at, source, assets_json, weights_json, expected_return,
	expected_volatility, sharpe, num_samples, seed, workers, duration_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var r RunRecord
	var assetsJSON, weightsJSON, seed string
	err := s.Scan(&r.ID, &r.CreatedAt, &r.Source, &assetsJSON, &weightsJSON,
		&r.Result.Best.ExpectedReturn, &r.Result.Best.ExpectedVolatility, &r.Result.Best.Sharpe,
		&r.Result.NumSamples, &seed, &r.Result.Workers, &r.DurationMs)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(assetsJSON), &r.Result.Assets); err != nil {
		return r, fmt.Errorf("assets: %w", err)
	}
	if err := json.Unmarshal([]byte(weightsJSON), &r.Result.Best.Weights); err != nil {
		return r, fmt.Errorf("weights: %w", err)
	}
	if r.Result.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return r, fmt.Errorf("seed: %w", err)
	}
	return r, nil
}

// GetRuns returns the last N runs (newest first).
func (d *DB) GetRuns(limit int) []RunRecord {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.Query(
		"SELECT "+runColumns+" FROM optimization_runs ORDER BY created_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return []RunRecord{}
	}
	defer rows.Close()

	records := []RunRecord{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			continue
		}
		records = append(records, r)
	}
	return records
}

// GetRun returns a single run, or nil if it does not exist.
func (d *DB) GetRun(id string) *RunRecord {
	r, err := scanRun(d.sql.QueryRow("SELECT "+runColumns+" FROM optimization_runs WHERE id = ?", id))
	if err != nil {
		return nil
	}
	return &r
}

// DeleteRunsOlderThan removes runs created more than olderThanDays ago.
func (d *DB) DeleteRunsOlderThan(olderThanDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(timeLayout)
	res, err := d.sql.Exec("DELETE FROM optimization_runs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

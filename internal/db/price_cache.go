package db

import (
	"fmt"
	"time"

	"portfolio-optimizer/internal/logger"
)

// GetPriceSeries returns a cached series if it was stored less than maxAge ago.
// A non-positive maxAge accepts any age.
func (d *DB) GetPriceSeries(source, assetID string, maxAge time.Duration) ([]float64, bool) {
	var updatedAt string
	var points int
	err := d.sql.QueryRow(
		"SELECT updated_at, points FROM price_cache_meta WHERE source=? AND asset_id=?",
		source, assetID,
	).Scan(&updatedAt, &points)
	if err != nil {
		return nil, false
	}

	t, err := time.Parse(timeLayout, updatedAt)
	if err != nil || (maxAge > 0 && time.Since(t) > maxAge) {
		return nil, false
	}

	rows, err := d.sql.Query(
		"SELECT price FROM price_cache WHERE source=? AND asset_id=? ORDER BY idx",
		source, assetID,
	)
	if err != nil {
		return nil, false
	}
	defer rows.Close()

	prices := make([]float64, 0, points)
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, false
		}
		prices = append(prices, p)
	}
	// A partial write would leave fewer rows than recorded.
	if rows.Err() != nil || len(prices) == 0 || len(prices) != points {
		return nil, false
	}
	return prices, true
}

// SetPriceSeries replaces the cached series for (source, assetID).
func (d *DB) SetPriceSeries(source, assetID string, prices []float64) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM price_cache WHERE source=? AND asset_id=?", source, assetID); err != nil {
		return fmt.Errorf("clear prices: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO price_cache (source, asset_id, idx, price) VALUES (?,?,?,?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range prices {
		if _, err := stmt.Exec(source, assetID, i, p); err != nil {
			return fmt.Errorf("insert price %d: %w", i, err)
		}
	}

	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO price_cache_meta (source, asset_id, points, updated_at) VALUES (?,?,?,?)",
		source, assetID, len(prices), time.Now().UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("update meta: %w", err)
	}
	return tx.Commit()
}

// CleanupPriceCache drops series not refreshed within olderThan.
func (d *DB) CleanupPriceCache(olderThan time.Duration) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)

	res, err := d.sql.Exec("DELETE FROM price_cache_meta WHERE updated_at < ?", cutoff)
	if err != nil {
		logger.Warn("DB", fmt.Sprintf("CleanupPriceCache: meta delete error: %v", err))
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("DB", fmt.Sprintf("CleanupPriceCache: removed %d stale series", n))
	}

	// Orphaned rows (meta was removed but prices remain)
	res, err = d.sql.Exec(`
		DELETE FROM price_cache
		WHERE (source, asset_id) NOT IN (
			SELECT source, asset_id FROM price_cache_meta
		)
	`)
	if err != nil {
		logger.Warn("DB", fmt.Sprintf("CleanupPriceCache: orphan delete error: %v", err))
	} else if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("DB", fmt.Sprintf("CleanupPriceCache: removed %d orphaned price rows", n))
	}
}

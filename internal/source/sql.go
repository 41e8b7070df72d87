package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/andreiashu/pinbed"
	_ "github.com/lib/pq"
)

// pincodeQuery flattens the hierarchy; rows arrive grouped by pincode then area.
const pincodeQuery = `
SELECT p.id, p.code, p.city, p.state,
       COALESCE(p.latitude, 0), COALESCE(p.longitude, 0),
       a.id, a.name, s.id, s.name
FROM pincodes p
LEFT JOIN areas a ON a.pincode_id = p.id
LEFT JOIN sub_areas s ON s.area_id = a.id
ORDER BY p.position, a.position, s.position`

// SQLLoader reads the dataset from the pincodes, areas and sub_areas tables.
type SQLLoader struct {
	DB *sql.DB
}

// LoadPincodes runs one joined query and rebuilds the hierarchy in row order.
func (l SQLLoader) LoadPincodes(ctx context.Context) ([]pinbed.PincodeRecord, error) {
	rows, err := l.DB.QueryContext(ctx, pincodeQuery)
	if err != nil {
		return nil, fmt.Errorf("querying pincodes: %w", err)
	}
	defer rows.Close()

	records := []pinbed.PincodeRecord{}
	pincodeIdx := make(map[string]int)
	areaIdx := make(map[string]int) // pincode id + "/" + area id → index in Areas

	for rows.Next() {
		var (
			p                    pinbed.PincodeRecord
			areaID, areaName     sql.NullString
			subAreaID, subAreaNm sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Code, &p.City, &p.State, &p.Latitude, &p.Longitude,
			&areaID, &areaName, &subAreaID, &subAreaNm); err != nil {
			return nil, fmt.Errorf("scanning pincode row: %w", err)
		}

		pi, ok := pincodeIdx[p.ID]
		if !ok {
			p.Areas = []pinbed.AreaRecord{}
			records = append(records, p)
			pi = len(records) - 1
			pincodeIdx[p.ID] = pi
		}
		if !areaID.Valid {
			continue
		}

		key := p.ID + "/" + areaID.String
		ai, ok := areaIdx[key]
		if !ok {
			records[pi].Areas = append(records[pi].Areas, pinbed.AreaRecord{
				ID:       areaID.String,
				Name:     areaName.String,
				SubAreas: []pinbed.SubAreaRecord{},
			})
			ai = len(records[pi].Areas) - 1
			areaIdx[key] = ai
		}
		if !subAreaID.Valid {
			continue
		}
		area := &records[pi].Areas[ai]
		area.SubAreas = append(area.SubAreas, pinbed.SubAreaRecord{ID: subAreaID.String, Name: subAreaNm.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pincode rows: %w", err)
	}
	return records, nil
}

// OpenPostgres opens and pings a Postgres pool for SQLLoader.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening PostgreSQL database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to PostgreSQL database: %w", err)
	}
	return db, nil
}

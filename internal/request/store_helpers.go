package request

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"waveq/internal/chain"
)

const requestColumns = "id, status, chain_json, client_id, audio_ref, priority, created_at, updated_at, progress, result_json, error_message"

func scanRequest(scanner interface{ Scan(dest ...any) error }) (*Request, error) {
	var (
		id           string
		statusStr    string
		chainJSON    string
		clientID     sql.NullString
		audioRef     string
		priority     sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		progress     sql.NullFloat64
		resultJSON   sql.NullString
		errorMessage sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&statusStr,
		&chainJSON,
		&clientID,
		&audioRef,
		&priority,
		&createdRaw,
		&updatedRaw,
		&progress,
		&resultJSON,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	req := &Request{
		ID:       id,
		Status:   Status(statusStr),
		ClientID: clientID.String,
		AudioRef: audioRef,
		Priority: priority.String,
		Error:    errorMessage.String,
	}

	if chainJSON != "" {
		var ch chain.Chain
		if err := json.Unmarshal([]byte(chainJSON), &ch); err != nil {
			return nil, err
		}
		req.Chain = ch
	}
	if progress.Valid {
		v := progress.Float64
		req.Progress = &v
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result map[string]any
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, err
		}
		req.Result = result
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		req.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		req.UpdatedAt = updated
	}
	return req, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// WriteNDJSON streams records as newline-delimited JSON
func WriteNDJSON(w io.Writer, records []*PermissionCheckLog) error {
	encoder := json.NewEncoder(w)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("failed to encode audit record: %w", err)
		}
	}
	return nil
}

// WriteCSV streams records as CSV with a header row
func WriteCSV(w io.Writer, records []*PermissionCheckLog) error {
	writer := csv.NewWriter(w)

	header := []string{
		"id", "checked_at", "subject_id", "client_id", "resource",
		"requested_scopes", "granted_scopes", "allowed", "error_code",
		"processing_time_ms", "ip_address", "request_id",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.CheckedAt.UTC().Format(time.RFC3339),
			r.SubjectID,
			r.ClientID,
			r.Resource,
			r.RequestedScopes,
			r.GrantedScopes,
			strconv.FormatBool(r.Allowed),
			r.ErrorCode,
			strconv.FormatInt(r.ProcessingTimeMs, 10),
			r.IPAddress,
			r.RequestID,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

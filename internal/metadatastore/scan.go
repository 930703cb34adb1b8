package metadatastore

import (
	"database/sql"
	"encoding/json"
	"time"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc                                    Document
		category, description, mediaType       sql.NullString
		mediaURL, contentHash, metadataJSON     sql.NullString
		createdAt, updatedAt                    string
	)

	err := row.Scan(
		&doc.DocumentID, &doc.Title, &category, &description, &metadataJSON,
		&doc.Status, &doc.ChunksCount, &createdAt, &updatedAt, &mediaType, &mediaURL, &contentHash,
	)
	if err != nil {
		return nil, err
	}

	doc.Category = category.String
	doc.Description = description.String
	doc.MediaType = mediaType.String
	doc.MediaURL = mediaURL.String
	doc.ContentHash = contentHash.String

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, err
		}
	}

	if doc.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, err
	}

	return &doc, nil
}

func encodeMetadata(m map[string]interface{}) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

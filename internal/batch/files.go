package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LoadIDs reads document IDs from a file. Text files hold one ID per line
// with # comments; .json/.jsonl files hold {"document_id": "..."} lines.
func LoadIDs(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl":
		return loadJSONIDs(file)
	default:
		return loadTextIDs(file)
	}
}

func loadTextIDs(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, scanner.Err()
}

func loadJSONIDs(r io.Reader) ([]string, error) {
	var ids []string
	decoder := json.NewDecoder(r)
	for {
		var item struct {
			DocumentID string `json:"document_id"`
		}
		if err := decoder.Decode(&item); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		if item.DocumentID != "" {
			ids = append(ids, item.DocumentID)
		}
	}
	return ids, nil
}

// SaveResult writes the result as JSON, or as a plain report for other
// extensions.
func SaveResult(path string, result *Result) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := result.ToJSON()
		if err != nil {
			return err
		}
		return os.WriteFile(path, []byte(data), 0644)
	}

	var sb strings.Builder
	sb.WriteString(result.Summary())
	sb.WriteString("\n")
	for _, item := range result.Items {
		status := "OK"
		detail := item.Digest
		if !item.Success {
			status = "FAIL"
			detail = item.Error
		}
		sb.WriteString(fmt.Sprintf("%-4s %s %s\n", status, item.DocumentID, detail))
	}
	return os.WriteFile(path, []byte(sb.String()), 0644)
}

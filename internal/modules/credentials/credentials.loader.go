package credentials

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/waqasmani/hris-autoclock/internal/shared/errors"
	"github.com/waqasmani/hris-autoclock/internal/shared/validator"
	"gopkg.in/yaml.v3"
)

// Load reads the credentials file once. The format follows the extension:
// .yaml/.yml are YAML, anything else JSON. Every entry must carry an
// employee number and a password and at least one entry must exist.
func Load(path string) ([]Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfig, fmt.Sprintf("cannot read credentials file %s", path))
	}
	return Parse(data, formatFor(path))
}

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func formatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes and validates a credentials document.
func Parse(data []byte, format Format) ([]Credential, error) {
	var file File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfig, "credentials file is not valid YAML")
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfig, "credentials file is not valid JSON")
		}
	}

	for i := range file.Credentials {
		file.Credentials[i].EmployeeNumber = strings.TrimSpace(file.Credentials[i].EmployeeNumber)
	}

	if err := validator.New().Validate(file); err != nil {
		return nil, errors.WithDetails(errors.ErrCodeConfig, "credentials file failed validation",
			validator.TranslateValidationErrors(err))
	}

	return file.Credentials, nil
}

// Duplicates returns employee numbers appearing more than once. Duplicates
// are legal; each entry still gets its own agent.
func Duplicates(creds []Credential) []string {
	counts := make(map[string]int, len(creds))
	var dups []string
	for _, c := range creds {
		counts[c.EmployeeNumber]++
		if counts[c.EmployeeNumber] == 2 {
			dups = append(dups, c.EmployeeNumber)
		}
	}
	return dups
}

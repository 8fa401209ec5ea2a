package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ErrNoDestinations is returned when the destinations file holds an empty list.
var ErrNoDestinations = errors.New("config: no destinations configured")

// ConfigError reports a missing or malformed configuration. It is fatal and
// always raised before any network activity.
type ConfigError struct {
	// Path is the file or source that failed, empty for cross-field validation.
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Destination is one publish target, a Facebook page.
type Destination struct {
	ID   string `json:"page_id" validate:"required"`
	Name string `json:"page_name" validate:"required"`
	// AccessToken is optional here; the Graph publisher rejects pages without one.
	AccessToken string `json:"access_token,omitempty"`
}

// String renders the destination for logs without the token.
func (d Destination) String() string {
	return fmt.Sprintf("%s (ID: %s)", d.Name, d.ID)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadDestinations reads the destinations file, a JSON array of page objects.
// The order of the file is preserved.
func LoadDestinations(path string, logger *zap.Logger) ([]Destination, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var dests []Destination
	if err := json.Unmarshal(data, &dests); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("expected a JSON list of pages: %w", err)}
	}
	if len(dests) == 0 {
		return nil, &ConfigError{Path: path, Err: ErrNoDestinations}
	}

	seen := make(map[string]bool, len(dests))
	for i := range dests {
		d := &dests[i]
		d.ID = strings.TrimSpace(d.ID)
		d.Name = strings.TrimSpace(d.Name)
		d.AccessToken = strings.TrimSpace(d.AccessToken)

		if err := validate.Struct(d); err != nil {
			return nil, &ConfigError{Path: path, Err: fmt.Errorf("entry %d: %s", i, describe(err))}
		}
		if seen[d.ID] {
			return nil, &ConfigError{Path: path, Err: fmt.Errorf("entry %d: duplicate page_id %q", i, d.ID)}
		}
		seen[d.ID] = true
	}

	logger.Info("loaded destinations", zap.Int("count", len(dests)))
	for _, d := range dests {
		logger.Info("destination",
			zap.String("page_name", d.Name),
			zap.String("page_id", d.ID),
			zap.Bool("has_token", d.AccessToken != ""))
	}
	return dests, nil
}

// describe turns validator errors into "missing required field" messages
// using the JSON names of the fields.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	names := map[string]string{"ID": "page_id", "Name": "page_name"}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := names[fe.Field()]
		if field == "" {
			field = fe.Field()
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("missing required field '%s'", field))
		default:
			msgs = append(msgs, fmt.Sprintf("field '%s' is invalid", field))
		}
	}
	return strings.Join(msgs, "; ")
}

// DestinationIDs returns the ids in file order.
func DestinationIDs(dests []Destination) []string {
	ids := make([]string, len(dests))
	for i, d := range dests {
		ids[i] = d.ID
	}
	return ids
}

package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/structhub/asset-ingest/internal/store/model"
)

type ErrRowInvalid struct {
	error
}

func NewErrRowInvalid(message string) *ErrRowInvalid {
	return &ErrRowInvalid{fmt.Errorf("invalid row: %s", message)}
}

// ProjectContext carries the ownership an ingested row inherits.
type ProjectContext struct {
	ProjectID    uuid.UUID
	SubProjectID *uuid.UUID
	OrgID        string
}

type elementPayload struct {
	Name        string `validate:"required"`
	ExternalRef string `validate:"required"`
	ElementType string
	Workflow    string
}

var validate = validator.New()

// TransformRow maps a raw spreadsheet row plus project context into an
// element candidate. Rows failing validation return ErrRowInvalid; the error
// is local to the row and must not abort the batch.
func TransformRow(row RawRow, pctx ProjectContext) (*model.Element, error) {
	payload := elementPayload{
		Name:        row["Name"],
		ExternalRef: row["Reference"],
		ElementType: row["Type"],
		Workflow:    row["Workflow"],
	}

	if err := validate.Struct(payload); err != nil {
		return nil, NewErrRowInvalid(err.Error())
	}

	properties := map[string]string{}
	for key, value := range row {
		switch key {
		case "Name", "Reference", "Type", "Workflow":
		default:
			if value != "" {
				properties[key] = value
			}
		}
	}
	rawProperties, err := json.Marshal(properties)
	if err != nil {
		return nil, NewErrRowInvalid(err.Error())
	}

	return &model.Element{
		ID:           uuid.New(),
		Name:         payload.Name,
		ExternalRef:  payload.ExternalRef,
		ProjectID:    pctx.ProjectID,
		SubProjectID: pctx.SubProjectID,
		OrgID:        pctx.OrgID,
		ElementType:  payload.ElementType,
		Workflow:     payload.Workflow,
		Properties:   rawProperties,
	}, nil
}

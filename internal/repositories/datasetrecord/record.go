package datasetrecord

import (
	"encoding/json"

	"github.com/Ramsey-B/sage/pkg/models"
)

func toPipelineRecord(row models.DatasetRecord) (models.Record, error) {
	var data map[string]any
	if err := json.Unmarshal(row.Data, &data); err != nil {
		return models.Record{}, err
	}
	return models.Record{Ref: row.RecordRef, Data: data}, nil
}

package pipelines

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"sigs.k8s.io/yaml"
)

// LoadFile reads a pipeline from a JSON or YAML file. The file must hold an array of stages written in
// MongoDB Extended JSON, or its YAML equivalent; ".yaml" and ".yml" files are converted to JSON first.
//
// YAML mappings come out with their keys sorted, so a stage whose field order matters, such as a
// $sort on several keys, has to be written in JSON.
func LoadFile(path string) (mongo.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.YAMLToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("convert %s to json: %w", path, err)
		}
	}

	pipeline, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return pipeline, nil
}

// Parse decodes an Extended JSON array of stages, keeping the field order of every stage.
func Parse(data []byte) (mongo.Pipeline, error) {
	// Extended JSON only decodes documents, so the array is wrapped in one
	wrapped := append(append([]byte(`{"pipeline":`), data...), '}')
	var holder struct {
		Pipeline []bson.D `bson:"pipeline"`
	}
	if err := bson.UnmarshalExtJSON(wrapped, false, &holder); err != nil {
		return nil, err
	}
	if holder.Pipeline == nil {
		return nil, fmt.Errorf("pipeline must be an array of stages")
	}
	return mongo.Pipeline(holder.Pipeline), nil
}

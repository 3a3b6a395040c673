package eigen

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/conneroisu/eigen/pkg/torch"
)

// LivePath returns the path of the continuously updated sibling of a weights
// file: "model.json" becomes "model_live.json". Paths without a .json suffix
// are returned unchanged.
func LivePath(path string) string {
	base, ok := strings.CutSuffix(path, ".json")
	if !ok || strings.HasSuffix(base, "_live") {
		return path
	}
	return base + "_live.json"
}

// LoadModel loads a model from the weights file at path.
func LoadModel(path string) (*Model, error) {
	if path == "" {
		return nil, fmt.Errorf("model file path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening model file: %w", err)
	}
	defer f.Close()
	model, err := ReadModel(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("error reading model file %s: %w", path, err)
	}
	return model, nil
}

// ReadModel decodes a weights document.
//
// Tensor shapes come from the config; values missing from the document stay
// zero, surplus values and unknown keys are ignored, and layers beyond
// min(n_layers, MaxLayers) are skipped.
func ReadModel(r io.Reader) (*Model, error) {
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode weights: %w", err)
	}
	raw, ok := doc["config"]
	if !ok {
		return nil, fmt.Errorf("weights have no config")
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	model, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	if err := readMatrix(doc, "token_embeddings", model.Params.TokenEmbed); err != nil {
		return nil, err
	}
	if err := readMatrix(doc, "output_proj", model.Params.OutputProj); err != nil {
		return nil, err
	}
	if raw, ok := doc["layers"]; ok {
		var layers []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &layers); err != nil {
			return nil, fmt.Errorf("failed to decode layers: %w", err)
		}
		for l := 0; l < min(len(layers), len(model.Params.Layers)); l++ {
			for _, field := range layerFields(&model.Params.Layers[l]) {
				var err error
				if len(field.t.dims) == 1 {
					err = readVector(layers[l], field.name, *field.t)
				} else {
					err = readMatrix(layers[l], field.name, *field.t)
				}
				if err != nil {
					return nil, fmt.Errorf("layer %d: %w", l, err)
				}
			}
		}
	}
	model.Loaded = true
	return model, nil
}

// SaveModel writes model to path, replacing the file only once the new
// document has been written completely.
func SaveModel(model *Model, path string) error {
	if !torch.AllFinite(model.Params.Memory) {
		return ErrCorruptWeights
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("error creating model file: %w", err)
	}
	defer os.Remove(tmp.Name())
	w := bufio.NewWriter(tmp)
	if err := WriteModel(w, model); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing model file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("error replacing model file: %w", err)
	}
	return nil
}

// WriteModel encodes model as a weights document with every value at the
// shortest precision that round-trips exactly.
func WriteModel(w io.Writer, model *Model) error {
	if !torch.AllFinite(model.Params.Memory) {
		return ErrCorruptWeights
	}
	cfg, err := json.Marshal(model.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	buf := make([]byte, 0, 64*1024)
	buf = append(buf, "{\n\"config\": "...)
	buf = append(buf, cfg...)
	buf = append(buf, ",\n\"token_embeddings\": "...)
	buf = appendMatrix(buf, model.Params.TokenEmbed)
	buf = append(buf, ",\n\"output_proj\": "...)
	buf = appendMatrix(buf, model.Params.OutputProj)
	buf = append(buf, ",\n\"layers\": ["...)
	for l := range model.Params.Layers {
		if l > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, "\n{"...)
		for i, field := range layerFields(&model.Params.Layers[l]) {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, "\n\""...)
			buf = append(buf, field.name...)
			buf = append(buf, "\": "...)
			if len(field.t.dims) == 1 {
				buf = appendVector(buf, field.t.data)
			} else {
				buf = appendMatrix(buf, *field.t)
			}
		}
		buf = append(buf, "\n}"...)
		if len(buf) > 32*1024 {
			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("error writing weights: %w", err)
			}
			buf = buf[:0]
		}
	}
	buf = append(buf, "\n]\n}\n"...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("error writing weights: %w", err)
	}
	return nil
}

type layerField struct {
	name string
	t    *tensor
}

func layerFields(layer *LayerTensors) []layerField {
	return []layerField{
		{"w_q", &layer.Wq},
		{"w_k", &layer.Wk},
		{"w_v", &layer.Wv},
		{"w_o", &layer.Wo},
		{"w_ff1", &layer.FF1},
		{"w_ff2", &layer.FF2},
		{"ln1_gamma", &layer.LN1Gamma},
		{"ln1_beta", &layer.LN1Beta},
		{"ln2_gamma", &layer.LN2Gamma},
		{"ln2_beta", &layer.LN2Beta},
	}
}

func appendVector(buf []byte, v []float64) []byte {
	buf = append(buf, '[')
	for i, x := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, x, 'g', -1, 64)
	}
	return append(buf, ']')
}

func appendMatrix(buf []byte, t tensor) []byte {
	buf = append(buf, '[')
	for r := 0; r < t.dims[0]; r++ {
		if r > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '\n')
		buf = appendVector(buf, t.at(r))
	}
	return append(buf, "\n]"...)
}

func readMatrix(doc map[string]json.RawMessage, key string, t tensor) error {
	raw, ok := doc[key]
	if !ok {
		return nil
	}
	var rows [][]float64
	if err := json.Unmarshal(raw, &rows); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	for r := 0; r < min(len(rows), t.dims[0]); r++ {
		copy(t.at(r), rows[r])
	}
	return nil
}

func readVector(doc map[string]json.RawMessage, key string, t tensor) error {
	raw, ok := doc[key]
	if !ok {
		return nil
	}
	var values []float64
	if err := json.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	copy(t.data, values)
	return nil
}

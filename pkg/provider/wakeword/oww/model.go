package oww

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// model is a single-input, single-output ONNX session whose tensor names are
// discovered from the file.
type model struct {
	path    string
	session *ort.DynamicAdvancedSession
}

func loadModel(path string) (*model, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("oww: inspect %s: %w", path, err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("oww: %s: want 1 input and at least 1 output, got %d and %d", path, len(inputs), len(outputs))
	}
	sess, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		nil)
	if err != nil {
		return nil, fmt.Errorf("oww: load %s: %w", path, err)
	}
	return &model{path: path, session: sess}, nil
}

// run feeds data with the given shape and returns a copy of the first output.
func (m *model) run(shape ort.Shape, data []float32) ([]float32, ort.Shape, error) {
	in, err := ort.NewTensor(shape, data)
	if err != nil {
		return nil, nil, fmt.Errorf("input tensor: %w", err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, nil, fmt.Errorf("run: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	return append([]float32(nil), out.GetData()...), out.GetShape(), nil
}

func (m *model) destroy() {
	if m.session != nil {
		_ = m.session.Destroy()
	}
}

package network

import "fmt"

// New builds a model by name: "instant", "simple", or "maxmin". Bandwidth
// is ignored by the instant model.
func New(kind string, bandwidth float64) (Model, error) {
	switch kind {
	case "instant":
		return NewInstantModel(), nil
	case "simple":
		return NewSimpleModel(bandwidth), nil
	case "maxmin":
		return NewMaxMinModel(bandwidth), nil
	default:
		return nil, fmt.Errorf("network: unknown model %q (have instant, simple, maxmin)", kind)
	}
}

package request

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Distance is a vector distance function kind.
type Distance int

const (
	Cosine Distance = iota + 1
	Euclidean
	InnerProduct
	Hamming
)

// Metric returns the backend metric identifier.
func (d Distance) Metric() string {
	switch d {
	case Cosine:
		return "COSINE"
	case Euclidean:
		return "L2"
	case InnerProduct:
		return "IP"
	case Hamming:
		return "HAMMING"
	default:
		return ""
	}
}

// Descending reports whether closer vectors have larger scores under d.
// Euclidean and Hamming sort ascending; Cosine and InnerProduct descending.
func (d Distance) Descending() bool {
	return d == Cosine || d == InnerProduct
}

func (d Distance) String() string {
	switch d {
	case Cosine:
		return "cosine"
	case Euclidean:
		return "euclidean"
	case InnerProduct:
		return "inner_product"
	case Hamming:
		return "hamming"
	default:
		return "none"
	}
}

// ParseMetric converts a backend metric identifier or distance name.
func ParseMetric(s string) (Distance, error) {
	switch strings.ToUpper(s) {
	case "COSINE":
		return Cosine, nil
	case "L2", "EUCLIDEAN":
		return Euclidean, nil
	case "IP", "INNER_PRODUCT":
		return InnerProduct, nil
	case "HAMMING":
		return Hamming, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}

// UnmarshalYAML decodes a metric identifier in schema files.
func (d *Distance) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseMetric(node.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

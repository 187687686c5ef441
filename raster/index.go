package raster

import (
	"fmt"
	"math"
	"strings"

	goeval "github.com/edisonguo/govaluate"
)

// Index is a derived spectral channel computed from band arithmetic.
type Index struct {
	Name  string
	Bands []Band
	expr  *goeval.EvaluableExpression
}

const (
	NDVI  = "NDVI"
	NDMI  = "NDMI"
	MNDWI = "mNDWI"
	SWI   = "SWI"
)

var builtinIndices = map[string]string{
	NDVI:  "(B08 - B04) / (B08 + B04)",
	NDMI:  "(B08 - B11) / (B08 + B11)",
	MNDWI: "(B03 - B11) / (B03 + B11)",
	SWI:   "B03 * (B08 - B11) / ((B03 + B08) * (B08 + B11))",
}

func BuiltinIndices() []string {
	return []string{NDVI, NDMI, MNDWI, SWI}
}

// LookupIndex returns one of the built in indices.
func LookupIndex(name string) (*Index, error) {
	expr, ok := builtinIndices[name]
	if !ok {
		return nil, fmt.Errorf("unknown index %q", name)
	}
	return NewIndex(name, expr)
}

// NewIndex compiles an expression whose variables are band names.
func NewIndex(name, expression string) (*Index, error) {
	if len(strings.TrimSpace(expression)) == 0 {
		return nil, fmt.Errorf("index %s: empty expression", name)
	}
	expr, err := goeval.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", name, err)
	}

	idx := &Index{Name: name, expr: expr}
	seen := make(map[Band]bool)
	for _, token := range expr.Tokens() {
		if token.Kind != goeval.VARIABLE {
			continue
		}
		varName, ok := token.Value.(string)
		if !ok {
			return nil, fmt.Errorf("index %s: variable token '%v' failed to cast string", name, token.Value)
		}
		band, err := ParseBand(varName)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", name, err)
		}
		if !seen[band] {
			seen[band] = true
			idx.Bands = append(idx.Bands, band)
		}
	}
	if len(idx.Bands) == 0 {
		return nil, fmt.Errorf("index %s: expression references no band", name)
	}
	return idx, nil
}

// Compute evaluates the index on every pixel. Non finite results become 0.
func (idx *Index) Compute(bands map[Band]*Buffer) (*Buffer, error) {
	var ref *Buffer
	for _, b := range idx.Bands {
		buf, ok := bands[b]
		if !ok {
			return nil, fmt.Errorf("index %s: band %v not available", idx.Name, b)
		}
		if ref == nil {
			ref = buf
		} else if !ref.SameDims(buf) {
			return nil, &DataError{Date: buf.Date, Band: b, Reason: fmt.Sprintf("index %s: band dimensions differ", idx.Name)}
		}
	}

	out := NewBuffer(ref.Date, 0, ref.Width, ref.Height)
	out.Geometry = ref.Geometry
	params := make(map[string]interface{}, len(idx.Bands))
	for i := range out.Data {
		for _, b := range idx.Bands {
			params[b.String()] = bands[b].Data[i]
		}
		res, err := idx.expr.Evaluate(params)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", idx.Name, err)
		}
		switch v := res.(type) {
		case float32:
			out.Data[i] = finite(float64(v))
		case float64:
			out.Data[i] = finite(v)
		default:
			return nil, fmt.Errorf("index %s: expression result %v (%T) is not numeric", idx.Name, res, res)
		}
	}
	return out, nil
}

// NormalizedDifference is (a-b)/(a+b), with 0 for non finite results.
func NormalizedDifference(a, b float64) float32 {
	return finite((a - b) / (a + b))
}

func finite(v float64) float32 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return float32(v)
}

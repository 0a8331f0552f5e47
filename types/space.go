package types

import (
	"fmt"
	"math"
	"math/rand"
)

// SpaceType tags the element type of a space.
type SpaceType int

const (
	SpaceTypeUnknown SpaceType = iota
	SpaceTypeDiscrete
	SpaceTypeContinuous
)

func (s SpaceType) String() string {
	switch s {
	case SpaceTypeDiscrete:
		return "discrete"
	case SpaceTypeContinuous:
		return "continuous"
	default:
		return "unknown"
	}
}

const defaultDivision = 10

// Space describes the domain of legal values for one action or observation
// and converts values between canonical representations. Spaces are immutable
// after construction.
//
// The canonical discrete representation is []int with one entry per dimension,
// the canonical continuous representation is []float64. Continuous spaces
// quantize via linear binning over [low, high] and map bin indices back to bin
// midpoints; dimensions without finite bounds cannot be quantized.
type Space interface {
	Type() SpaceType
	// Shape of a value, one entry per dimension.
	Shape() []int
	// DiscreteSize is the number of enumerable values, or
	// UnboundedConversionError if the space cannot be enumerated.
	DiscreteSize() (int, error)
	// Sample a uniformly random valid value in the space's native type.
	Sample(rng *rand.Rand) interface{}
	Contains(v interface{}) bool

	ToDiscrete(v interface{}) ([]int, error)
	FromDiscrete(v []int) (interface{}, error)
	ToContinuous(v interface{}) ([]float64, error)
	FromContinuous(v []float64) (interface{}, error)

	String() string
}

// ---------------------------------------------------------------- Discrete

// DiscreteSpace holds a single integer in [0, N).
type DiscreteSpace struct {
	N int
}

var _ Space = &DiscreteSpace{}

func NewDiscreteSpace(n int) (*DiscreteSpace, error) {
	if n < 1 {
		return nil, fmt.Errorf("discrete space needs at least one value, got %d", n)
	}
	return &DiscreteSpace{N: n}, nil
}

func (s *DiscreteSpace) Type() SpaceType { return SpaceTypeDiscrete }
func (s *DiscreteSpace) Shape() []int    { return []int{1} }

func (s *DiscreteSpace) DiscreteSize() (int, error) { return s.N, nil }

func (s *DiscreteSpace) Sample(rng *rand.Rand) interface{} {
	return rng.Intn(s.N)
}

func (s *DiscreteSpace) Contains(v interface{}) bool {
	i, ok := asInt(v)
	return ok && i >= 0 && i < s.N
}

func (s *DiscreteSpace) ToDiscrete(v interface{}) ([]int, error) {
	i, ok := asInt(v)
	if !ok {
		return nil, fmt.Errorf("space %s: expected int value, got %T", s, v)
	}
	return []int{i}, nil
}

func (s *DiscreteSpace) FromDiscrete(v []int) (interface{}, error) {
	if len(v) != 1 {
		return nil, &ShapeMismatchError{Space: s.String(), Want: 1, Got: len(v)}
	}
	return v[0], nil
}

func (s *DiscreteSpace) ToContinuous(v interface{}) ([]float64, error) {
	i, ok := asInt(v)
	if !ok {
		return nil, fmt.Errorf("space %s: expected int value, got %T", s, v)
	}
	return []float64{float64(i)}, nil
}

func (s *DiscreteSpace) FromContinuous(v []float64) (interface{}, error) {
	if len(v) != 1 {
		return nil, &ShapeMismatchError{Space: s.String(), Want: 1, Got: len(v)}
	}
	return clampInt(int(math.Round(v[0])), 0, s.N-1), nil
}

func (s *DiscreteSpace) String() string { return fmt.Sprintf("Discrete(%d)", s.N) }

// ----------------------------------------------------------- ArrayDiscrete

// ArrayDiscreteSpace holds an integer vector with per-dimension bounds.
type ArrayDiscreteSpace struct {
	Low  []int
	High []int
}

var _ Space = &ArrayDiscreteSpace{}

func NewArrayDiscreteSpace(low, high []int) (*ArrayDiscreteSpace, error) {
	if len(low) != len(high) {
		return nil, fmt.Errorf("array discrete space bounds differ in length: %d vs %d", len(low), len(high))
	}
	if len(low) == 0 {
		return nil, fmt.Errorf("array discrete space needs at least one dimension")
	}
	for i := range low {
		if low[i] > high[i] {
			return nil, fmt.Errorf("array discrete space dimension %d has low %d > high %d", i, low[i], high[i])
		}
	}
	return &ArrayDiscreteSpace{Low: low, High: high}, nil
}

func (s *ArrayDiscreteSpace) Type() SpaceType { return SpaceTypeDiscrete }
func (s *ArrayDiscreteSpace) Shape() []int    { return []int{len(s.Low)} }

func (s *ArrayDiscreteSpace) DiscreteSize() (int, error) {
	size := 1
	for i := range s.Low {
		size *= s.High[i] - s.Low[i] + 1
	}
	return size, nil
}

func (s *ArrayDiscreteSpace) Sample(rng *rand.Rand) interface{} {
	out := make([]int, len(s.Low))
	for i := range s.Low {
		out[i] = s.Low[i] + rng.Intn(s.High[i]-s.Low[i]+1)
	}
	return out
}

func (s *ArrayDiscreteSpace) Contains(v interface{}) bool {
	vs, ok := asIntSlice(v)
	if !ok || len(vs) != len(s.Low) {
		return false
	}
	for i := range vs {
		if vs[i] < s.Low[i] || vs[i] > s.High[i] {
			return false
		}
	}
	return true
}

func (s *ArrayDiscreteSpace) ToDiscrete(v interface{}) ([]int, error) {
	vs, ok := asIntSlice(v)
	if !ok {
		return nil, fmt.Errorf("space %s: expected []int value, got %T", s, v)
	}
	if len(vs) != len(s.Low) {
		return nil, &ShapeMismatchError{Space: s.String(), Want: len(s.Low), Got: len(vs)}
	}
	out := make([]int, len(vs))
	copy(out, vs)
	return out, nil
}

func (s *ArrayDiscreteSpace) FromDiscrete(v []int) (interface{}, error) {
	if len(v) != len(s.Low) {
		return nil, &ShapeMismatchError{Space: s.String(), Want: len(s.Low), Got: len(v)}
	}
	out := make([]int, len(v))
	copy(out, v)
	return out, nil
}

func (s *ArrayDiscreteSpace) ToContinuous(v interface{}) ([]float64, error) {
	d, err := s.ToDiscrete(v)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(d))
	for i, x := range d {
		out[i] = float64(x)
	}
	return out, nil
}

func (s *ArrayDiscreteSpace) FromContinuous(v []float64) (interface{}, error) {
	if len(v) != len(s.Low) {
		return nil, &ShapeMismatchError{Space: s.String(), Want: len(s.Low), Got: len(v)}
	}
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = clampInt(int(math.Round(x)), s.Low[i], s.High[i])
	}
	return out, nil
}

func (s *ArrayDiscreteSpace) String() string {
	return fmt.Sprintf("ArrayDiscrete(%d)", len(s.Low))
}

// -------------------------------------------------------------- Continuous

// ContinuousSpace holds a single float64, optionally bounded. Unbounded
// dimensions use +-Inf and cannot be quantized to a discrete representation.
type ContinuousSpace struct {
	Low      float64
	High     float64
	division int
}

var _ Space = &ContinuousSpace{}

func NewContinuousSpace(low, high float64) (*ContinuousSpace, error) {
	if low > high {
		return nil, fmt.Errorf("continuous space has low %f > high %f", low, high)
	}
	return &ContinuousSpace{Low: low, High: high, division: defaultDivision}, nil
}

// NewUnboundedContinuousSpace spans the whole real line.
func NewUnboundedContinuousSpace() *ContinuousSpace {
	return &ContinuousSpace{Low: math.Inf(-1), High: math.Inf(1), division: defaultDivision}
}

// Divided returns a copy quantizing into k bins per dimension.
func (s *ContinuousSpace) Divided(k int) *ContinuousSpace {
	if k < 1 {
		k = defaultDivision
	}
	return &ContinuousSpace{Low: s.Low, High: s.High, division: k}
}

func (s *ContinuousSpace) Bounded() bool {
	return !math.IsInf(s.Low, 0) && !math.IsInf(s.High, 0)
}

func (s *ContinuousSpace) Type() SpaceType { return SpaceTypeContinuous }
func (s *ContinuousSpace) Shape() []int    { return []int{1} }

func (s *ContinuousSpace) DiscreteSize() (int, error) {
	if !s.Bounded() {
		return 0, &UnboundedConversionError{Space: s.String()}
	}
	return s.division, nil
}

func (s *ContinuousSpace) Sample(rng *rand.Rand) interface{} {
	return sampleDim(rng, s.Low, s.High)
}

func (s *ContinuousSpace) Contains(v interface{}) bool {
	f, ok := asFloat(v)
	return ok && f >= s.Low && f <= s.High
}

func (s *ContinuousSpace) ToDiscrete(v interface{}) ([]int, error) {
	f, ok := asFloat(v)
	if !ok {
		return nil, fmt.Errorf("space %s: expected float64 value, got %T", s, v)
	}
	if !s.Bounded() {
		return nil, &UnboundedConversionError{Space: s.String()}
	}
	return []int{binIndex(f, s.Low, s.High, s.division)}, nil
}

func (s *ContinuousSpace) FromDiscrete(v []int) (interface{}, error) {
	if len(v) != 1 {
		return nil, &ShapeMismatchError{Space: s.String(), Want: 1, Got: len(v)}
	}
	if !s.Bounded() {
		return nil, &UnboundedConversionError{Space: s.String()}
	}
	return binMidpoint(v[0], s.Low, s.High, s.division), nil
}

func (s *ContinuousSpace) ToContinuous(v interface{}) ([]float64, error) {
	f, ok := asFloat(v)
	if !ok {
		return nil, fmt.Errorf("space %s: expected float64 value, got %T", s, v)
	}
	return []float64{f}, nil
}

func (s *ContinuousSpace) FromContinuous(v []float64) (interface{}, error) {
	if len(v) != 1 {
		return nil, &ShapeMismatchError{Space: s.String(), Want: 1, Got: len(v)}
	}
	return v[0], nil
}

func (s *ContinuousSpace) String() string {
	return fmt.Sprintf("Continuous[%g, %g]", s.Low, s.High)
}

// -------------------------------------------------------- ArrayContinuous

// ArrayContinuousSpace holds a float64 vector with per-dimension bounds.
type ArrayContinuousSpace struct {
	Low      []float64
	High     []float64
	division int
}

var _ Space = &ArrayContinuousSpace{}

func NewArrayContinuousSpace(low, high []float64) (*ArrayContinuousSpace, error) {
	if len(low) != len(high) {
		return nil, fmt.Errorf("array continuous space bounds differ in length: %d vs %d", len(low), len(high))
	}
	if len(low) == 0 {
		return nil, fmt.Errorf("array continuous space needs at least one dimension")
	}
	for i := range low {
		if low[i] > high[i] {
			return nil, fmt.Errorf("array continuous space dimension %d has low %f > high %f", i, low[i], high[i])
		}
	}
	return &ArrayContinuousSpace{Low: low, High: high, division: defaultDivision}, nil
}

func (s *ArrayContinuousSpace) Divided(k int) *ArrayContinuousSpace {
	if k < 1 {
		k = defaultDivision
	}
	return &ArrayContinuousSpace{Low: s.Low, High: s.High, division: k}
}

func (s *ArrayContinuousSpace) Type() SpaceType { return SpaceTypeContinuous }
func (s *ArrayContinuousSpace) Shape() []int    { return []int{len(s.Low)} }

func (s *ArrayContinuousSpace) bounded() (int, bool) {
	for i := range s.Low {
		if math.IsInf(s.Low[i], 0) || math.IsInf(s.High[i], 0) {
			return i, false
		}
	}
	return -1, true
}

func (s *ArrayContinuousSpace) DiscreteSize() (int, error) {
	if _, ok := s.bounded(); !ok {
		return 0, &UnboundedConversionError{Space: s.String()}
	}
	size := 1
	for range s.Low {
		size *= s.division
	}
	return size, nil
}

func (s *ArrayContinuousSpace) Sample(rng *rand.Rand) interface{} {
	out := make([]float64, len(s.Low))
	for i := range s.Low {
		out[i] = sampleDim(rng, s.Low[i], s.High[i])
	}
	return out
}

func (s *ArrayContinuousSpace) Contains(v interface{}) bool {
	vs, ok := asFloatSlice(v)
	if !ok || len(vs) != len(s.Low) {
		return false
	}
	for i := range vs {
		if vs[i] < s.Low[i] || vs[i] > s.High[i] {
			return false
		}
	}
	return true
}

func (s *ArrayContinuousSpace) ToDiscrete(v interface{}) ([]int, error) {
	vs, err := s.ToContinuous(v)
	if err != nil {
		return nil, err
	}
	if _, ok := s.bounded(); !ok {
		return nil, &UnboundedConversionError{Space: s.String()}
	}
	out := make([]int, len(vs))
	for i, f := range vs {
		out[i] = binIndex(f, s.Low[i], s.High[i], s.division)
	}
	return out, nil
}

func (s *ArrayContinuousSpace) FromDiscrete(v []int) (interface{}, error) {
	if len(v) != len(s.Low) {
		return nil, &ShapeMismatchError{Space: s.String(), Want: len(s.Low), Got: len(v)}
	}
	if _, ok := s.bounded(); !ok {
		return nil, &UnboundedConversionError{Space: s.String()}
	}
	out := make([]float64, len(v))
	for i, b := range v {
		out[i] = binMidpoint(b, s.Low[i], s.High[i], s.division)
	}
	return out, nil
}

func (s *ArrayContinuousSpace) ToContinuous(v interface{}) ([]float64, error) {
	vs, ok := asFloatSlice(v)
	if !ok {
		return nil, fmt.Errorf("space %s: expected []float64 value, got %T", s, v)
	}
	if len(vs) != len(s.Low) {
		return nil, &ShapeMismatchError{Space: s.String(), Want: len(s.Low), Got: len(vs)}
	}
	out := make([]float64, len(vs))
	copy(out, vs)
	return out, nil
}

func (s *ArrayContinuousSpace) FromContinuous(v []float64) (interface{}, error) {
	if len(v) != len(s.Low) {
		return nil, &ShapeMismatchError{Space: s.String(), Want: len(s.Low), Got: len(v)}
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out, nil
}

func (s *ArrayContinuousSpace) String() string {
	return fmt.Sprintf("ArrayContinuous(%d)", len(s.Low))
}

// --------------------------------------------------------------------- Box

// BoxSpace holds a float64 tensor, stored flattened in row-major order with
// Shape as metadata. Conversion works element-wise over the flattened value.
type BoxSpace struct {
	Dims  []int
	inner *ArrayContinuousSpace
}

var _ Space = &BoxSpace{}

func NewBoxSpace(dims []int, low, high []float64) (*BoxSpace, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("box space needs at least one dimension")
	}
	size := 1
	for i, d := range dims {
		if d < 1 {
			return nil, fmt.Errorf("box space dimension %d has size %d", i, d)
		}
		size *= d
	}
	if len(low) != size || len(high) != size {
		return nil, fmt.Errorf("box space bounds must cover %d elements, got %d and %d", size, len(low), len(high))
	}
	inner, err := NewArrayContinuousSpace(low, high)
	if err != nil {
		return nil, err
	}
	return &BoxSpace{Dims: dims, inner: inner}, nil
}

// NewUniformBoxSpace applies the same scalar bounds to every element.
func NewUniformBoxSpace(dims []int, low, high float64) (*BoxSpace, error) {
	size := 1
	for _, d := range dims {
		size *= d
	}
	lows := make([]float64, size)
	highs := make([]float64, size)
	for i := range lows {
		lows[i] = low
		highs[i] = high
	}
	return NewBoxSpace(dims, lows, highs)
}

func (s *BoxSpace) Divided(k int) *BoxSpace {
	return &BoxSpace{Dims: s.Dims, inner: s.inner.Divided(k)}
}

func (s *BoxSpace) Type() SpaceType { return SpaceTypeContinuous }
func (s *BoxSpace) Shape() []int    { return s.Dims }

func (s *BoxSpace) DiscreteSize() (int, error) {
	size, err := s.inner.DiscreteSize()
	if err != nil {
		return 0, &UnboundedConversionError{Space: s.String()}
	}
	return size, nil
}

func (s *BoxSpace) Sample(rng *rand.Rand) interface{} { return s.inner.Sample(rng) }
func (s *BoxSpace) Contains(v interface{}) bool       { return s.inner.Contains(v) }

func (s *BoxSpace) ToDiscrete(v interface{}) ([]int, error) {
	out, err := s.inner.ToDiscrete(v)
	return out, s.rewrap(err)
}

func (s *BoxSpace) FromDiscrete(v []int) (interface{}, error) {
	out, err := s.inner.FromDiscrete(v)
	return out, s.rewrap(err)
}

func (s *BoxSpace) ToContinuous(v interface{}) ([]float64, error) {
	out, err := s.inner.ToContinuous(v)
	return out, s.rewrap(err)
}

func (s *BoxSpace) FromContinuous(v []float64) (interface{}, error) {
	out, err := s.inner.FromContinuous(v)
	return out, s.rewrap(err)
}

// rewrap replaces the inner space name in conversion errors with the box's.
func (s *BoxSpace) rewrap(err error) error {
	switch e := err.(type) {
	case nil:
		return nil
	case *UnboundedConversionError:
		return &UnboundedConversionError{Space: s.String()}
	case *ShapeMismatchError:
		return &ShapeMismatchError{Space: s.String(), Want: e.Want, Got: e.Got}
	default:
		return err
	}
}

func (s *BoxSpace) String() string {
	return fmt.Sprintf("Box%v", s.Dims)
}

// ----------------------------------------------------------------- helpers

func sampleDim(rng *rand.Rand, low, high float64) float64 {
	if math.IsInf(low, 0) || math.IsInf(high, 0) {
		return rng.NormFloat64()
	}
	return low + rng.Float64()*(high-low)
}

func binIndex(v, low, high float64, k int) int {
	if high == low {
		return 0
	}
	i := int(math.Floor((v - low) / (high - low) * float64(k)))
	return clampInt(i, 0, k-1)
}

func binMidpoint(i int, low, high float64, k int) float64 {
	i = clampInt(i, 0, k-1)
	width := (high - low) / float64(k)
	return low + (float64(i)+0.5)*width
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func asInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if x == math.Trunc(x) {
			return int(x), true
		}
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}

func asIntSlice(v interface{}) ([]int, bool) {
	switch x := v.(type) {
	case []int:
		return x, true
	case []interface{}:
		out := make([]int, len(x))
		for i, e := range x {
			n, ok := asInt(e)
			if !ok {
				return nil, false
			}
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

func asFloatSlice(v interface{}) ([]float64, bool) {
	switch x := v.(type) {
	case []float64:
		return x, true
	case []int:
		out := make([]float64, len(x))
		for i, e := range x {
			out[i] = float64(e)
		}
		return out, true
	case []interface{}:
		out := make([]float64, len(x))
		for i, e := range x {
			f, ok := asFloat(e)
			if !ok {
				return nil, false
			}
			out[i] = f
		}
		return out, true
	}
	return nil, false
}

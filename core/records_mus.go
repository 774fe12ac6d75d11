package core

import (
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the records persisted by storage backends. Nil and
// empty slices and maps are kept distinct so a decoded record compares equal
// to the one that was written.
var (
	VectorMUS   = ord.NewSliceSer[float32](raw.Float32)
	ChunkMUS    = chunkMUS{}
	PolicyMUS   = policyMUS{}
	DimsMUS     = varint.Int
	stringsMUS  = newSliceMUS[string](ord.String)
	timeMUS     = timeSer{}
	capMUS      = newPtrMUS[CoverageCap](coverageCapMUS{})
	actionsMUS  = newSliceMUS[MandatoryAction](mandatoryActionMUS{})
	coverageMUS = newSliceMUS[CoverageCategory](categoryMUS{})
	networkMUS  = newPtrMUS[ServiceNetwork](networkSer{})
	metaMUS     = newMapMUS[string, string](ord.String, ord.String)
	limitsMUS   = newMapMUS[string, float64](ord.String, raw.Float64)
)

// cursor threads the running offset and first error through a sequence of
// field reads.
type cursor struct {
	bs  []byte
	n   int
	err error
}

func read[T any](c *cursor, ser mus.Serializer[T]) (v T) {
	if c.err != nil {
		return
	}
	var n int
	v, n, c.err = ser.Unmarshal(c.bs[c.n:])
	c.n += n
	return
}

func skipBy[T any](ser mus.Serializer[T], bs []byte) (int, error) {
	_, n, err := ser.Unmarshal(bs)
	return n, err
}

type sliceMUS[T any] struct {
	ser mus.Serializer[[]T]
}

func newSliceMUS[T any](elem mus.Serializer[T]) sliceMUS[T] {
	return sliceMUS[T]{ser: ord.NewSliceSer[T](elem)}
}

func (s sliceMUS[T]) Marshal(v []T, bs []byte) (n int) {
	n = ord.Bool.Marshal(v != nil, bs)
	if v != nil {
		n += s.ser.Marshal(v, bs[n:])
	}
	return
}

func (s sliceMUS[T]) Unmarshal(bs []byte) (v []T, n int, err error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return
	}
	v, n1, err := s.ser.Unmarshal(bs[n:])
	n += n1
	if err == nil && v == nil {
		v = []T{}
	}
	return
}

func (s sliceMUS[T]) Size(v []T) (size int) {
	size = ord.Bool.Size(v != nil)
	if v != nil {
		size += s.ser.Size(v)
	}
	return
}

func (s sliceMUS[T]) Skip(bs []byte) (int, error) { return skipBy[[]T](s, bs) }

type mapMUS[K comparable, V any] struct {
	ser mus.Serializer[map[K]V]
}

func newMapMUS[K comparable, V any](k mus.Serializer[K], v mus.Serializer[V]) mapMUS[K, V] {
	return mapMUS[K, V]{ser: ord.NewMapSer[K, V](k, v)}
}

func (s mapMUS[K, V]) Marshal(v map[K]V, bs []byte) (n int) {
	n = ord.Bool.Marshal(v != nil, bs)
	if v != nil {
		n += s.ser.Marshal(v, bs[n:])
	}
	return
}

func (s mapMUS[K, V]) Unmarshal(bs []byte) (v map[K]V, n int, err error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return
	}
	v, n1, err := s.ser.Unmarshal(bs[n:])
	n += n1
	if err == nil && v == nil {
		v = map[K]V{}
	}
	return
}

func (s mapMUS[K, V]) Size(v map[K]V) (size int) {
	size = ord.Bool.Size(v != nil)
	if v != nil {
		size += s.ser.Size(v)
	}
	return
}

func (s mapMUS[K, V]) Skip(bs []byte) (int, error) { return skipBy[map[K]V](s, bs) }

type ptrMUS[T any] struct {
	ser mus.Serializer[T]
}

func newPtrMUS[T any](ser mus.Serializer[T]) ptrMUS[T] {
	return ptrMUS[T]{ser: ser}
}

func (s ptrMUS[T]) Marshal(v *T, bs []byte) (n int) {
	n = ord.Bool.Marshal(v != nil, bs)
	if v != nil {
		n += s.ser.Marshal(*v, bs[n:])
	}
	return
}

func (s ptrMUS[T]) Unmarshal(bs []byte) (v *T, n int, err error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return
	}
	t, n1, err := s.ser.Unmarshal(bs[n:])
	n += n1
	if err == nil {
		v = &t
	}
	return
}

func (s ptrMUS[T]) Size(v *T) (size int) {
	size = ord.Bool.Size(v != nil)
	if v != nil {
		size += s.ser.Size(*v)
	}
	return
}

func (s ptrMUS[T]) Skip(bs []byte) (int, error) { return skipBy[*T](s, bs) }

// timeSer stores RFC 3339 text; the zero time is the empty string.
type timeSer struct{}

func timeText(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func (timeSer) Marshal(v time.Time, bs []byte) int { return ord.String.Marshal(timeText(v), bs) }

func (timeSer) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	s, n, err := ord.String.Unmarshal(bs)
	if err != nil || s == "" {
		return
	}
	v, err = time.Parse(time.RFC3339Nano, s)
	return
}

func (timeSer) Size(v time.Time) int { return ord.String.Size(timeText(v)) }

func (s timeSer) Skip(bs []byte) (int, error) { return skipBy[time.Time](s, bs) }

type coverageCapMUS struct{}

func (coverageCapMUS) Marshal(v CoverageCap, bs []byte) (n int) {
	n = raw.Float64.Marshal(v.Amount, bs)
	n += ord.Bool.Marshal(v.Unlimited, bs[n:])
	return
}

func (coverageCapMUS) Unmarshal(bs []byte) (v CoverageCap, n int, err error) {
	c := &cursor{bs: bs}
	v.Amount = read[float64](c, raw.Float64)
	v.Unlimited = read[bool](c, ord.Bool)
	return v, c.n, c.err
}

func (coverageCapMUS) Size(v CoverageCap) int {
	return raw.Float64.Size(v.Amount) + ord.Bool.Size(v.Unlimited)
}

func (s coverageCapMUS) Skip(bs []byte) (int, error) { return skipBy[CoverageCap](s, bs) }

type mandatoryActionMUS struct{}

func (mandatoryActionMUS) Marshal(v MandatoryAction, bs []byte) (n int) {
	n = ord.String.Marshal(v.Action, bs)
	n += ord.String.Marshal(v.Condition, bs[n:])
	return
}

func (mandatoryActionMUS) Unmarshal(bs []byte) (v MandatoryAction, n int, err error) {
	c := &cursor{bs: bs}
	v.Action = read[string](c, ord.String)
	v.Condition = read[string](c, ord.String)
	return v, c.n, c.err
}

func (mandatoryActionMUS) Size(v MandatoryAction) int {
	return ord.String.Size(v.Action) + ord.String.Size(v.Condition)
}

func (s mandatoryActionMUS) Skip(bs []byte) (int, error) { return skipBy[MandatoryAction](s, bs) }

type categoryMUS struct{}

func (categoryMUS) Marshal(v CoverageCategory, bs []byte) (n int) {
	n = ord.String.Marshal(v.Name, bs)
	n += stringsMUS.Marshal(v.ItemsIncluded, bs[n:])
	n += stringsMUS.Marshal(v.ItemsExcluded, bs[n:])
	n += raw.Float64.Marshal(v.Financial.Deductible, bs[n:])
	n += capMUS.Marshal(v.Financial.CoverageCap, bs[n:])
	n += ord.String.Marshal(v.SpecificLimitations, bs[n:])
	n += limitsMUS.Marshal(v.UsageLimits, bs[n:])
	return
}

func (categoryMUS) Unmarshal(bs []byte) (v CoverageCategory, n int, err error) {
	c := &cursor{bs: bs}
	v.Name = read[string](c, ord.String)
	v.ItemsIncluded = read[[]string](c, stringsMUS)
	v.ItemsExcluded = read[[]string](c, stringsMUS)
	v.Financial.Deductible = read[float64](c, raw.Float64)
	v.Financial.CoverageCap = read[*CoverageCap](c, capMUS)
	v.SpecificLimitations = read[string](c, ord.String)
	v.UsageLimits = read[map[string]float64](c, limitsMUS)
	return v, c.n, c.err
}

func (categoryMUS) Size(v CoverageCategory) int {
	return ord.String.Size(v.Name) +
		stringsMUS.Size(v.ItemsIncluded) +
		stringsMUS.Size(v.ItemsExcluded) +
		raw.Float64.Size(v.Financial.Deductible) +
		capMUS.Size(v.Financial.CoverageCap) +
		ord.String.Size(v.SpecificLimitations) +
		limitsMUS.Size(v.UsageLimits)
}

func (s categoryMUS) Skip(bs []byte) (int, error) { return skipBy[CoverageCategory](s, bs) }

type networkSer struct{}

func (networkSer) Marshal(v ServiceNetwork, bs []byte) (n int) {
	n = ord.String.Marshal(v.Name, bs)
	n += stringsMUS.Marshal(v.Providers, bs[n:])
	n += ord.String.Marshal(v.Notes, bs[n:])
	return
}

func (networkSer) Unmarshal(bs []byte) (v ServiceNetwork, n int, err error) {
	c := &cursor{bs: bs}
	v.Name = read[string](c, ord.String)
	v.Providers = read[[]string](c, stringsMUS)
	v.Notes = read[string](c, ord.String)
	return v, c.n, c.err
}

func (networkSer) Size(v ServiceNetwork) int {
	return ord.String.Size(v.Name) + stringsMUS.Size(v.Providers) + ord.String.Size(v.Notes)
}

func (s networkSer) Skip(bs []byte) (int, error) { return skipBy[ServiceNetwork](s, bs) }

type policyMUS struct{}

func (policyMUS) Marshal(v PolicyDocument, bs []byte) (n int) {
	n = ord.String.Marshal(v.Meta.ID, bs)
	n += ord.String.Marshal(v.Meta.Provider, bs[n:])
	n += ord.String.Marshal(v.Meta.Type, bs[n:])
	n += ord.String.Marshal(string(v.Meta.Status), bs[n:])
	n += timeMUS.Marshal(v.Meta.Validity.StartDate, bs[n:])
	n += timeMUS.Marshal(v.Meta.Validity.EndDateCalculated, bs[n:])
	n += ord.String.Marshal(v.Meta.Validity.TerminationCondition, bs[n:])
	n += actionsMUS.Marshal(v.Obligations.MandatoryActions, bs[n:])
	n += ord.String.Marshal(v.Obligations.PaymentTerms, bs[n:])
	n += stringsMUS.Marshal(v.Obligations.Restrictions, bs[n:])
	n += coverageMUS.Marshal(v.Coverage, bs[n:])
	n += networkMUS.Marshal(v.Network, bs[n:])
	return
}

func (policyMUS) Unmarshal(bs []byte) (v PolicyDocument, n int, err error) {
	c := &cursor{bs: bs}
	v.Meta.ID = read[string](c, ord.String)
	v.Meta.Provider = read[string](c, ord.String)
	v.Meta.Type = read[string](c, ord.String)
	v.Meta.Status = PolicyStatus(read[string](c, ord.String))
	v.Meta.Validity.StartDate = read[time.Time](c, timeMUS)
	v.Meta.Validity.EndDateCalculated = read[time.Time](c, timeMUS)
	v.Meta.Validity.TerminationCondition = read[string](c, ord.String)
	v.Obligations.MandatoryActions = read[[]MandatoryAction](c, actionsMUS)
	v.Obligations.PaymentTerms = read[string](c, ord.String)
	v.Obligations.Restrictions = read[[]string](c, stringsMUS)
	v.Coverage = read[[]CoverageCategory](c, coverageMUS)
	v.Network = read[*ServiceNetwork](c, networkMUS)
	return v, c.n, c.err
}

func (policyMUS) Size(v PolicyDocument) int {
	return ord.String.Size(v.Meta.ID) +
		ord.String.Size(v.Meta.Provider) +
		ord.String.Size(v.Meta.Type) +
		ord.String.Size(string(v.Meta.Status)) +
		timeMUS.Size(v.Meta.Validity.StartDate) +
		timeMUS.Size(v.Meta.Validity.EndDateCalculated) +
		ord.String.Size(v.Meta.Validity.TerminationCondition) +
		actionsMUS.Size(v.Obligations.MandatoryActions) +
		ord.String.Size(v.Obligations.PaymentTerms) +
		stringsMUS.Size(v.Obligations.Restrictions) +
		coverageMUS.Size(v.Coverage) +
		networkMUS.Size(v.Network)
}

func (s policyMUS) Skip(bs []byte) (int, error) { return skipBy[PolicyDocument](s, bs) }

// chunkMUS leaves out Embedding; vectors are stored under their own key with
// VectorMUS.
type chunkMUS struct{}

func (chunkMUS) Marshal(v DocumentChunk, bs []byte) (n int) {
	n = ord.String.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.Text, bs[n:])
	n += ord.String.Marshal(string(v.Type), bs[n:])
	n += ord.String.Marshal(v.PolicyID, bs[n:])
	n += ord.String.Marshal(v.DocumentID, bs[n:])
	n += ord.String.Marshal(v.Category, bs[n:])
	n += varint.Int.Marshal(v.PageNumber, bs[n:])
	n += ord.String.Marshal(v.SectionTitle, bs[n:])
	n += metaMUS.Marshal(v.Metadata, bs[n:])
	return
}

func (chunkMUS) Unmarshal(bs []byte) (v DocumentChunk, n int, err error) {
	c := &cursor{bs: bs}
	v.ID = read[string](c, ord.String)
	v.Text = read[string](c, ord.String)
	v.Type = ChunkType(read[string](c, ord.String))
	v.PolicyID = read[string](c, ord.String)
	v.DocumentID = read[string](c, ord.String)
	v.Category = read[string](c, ord.String)
	v.PageNumber = read[int](c, varint.Int)
	v.SectionTitle = read[string](c, ord.String)
	v.Metadata = read[map[string]string](c, metaMUS)
	return v, c.n, c.err
}

func (chunkMUS) Size(v DocumentChunk) int {
	return ord.String.Size(v.ID) +
		ord.String.Size(v.Text) +
		ord.String.Size(string(v.Type)) +
		ord.String.Size(v.PolicyID) +
		ord.String.Size(v.DocumentID) +
		ord.String.Size(v.Category) +
		varint.Int.Size(v.PageNumber) +
		ord.String.Size(v.SectionTitle) +
		metaMUS.Size(v.Metadata)
}

func (s chunkMUS) Skip(bs []byte) (int, error) { return skipBy[DocumentChunk](s, bs) }

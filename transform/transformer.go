package transform

import "fmt"

// Transformer is an immutable cast+map pair. Replacing a stage returns a new
// Transformer so holders can swap the whole value atomically.
type Transformer struct {
	cast  Func
	mapFn Func
}

// NewTransformer creates a Transformer. Nil stages default to Identity.
func NewTransformer(cast, mapFn Func) *Transformer {
	if cast == nil {
		cast = Identity
	}
	if mapFn == nil {
		mapFn = Identity
	}
	return &Transformer{cast: cast, mapFn: mapFn}
}

// WithCast returns a copy of t using cast as its first stage.
func (t *Transformer) WithCast(cast Func) *Transformer {
	return NewTransformer(cast, t.mapFn)
}

// WithMap returns a copy of t using mapFn as its second stage.
func (t *Transformer) WithMap(mapFn Func) *Transformer {
	return NewTransformer(t.cast, mapFn)
}

// Process runs every row through cast, then every cast row through map,
// flattening both stages. Input rows are cloned before casting and are never
// modified.
func (t *Transformer) Process(rows []Row) ([]Row, error) {
	cast := make([]Row, 0, len(rows))
	for i, row := range rows {
		out, err := t.cast(row.Clone())
		if err != nil {
			return nil, wrapTransform("cast", i, err)
		}
		cast = append(cast, out...)
	}

	mapped := make([]Row, 0, len(cast))
	for i, row := range cast {
		out, err := t.mapFn(row)
		if err != nil {
			return nil, wrapTransform("map", i, err)
		}
		mapped = append(mapped, out...)
	}

	return mapped, nil
}

func wrapTransform(stage string, index int, err error) error {
	return fmt.Errorf("%w: %s row %d: %w", ErrTransform, stage, index, err)
}
